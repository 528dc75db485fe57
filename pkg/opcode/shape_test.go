package opcode

import (
	"errors"
	"testing"
)

func TestValidate_WellFormed(t *testing.T) {
	script := Script{
		New(SetVar, Variable("x"), 1),
		New(RepeatUntil,
			New(BinaryOp, ">", New(CallRPC, "svc", "f"), 0),
			Script{New(ChangeVar, Variable("x"), 1)},
		),
		New(If, New(BinaryOp, "=", Variable("x"), 1), Script{New(Print, "one")}),
		New(If, true, nil, Script{New(Print, "never")}),
		New(SetVar, Variable("f"), New(Lambda, Names{"a"}, New(BinaryOp, "*", Variable("a"), 2))),
		New(Try, Script{New(Throw, "boom")}, Variable("err"), Script{New(Print, Variable("err"))}),
		New(CallProc, "jump", 1, 2, 3),
		New(Join),
	}

	if err := Validate(script); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Malformed(t *testing.T) {
	tests := []struct {
		name string
		node OpCode
	}{
		{"unknown opcode", New(Cmd("Teleport"))},
		{"too few arguments", New(SetVar, Variable("x"))},
		{"too many arguments", New(Yield, 1)},
		{"target is not a variable", New(SetVar, "x", 1)},
		{"body is not a script", New(Forever, New(Print, 1))},
		{"operator is not a string", New(BinaryOp, 1, 2, 3)},
		{"command used as value", New(Print, New(Wait, 1))},
		{"bad nested node", New(Print, New(BinaryOp, "+", 1))},
		{"bad literal", New(Print, []int{1})},
		{"params are not names", New(Lambda, "a", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateNode(tt.node); err == nil {
				t.Errorf("expected error for %+v", tt.node)
			}
		})
	}
}

func TestValidate_UnknownCmdIsWrapped(t *testing.T) {
	err := Validate(Script{New(Cmd("Nope"))})
	if !errors.Is(err, ErrUnknownCmd) {
		t.Errorf("expected ErrUnknownCmd, got %v", err)
	}
}

func TestShapeOf_AllCommandsHaveShapes(t *testing.T) {
	cmds := []Cmd{
		BinaryOp, UnaryOp, And, Or, Join, MakeList, ListGet, ListLength,
		ListContains, ListIndexOf, ListCopy, ListDeepCopy, Range, IsIdentical,
		DeepEqual, ToNumber, ToText, Lambda, CallClosure, CallProc, Call,
		CallRPC, Syscall, Random, Timer, Now, Self, EntityNamed, RPCError,
		SyscallError, Ask, ReceiveMessage, SendMessageAndWait,
		SetVar, ChangeVar, DeclareLocal, If, Repeat, RepeatUntil, Forever, For,
		ForEach, WaitUntil, Wait, Warp, Report, StopScript, StopAll, StopOthers,
		Throw, Try, Broadcast, BroadcastAndWait, SendMessage, Reply, ListAdd, ListSet,
		ListInsert, ListDelete, RunClosure, Launch, Print, Yield, ResetTimer,
	}
	for _, cmd := range cmds {
		if _, ok := ShapeOf(cmd); !ok {
			t.Errorf("no shape for %s", cmd)
		}
	}
}

func TestShapeKindAt(t *testing.T) {
	shape, _ := ShapeOf(CallProc)
	if shape.KindAt(0) != ArgName {
		t.Errorf("expected name slot, got %s", shape.KindAt(0))
	}
	if shape.KindAt(5) != ArgExpr {
		t.Errorf("expected variadic expression slot, got %s", shape.KindAt(5))
	}
}
