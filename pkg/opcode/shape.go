package opcode

import (
	"errors"
	"fmt"
)

// ArgKind describes what may appear in one argument slot.
type ArgKind uint8

const (
	// ArgExpr is evaluated: a literal, Variable or nested OpCode.
	ArgExpr ArgKind = iota
	// ArgScript is a Script (nil is accepted as an empty script).
	ArgScript
	// ArgVar is a Variable naming an assignment target.
	ArgVar
	// ArgName is a literal string known when the script is loaded.
	ArgName
	// ArgNames is a Names list.
	ArgNames
	// ArgOperator is a literal operator string.
	ArgOperator
	// ArgRing is a lambda body: an OpCode reporter or a Script.
	ArgRing
)

func (k ArgKind) String() string {
	switch k {
	case ArgExpr:
		return "expression"
	case ArgScript:
		return "script"
	case ArgVar:
		return "variable"
	case ArgName:
		return "name"
	case ArgNames:
		return "names"
	case ArgOperator:
		return "operator"
	case ArgRing:
		return "ring"
	default:
		return "unknown"
	}
}

// Shape is the argument layout of an opcode.
type Shape struct {
	Args     []ArgKind
	Optional int  // number of trailing Args that may be omitted
	Variadic bool // extra trailing arguments are expressions
	Reporter bool // yields a value
}

func reporter(args ...ArgKind) Shape { return Shape{Args: args, Reporter: true} }
func command(args ...ArgKind) Shape  { return Shape{Args: args} }

var shapes = map[Cmd]Shape{
	BinaryOp:       reporter(ArgOperator, ArgExpr, ArgExpr),
	UnaryOp:        reporter(ArgOperator, ArgExpr),
	And:            reporter(ArgExpr, ArgExpr),
	Or:             reporter(ArgExpr, ArgExpr),
	Join:           {Variadic: true, Reporter: true},
	MakeList:       {Variadic: true, Reporter: true},
	ListGet:        reporter(ArgExpr, ArgExpr),
	ListLength:     reporter(ArgExpr),
	ListContains:   reporter(ArgExpr, ArgExpr),
	ListIndexOf:    reporter(ArgExpr, ArgExpr),
	ListCopy:       reporter(ArgExpr),
	ListDeepCopy:   reporter(ArgExpr),
	Range:          reporter(ArgExpr, ArgExpr),
	IsIdentical:    reporter(ArgExpr, ArgExpr),
	DeepEqual:      reporter(ArgExpr, ArgExpr),
	ToNumber:       reporter(ArgExpr),
	ToText:         reporter(ArgExpr),
	Lambda:         reporter(ArgNames, ArgRing),
	CallClosure:    {Args: []ArgKind{ArgExpr}, Variadic: true, Reporter: true},
	CallProc:       {Args: []ArgKind{ArgName}, Variadic: true, Reporter: true},
	Call:           {Args: []ArgKind{ArgName}, Variadic: true, Reporter: true},
	CallRPC:        {Args: []ArgKind{ArgExpr, ArgExpr}, Variadic: true, Reporter: true},
	Syscall:        {Args: []ArgKind{ArgName}, Variadic: true, Reporter: true},
	Random:         reporter(ArgExpr, ArgExpr),
	Timer:          reporter(),
	Now:            reporter(),
	Self:           reporter(),
	EntityNamed:    reporter(ArgExpr),
	RPCError:       reporter(),
	SyscallError:   reporter(),
	Ask:            reporter(ArgExpr),
	ReceiveMessage: reporter(ArgExpr),

	SendMessageAndWait: reporter(ArgExpr, ArgExpr, ArgExpr),

	SetVar:           command(ArgVar, ArgExpr),
	ChangeVar:        command(ArgVar, ArgExpr),
	DeclareLocal:     command(ArgNames),
	If:               {Args: []ArgKind{ArgExpr, ArgScript, ArgScript}, Optional: 1},
	Repeat:           command(ArgExpr, ArgScript),
	RepeatUntil:      command(ArgExpr, ArgScript),
	Forever:          command(ArgScript),
	For:              command(ArgVar, ArgExpr, ArgExpr, ArgScript),
	ForEach:          command(ArgVar, ArgExpr, ArgScript),
	WaitUntil:        command(ArgExpr),
	Wait:             command(ArgExpr),
	Warp:             command(ArgScript),
	Report:           command(ArgExpr),
	StopScript:       command(),
	StopAll:          command(),
	StopOthers:       command(),
	Throw:            command(ArgExpr),
	Try:              command(ArgScript, ArgVar, ArgScript),
	Broadcast:        command(ArgExpr),
	BroadcastAndWait: command(ArgExpr),
	SendMessage:      command(ArgExpr, ArgExpr, ArgExpr),
	Reply:            command(ArgExpr),
	ListAdd:          command(ArgExpr, ArgExpr),
	ListSet:          command(ArgExpr, ArgExpr, ArgExpr),
	ListInsert:       command(ArgExpr, ArgExpr, ArgExpr),
	ListDelete:       command(ArgExpr, ArgExpr),
	RunClosure:       {Args: []ArgKind{ArgExpr}, Variadic: true},
	Launch:           {Args: []ArgKind{ArgExpr}, Variadic: true},
	Print:            command(ArgExpr),
	Yield:            command(),
	ResetTimer:       command(),
}

// ShapeOf returns the argument layout of cmd.
func ShapeOf(cmd Cmd) (Shape, bool) {
	s, ok := shapes[cmd]
	return s, ok
}

// KindAt returns the kind of argument slot i for a node with n arguments.
func (s Shape) KindAt(i int) ArgKind {
	if i < len(s.Args) {
		return s.Args[i]
	}
	return ArgExpr
}

// ErrUnknownCmd is returned by Validate for an opcode with no shape.
var ErrUnknownCmd = errors.New("unknown opcode")

// ShapeError describes a malformed node.
type ShapeError struct {
	Cmd    Cmd
	Index  int
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Cmd, e.Reason)
	}
	return fmt.Sprintf("%s: argument %d: %s", e.Cmd, e.Index+1, e.Reason)
}

// Validate checks every node of a script against its shape.
func Validate(script Script) error {
	for i := range script {
		if err := ValidateNode(script[i]); err != nil {
			return err
		}
	}
	return nil
}

// ValidateNode checks a node and everything below it.
func ValidateNode(node OpCode) error {
	shape, ok := shapes[node.Cmd]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCmd, node.Cmd)
	}

	n := len(node.Args)
	minArgs := len(shape.Args) - shape.Optional
	if n < minArgs {
		return &ShapeError{Cmd: node.Cmd, Index: -1, Reason: fmt.Sprintf("expected at least %d arguments, got %d", minArgs, n)}
	}
	if n > len(shape.Args) && !shape.Variadic {
		return &ShapeError{Cmd: node.Cmd, Index: -1, Reason: fmt.Sprintf("expected at most %d arguments, got %d", len(shape.Args), n)}
	}

	for i, arg := range node.Args {
		if err := checkArg(node.Cmd, i, shape.KindAt(i), arg); err != nil {
			return err
		}
	}
	return nil
}

func checkArg(cmd Cmd, i int, kind ArgKind, arg any) error {
	bad := func() error {
		return &ShapeError{Cmd: cmd, Index: i, Reason: fmt.Sprintf("expected %s, got %T", kind, arg)}
	}

	switch kind {
	case ArgExpr:
		if node, ok := arg.(OpCode); ok {
			shape, known := shapes[node.Cmd]
			if known && !shape.Reporter {
				return &ShapeError{Cmd: cmd, Index: i, Reason: fmt.Sprintf("command block %s used as a value", node.Cmd)}
			}
			return ValidateNode(node)
		}
		if !IsLiteral(arg) {
			if _, ok := arg.(Variable); !ok {
				return bad()
			}
		}
	case ArgScript:
		if arg == nil {
			return nil
		}
		s, ok := arg.(Script)
		if !ok {
			return bad()
		}
		return Validate(s)
	case ArgVar:
		if v, ok := arg.(Variable); !ok || v == "" {
			return bad()
		}
	case ArgName, ArgOperator:
		if s, ok := arg.(string); !ok || s == "" {
			return bad()
		}
	case ArgNames:
		if _, ok := arg.(Names); !ok {
			return bad()
		}
	case ArgRing:
		switch body := arg.(type) {
		case Script:
			return Validate(body)
		case OpCode:
			return checkArg(cmd, i, ArgExpr, body)
		case nil:
			return nil
		default:
			if IsLiteral(arg) {
				return nil
			}
			if _, ok := arg.(Variable); ok {
				return nil
			}
			return bad()
		}
	}
	return nil
}

// IsLiteral reports whether v is a literal argument.
func IsLiteral(v any) bool {
	switch v.(type) {
	case nil, float64, float32, int, int64, int32, string, bool:
		return true
	default:
		return false
	}
}
