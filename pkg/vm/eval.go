package vm

import (
	"math"

	"github.com/zurustar/blox/pkg/capability"
	"github.com/zurustar/blox/pkg/opcode"
	"github.com/zurustar/blox/pkg/value"
)

// maxRangeLength bounds the lists built by the Range block.
const maxRangeLength = 1 << 20

// exec advances the node frame f by one stage: it either pushes a child
// frame, blocks, or applies the opcode and completes f.
func (p *Process) exec(f *frame) error {
	if f.phase == phaseCall {
		return p.exitCall(f)
	}

	switch f.node.Cmd {
	case opcode.If:
		return p.execIf(f)
	case opcode.Repeat:
		return p.execRepeat(f)
	case opcode.RepeatUntil:
		return p.execRepeatUntil(f)
	case opcode.Forever:
		return p.execForever(f)
	case opcode.For:
		return p.execFor(f)
	case opcode.ForEach:
		return p.execForEach(f)
	case opcode.WaitUntil:
		return p.execWaitUntil(f)
	case opcode.Warp:
		return p.execWarp(f)
	case opcode.Try:
		return p.execTry(f)
	case opcode.And, opcode.Or:
		return p.execLogic(f)
	}

	shape, ok := opcode.ShapeOf(f.node.Cmd)
	if !ok {
		return value.NewTypeError("unknown block %q", f.node.Cmd)
	}
	for f.pc < len(f.node.Args) {
		i := f.pc
		f.pc++
		if shape.KindAt(i) != opcode.ArgExpr {
			continue
		}
		pushed, err := p.evalArg(f, f.node.Args[i], f.scope)
		if err != nil {
			return err
		}
		if pushed {
			return nil
		}
	}
	return p.apply(f)
}

// evalArg evaluates one argument for f. Literals and variables are
// appended to f.vals at once; a nested block gets its own frame and
// pushed is true.
func (p *Process) evalArg(f *frame, arg any, scope *value.Scope) (pushed bool, err error) {
	switch a := arg.(type) {
	case opcode.OpCode:
		p.push(&frame{kind: frameNode, node: &a, scope: scope})
		return true, nil
	case opcode.Variable:
		v, err := scope.Get(string(a))
		if err != nil {
			return false, err
		}
		f.vals = append(f.vals, v)
		return false, nil
	default:
		v, err := value.FromGo(a)
		if err != nil {
			return false, err
		}
		f.vals = append(f.vals, v)
		return false, nil
	}
}

// evalArgs evaluates the arguments at the given positions into f.vals, in
// order. It returns false while a child frame is still pending.
func (p *Process) evalArgs(f *frame, positions ...int) (bool, error) {
	for len(f.vals) < len(positions) {
		pushed, err := p.evalArg(f, f.node.Args[positions[len(f.vals)]], f.scope)
		if err != nil {
			return false, err
		}
		if pushed {
			return false, nil
		}
	}
	return true, nil
}

// apply runs an opcode whose arguments are all evaluated.
func (p *Process) apply(f *frame) error {
	args := f.vals
	switch f.node.Cmd {
	case opcode.CallProc:
		name, _ := f.node.Args[0].(string)
		proc, ok := p.Entity.procedure(name)
		if !ok {
			return value.NewNameError(name)
		}
		return p.enterCall(f, proc.closureFor(p.Entity), args)

	case opcode.CallClosure, opcode.RunClosure:
		c, err := value.ToClosure(args[0])
		if err != nil {
			return err
		}
		return p.enterCall(f, c, args[1:])

	case opcode.Launch:
		c, err := value.ToClosure(args[0])
		if err != nil {
			return err
		}
		if _, err := p.sched.launch(c, args[1:], p.Entity); err != nil {
			return err
		}

	case opcode.CallRPC:
		return p.callRemote(args)

	case opcode.SendMessageAndWait:
		targets, err := messageTargets(args[0])
		if err != nil {
			return err
		}
		name, err := value.ToText(args[1])
		if err != nil {
			return err
		}
		h, err := p.sched.host.RequestMessage(targets, name, args[2])
		if err != nil {
			return value.NewCapabilityError("send message and wait", err)
		}
		p.awaiting = handleReply
		p.block(BlockReason{Kind: AwaitingHandle, Handle: h})
		return nil

	case opcode.Syscall:
		name, _ := f.node.Args[0].(string)
		v, err := p.sched.host.InvokeExtension(name, args)
		if err != nil {
			if p.sched.syscallScheme == Soft {
				p.lastSyscallError = err.Error()
				p.complete(value.Text(err.Error()))
				return nil
			}
			return value.NewExtensionError(name, err)
		}
		p.lastSyscallError = ""
		p.complete(v)
		return nil

	case opcode.Ask:
		prompt, err := value.ToText(args[0])
		if err != nil {
			return err
		}
		asker, ok := p.sched.host.(capability.InputRequester)
		if !ok {
			return value.NewCapabilityError("ask", capability.ErrNotSupported)
		}
		h, err := asker.RequestInput(prompt)
		if err != nil {
			return value.NewCapabilityError("ask", err)
		}
		p.awaiting = handleInput
		p.block(BlockReason{Kind: AwaitingHandle, Handle: h})
		return nil

	case opcode.ReceiveMessage:
		name, err := value.ToText(args[0])
		if err != nil {
			return err
		}
		p.block(BlockReason{Kind: AwaitingMessage, Message: name})
		return nil

	case opcode.Wait:
		secs, err := value.ToNumber(args[0])
		if err != nil {
			return err
		}
		until := p.sched.host.Now()
		if secs > 0 {
			until = until.Add(secondsToDuration(secs))
		}
		p.block(BlockReason{Kind: Sleeping, Until: until})
		return nil

	case opcode.Broadcast, opcode.BroadcastAndWait:
		name, err := value.ToText(args[0])
		if err != nil {
			return err
		}
		ids := p.sched.broadcast(name)
		if f.node.Cmd == opcode.BroadcastAndWait && len(ids) > 0 {
			p.block(BlockReason{Kind: AwaitingBarrier, Barrier: ids})
			return nil
		}

	case opcode.Report:
		p.report(args[0])
		return nil

	case opcode.StopScript:
		p.countStep()
		p.terminate(Outcome{})
		return nil

	case opcode.StopAll:
		p.countStep()
		p.sched.stopAll()
		return nil

	case opcode.StopOthers:
		p.sched.stopEntity(p.Entity, p)

	case opcode.Yield:
		if p.warpDepth == 0 {
			p.yielded = true
		}

	default:
		v, err := p.evalPrimitive(f)
		if err != nil {
			return err
		}
		p.complete(v)
		return nil
	}

	p.complete(value.Void())
	return nil
}

// evalPrimitive computes opcodes that neither block nor push frames.
func (p *Process) evalPrimitive(f *frame) (value.Value, error) {
	args := f.vals
	node := f.node

	switch node.Cmd {
	case opcode.BinaryOp:
		op, _ := node.Args[0].(string)
		return binaryOp(op, args[0], args[1])

	case opcode.UnaryOp:
		op, _ := node.Args[0].(string)
		return unaryOp(op, args[0])

	case opcode.Join:
		var s string
		for _, a := range args {
			t, err := value.ToText(a)
			if err != nil {
				return value.Void(), err
			}
			s += t
		}
		return value.Text(s), nil

	case opcode.MakeList:
		return value.ListValue(value.NewListFrom(args)), nil

	case opcode.ListGet:
		l, err := value.ToList(args[1])
		if err != nil {
			return value.Void(), err
		}
		i, err := value.ToIndex(args[0], l.Len())
		if err != nil {
			return value.Void(), err
		}
		return l.Get(i)

	case opcode.ListLength:
		l, err := value.ToList(args[0])
		if err != nil {
			return value.Void(), err
		}
		return value.Number(float64(l.Len())), nil

	case opcode.ListContains:
		l, err := value.ToList(args[0])
		if err != nil {
			return value.Void(), err
		}
		return value.Bool(indexOf(l, args[1]) > 0), nil

	case opcode.ListIndexOf:
		l, err := value.ToList(args[1])
		if err != nil {
			return value.Void(), err
		}
		return value.Number(float64(indexOf(l, args[0]))), nil

	case opcode.ListCopy:
		l, err := value.ToList(args[0])
		if err != nil {
			return value.Void(), err
		}
		return value.ListValue(l.Copy()), nil

	case opcode.ListDeepCopy:
		l, err := value.ToList(args[0])
		if err != nil {
			return value.Void(), err
		}
		return value.ListValue(l.DeepCopy()), nil

	case opcode.Range:
		return makeRange(args[0], args[1])

	case opcode.IsIdentical:
		return value.Bool(value.Identical(args[0], args[1])), nil

	case opcode.DeepEqual:
		return value.Bool(value.DeepEqual(args[0], args[1])), nil

	case opcode.ToNumber:
		n, err := value.ExplicitNumber(args[0])
		if err != nil {
			return value.Void(), err
		}
		return value.Number(n), nil

	case opcode.ToText:
		t, err := value.ToText(args[0])
		if err != nil {
			return value.Void(), err
		}
		return value.Text(t), nil

	case opcode.Lambda:
		params, _ := node.Args[0].(opcode.Names)
		return value.ClosureValue(&value.Closure{
			Params:   []string(params),
			Body:     node.Args[1],
			Captured: f.scope,
			Owner:    p.Entity,
		}), nil

	case opcode.Call:
		name, _ := node.Args[0].(string)
		fn, ok := p.sched.builtins[name]
		if !ok {
			return value.Void(), value.NewNameError(name)
		}
		return fn(p, args)

	case opcode.Random:
		return p.random(args[0], args[1])

	case opcode.Timer:
		elapsed := p.sched.host.Now().Sub(p.sched.timerStart)
		return value.Number(elapsed.Seconds()), nil

	case opcode.Now:
		return value.Number(float64(p.sched.host.Now().UnixMilli()) / 1000), nil

	case opcode.Self:
		return value.EntityValue(p.Entity), nil

	case opcode.EntityNamed:
		name, err := value.ToText(args[0])
		if err != nil {
			return value.Void(), err
		}
		e, ok := p.sched.project.Entity(name)
		if !ok {
			return value.Void(), value.NewNameError(name)
		}
		return value.EntityValue(e), nil

	case opcode.RPCError:
		return value.Text(p.lastRPCError), nil

	case opcode.SyscallError:
		return value.Text(p.lastSyscallError), nil

	case opcode.SetVar:
		name, _ := node.Args[0].(opcode.Variable)
		return value.Void(), f.scope.Set(string(name), args[0])

	case opcode.ChangeVar:
		name, _ := node.Args[0].(opcode.Variable)
		cur, err := f.scope.Get(string(name))
		if err != nil {
			return value.Void(), err
		}
		n, err := value.ToNumber(cur)
		if err != nil {
			return value.Void(), err
		}
		d, err := value.ToNumber(args[0])
		if err != nil {
			return value.Void(), err
		}
		sum, err := value.CheckNumber(n+d, "change")
		if err != nil {
			return value.Void(), err
		}
		return value.Void(), f.scope.Set(string(name), sum)

	case opcode.DeclareLocal:
		names, _ := node.Args[0].(opcode.Names)
		for _, name := range names {
			f.scope.Define(name, value.Number(0))
		}
		return value.Void(), nil

	case opcode.Throw:
		msg, err := value.ToText(args[0])
		if err != nil {
			msg = args[0].String()
		}
		return value.Void(), value.NewCustomError(msg)

	case opcode.SendMessage:
		targets, err := messageTargets(args[0])
		if err != nil {
			return value.Void(), err
		}
		name, err := value.ToText(args[1])
		if err != nil {
			return value.Void(), err
		}
		if err := p.sched.host.SendMessage(targets, name, args[2]); err != nil {
			return value.Void(), value.NewCapabilityError("send message", err)
		}
		return value.Void(), nil

	case opcode.Reply:
		key := p.replyKey
		if key == 0 {
			return value.Void(), nil
		}
		p.replyKey = 0
		if err := p.sched.host.SendReply(key, args[0]); err != nil {
			return value.Void(), value.NewCapabilityError("reply", err)
		}
		return value.Void(), nil

	case opcode.ListAdd:
		l, err := value.ToList(args[1])
		if err != nil {
			return value.Void(), err
		}
		l.Append(args[0])
		return value.Void(), nil

	case opcode.ListSet:
		l, err := value.ToList(args[1])
		if err != nil {
			return value.Void(), err
		}
		i, err := value.ToIndex(args[0], l.Len())
		if err != nil {
			return value.Void(), err
		}
		return value.Void(), l.Set(i, args[2])

	case opcode.ListInsert:
		l, err := value.ToList(args[1])
		if err != nil {
			return value.Void(), err
		}
		i, err := value.ToIndex(args[0], l.Len()+1)
		if err != nil {
			return value.Void(), err
		}
		return value.Void(), l.Insert(i, args[2])

	case opcode.ListDelete:
		l, err := value.ToList(args[1])
		if err != nil {
			return value.Void(), err
		}
		if t, _ := value.ToText(args[0]); t == "all" {
			l.Clear()
			return value.Void(), nil
		}
		i, err := value.ToIndex(args[0], l.Len())
		if err != nil {
			return value.Void(), err
		}
		return value.Void(), l.Delete(i)

	case opcode.Print:
		if printer, ok := p.sched.host.(capability.Printer); ok {
			printer.Print(p.Entity.Name, args[0])
		} else {
			p.sched.log.Info("Print", "entity", p.Entity.Name, "value", args[0].String())
		}
		return value.Void(), nil

	case opcode.ResetTimer:
		p.sched.timerStart = p.sched.host.Now()
		return value.Void(), nil
	}

	return value.Void(), value.NewTypeError("block %q cannot be evaluated", node.Cmd)
}

// messageTargets reads the target of a network message: one program name,
// or a list of names.
func messageTargets(v value.Value) ([]string, error) {
	l, ok := v.List()
	if !ok {
		target, err := value.ToText(v)
		if err != nil {
			return nil, err
		}
		return []string{target}, nil
	}

	items := l.Items()
	targets := make([]string, len(items))
	for i, item := range items {
		if item.Kind() != value.KindText {
			return nil, value.NewTypeError("message target must be text, got %s", item.Kind())
		}
		targets[i] = item.String()
	}
	return targets, nil
}

// callRemote issues a remote call and blocks the process on its handle.
func (p *Process) callRemote(args []value.Value) error {
	service, err := value.ToText(args[0])
	if err != nil {
		return err
	}
	method, err := value.ToText(args[1])
	if err != nil {
		return err
	}

	h, err := p.sched.host.CallRemote(service, method, args[2:])
	if err != nil {
		return p.remoteFailed(service+"."+method, err)
	}
	p.lastRPCError = ""
	p.awaiting = handleRPC
	p.block(BlockReason{Kind: AwaitingHandle, Handle: h})
	return nil
}

// enterCall starts a procedure or closure body under f.
func (p *Process) enterCall(f *frame, c *value.Closure, args []value.Value) error {
	if p.callDepth >= p.sched.maxCallDepth {
		return value.NewRecursionLimitError(p.callDepth+1, p.sched.maxCallDepth)
	}
	sc, err := c.Bind(args)
	if err != nil {
		return err
	}

	f.phase = phaseCall
	f.boundary = true
	p.callDepth++
	if c.Warp {
		f.warp = true
		p.warpDepth++
	}
	f.reporter = c.IsReporter()
	f.vals = f.vals[:0]

	switch body := c.Body.(type) {
	case opcode.Script:
		p.push(&frame{kind: frameBlock, body: body, scope: sc})
	case nil:
		p.push(&frame{kind: frameBlock, scope: sc})
	default:
		if _, err := p.evalArg(f, body, sc); err != nil {
			return err
		}
	}
	return nil
}

// exitCall completes a call frame once its body has finished.
func (p *Process) exitCall(f *frame) error {
	result := value.Void()
	if f.reporter && len(f.vals) > 0 {
		result = f.vals[len(f.vals)-1]
	}
	p.complete(result)
	return nil
}

func (p *Process) random(lo, hi value.Value) (value.Value, error) {
	a, err := value.ToNumber(lo)
	if err != nil {
		return value.Void(), err
	}
	b, err := value.ToNumber(hi)
	if err != nil {
		return value.Void(), err
	}
	if a > b {
		a, b = b, a
	}
	r := p.sched.host.Random()
	if a == math.Trunc(a) && b == math.Trunc(b) {
		return value.Number(a + math.Floor(r*(b-a+1))), nil
	}
	return value.CheckNumber(a+r*(b-a), "random")
}

func indexOf(l *value.List, v value.Value) int {
	for i, item := range l.Items() {
		if value.Equal(item, v) {
			return i + 1
		}
	}
	return 0
}

func makeRange(from, to value.Value) (value.Value, error) {
	a, err := value.ToNumber(from)
	if err != nil {
		return value.Void(), err
	}
	b, err := value.ToNumber(to)
	if err != nil {
		return value.Void(), err
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) || math.Abs(b-a) >= maxRangeLength {
		return value.Void(), value.NewTypeError("range %s to %s is too large", value.FormatNumber(a), value.FormatNumber(b))
	}

	l := value.NewList()
	if a <= b {
		for x := a; x <= b; x++ {
			l.Append(value.Number(x))
		}
	} else {
		for x := a; x >= b; x-- {
			l.Append(value.Number(x))
		}
	}
	return value.ListValue(l), nil
}
