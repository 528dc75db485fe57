// Package vm provides the suspendable evaluator and cooperative scheduler
// for blox projects.
//
// A Process evaluates one script with an explicit stack of frames instead of
// the Go call stack, so it can stop in the middle of a nested expression
// (waiting for a remote call, a timer or a message) and pick up exactly
// where it left off on a later tick.
package vm

import (
	"fmt"
	"time"

	"github.com/zurustar/blox/pkg/capability"
	"github.com/zurustar/blox/pkg/opcode"
	"github.com/zurustar/blox/pkg/value"
)

// ProcessID identifies a process within a scheduler. IDs are assigned in
// spawn order starting from 1.
type ProcessID uint64

// State is the lifecycle state of a process.
type State uint8

const (
	StateRunning State = iota
	StateBlocked
	StateTerminated
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateTerminated:
		return "terminated"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// BlockKind says what a blocked process is waiting for.
type BlockKind uint8

const (
	NotBlocked BlockKind = iota
	AwaitingHandle
	Sleeping
	AwaitingBarrier
	AwaitingMessage
)

// BlockReason describes the condition a blocked process waits on.
type BlockReason struct {
	Kind    BlockKind
	Handle  capability.Handle // AwaitingHandle
	Until   time.Time         // Sleeping
	Barrier []ProcessID       // AwaitingBarrier
	Message string            // AwaitingMessage
}

func (r BlockReason) String() string {
	switch r.Kind {
	case AwaitingHandle:
		return fmt.Sprintf("awaiting handle %d", r.Handle)
	case Sleeping:
		return "sleeping"
	case AwaitingBarrier:
		return fmt.Sprintf("awaiting %d processes", len(r.Barrier))
	case AwaitingMessage:
		return fmt.Sprintf("awaiting message %q", r.Message)
	default:
		return "not blocked"
	}
}

// Outcome is the result of a finished process.
type Outcome struct {
	Value  value.Value
	Err    error
	Killed bool
}

// handleUse records which block issued the handle a process waits on, so
// the right error scheme applies when it fails.
type handleUse uint8

const (
	handleRPC handleUse = iota
	handleInput
	handleReply
)

// frameKind distinguishes statement sequences from single blocks.
type frameKind uint8

const (
	frameBlock frameKind = iota
	frameNode
)

// Frame phases for blocks that evaluate in several stages.
const (
	phaseInit = iota
	phaseLoop
	phaseBody
	phaseHandler
	phaseCall
)

// frame is one level of the evaluation stack.
type frame struct {
	kind  frameKind
	node  *opcode.OpCode // frameNode
	body  opcode.Script  // frameBlock
	pc    int            // next argument (frameNode) or statement (frameBlock)
	vals  []value.Value  // argument values gathered so far
	scope *value.Scope
	stmt  bool // completing this frame completes a statement

	phase    int
	index    int
	cursor   float64
	limit    float64
	dir      float64
	mark     uint64
	list     *value.List
	warp     bool // an atomic region is open while this frame is on the stack
	boundary bool // a procedure or closure body is running under this frame
	reporter bool
	callArgs []value.Value
}

// Process is one running script.
type Process struct {
	ID     ProcessID
	Entity *Entity
	Script *Script // nil for processes launched from a closure

	sched     *Scheduler
	state     State
	reason    BlockReason
	awaiting  handleUse
	outcome   Outcome
	frames    []*frame
	callDepth int
	warpDepth int

	tickSteps  int
	totalSteps uint64
	yielded    bool

	lastRPCError     string
	lastSyscallError string

	// replyKey answers the network message that started the process.
	replyKey capability.ReplyKey
}

// State returns the lifecycle state.
func (p *Process) State() State { return p.state }

// Reason returns what a blocked process is waiting for.
func (p *Process) Reason() BlockReason { return p.reason }

// Outcome returns the result of a finished process.
func (p *Process) Outcome() Outcome { return p.outcome }

// Steps returns the number of statements the process has completed.
func (p *Process) Steps() uint64 { return p.totalSteps }

// Done reports whether the process has terminated or been killed.
func (p *Process) Done() bool {
	return p.state == StateTerminated || p.state == StateKilled
}

// Depth returns the current height of the frame stack.
func (p *Process) Depth() int { return len(p.frames) }

// Host returns the capability host of the scheduler running p.
func (p *Process) Host() capability.Host { return p.sched.host }

// run evaluates until the step budget is spent, the process blocks or
// finishes, or it yields. Inside an atomic region the budget is ignored.
// Only fatal engine errors are returned; script errors end the process.
func (p *Process) run(budget int) error {
	p.tickSteps = 0
	p.yielded = false

	for p.state == StateRunning && !p.yielded {
		if p.warpDepth == 0 && p.tickSteps >= budget {
			return nil
		}
		if len(p.frames) == 0 {
			p.terminate(Outcome{})
			return nil
		}

		top := p.frames[len(p.frames)-1]
		var err error
		switch top.kind {
		case frameBlock:
			if top.pc >= len(top.body) {
				p.complete(value.Void())
				continue
			}
			stmt := &top.body[top.pc]
			top.pc++
			p.push(&frame{kind: frameNode, node: stmt, scope: top.scope, stmt: true})
		case frameNode:
			if top.node == nil {
				return ErrCorruptStack
			}
			err = p.exec(top)
		default:
			return ErrCorruptStack
		}

		if err != nil {
			if rt := value.AsRuntimeError(err); rt.IsFatal() {
				return rt
			}
			p.raise(err)
		}
	}
	return nil
}

func (p *Process) push(f *frame) {
	p.frames = append(p.frames, f)
}

func (p *Process) pop() *frame {
	n := len(p.frames)
	f := p.frames[n-1]
	p.frames[n-1] = nil
	p.frames = p.frames[:n-1]
	if f.warp {
		p.warpDepth--
	}
	if f.boundary {
		p.callDepth--
	}
	return f
}

// unwindTo pops every frame above index i.
func (p *Process) unwindTo(i int) {
	for len(p.frames) > i+1 {
		p.pop()
	}
}

func (p *Process) countStep() {
	p.tickSteps++
	p.totalSteps++
}

// complete pops the top frame and delivers its result to the frame below.
// Statement results are discarded; a finished bottom frame ends the process.
func (p *Process) complete(v value.Value) {
	f := p.pop()
	if f.stmt {
		p.countStep()
	}
	if len(p.frames) == 0 {
		p.terminate(Outcome{Value: v})
		return
	}
	parent := p.frames[len(p.frames)-1]
	if f.kind == frameNode && parent.kind == frameNode {
		parent.vals = append(parent.vals, v)
	}
}

// raise unwinds to the innermost try block whose body is running, or ends
// the process with the error.
func (p *Process) raise(err error) {
	rt := value.AsRuntimeError(err)

	for i := len(p.frames) - 1; i >= 0; i-- {
		f := p.frames[i]
		if f.kind != frameNode || f.node.Cmd != opcode.Try || f.phase != phaseBody {
			continue
		}
		p.unwindTo(i)
		f.phase = phaseHandler

		sc := value.NewScope(f.scope)
		if name, ok := f.node.Args[1].(opcode.Variable); ok {
			sc.Define(string(name), value.Text(rt.Message))
		}
		p.push(&frame{kind: frameBlock, body: scriptArg(f.node.Args, 2), scope: sc})
		return
	}

	p.terminate(Outcome{Err: rt})
}

// report returns v from the innermost procedure or closure call.
// Outside of any call it ends the process with v.
func (p *Process) report(v value.Value) {
	p.countStep()
	for i := len(p.frames) - 1; i >= 0; i-- {
		if p.frames[i].boundary {
			p.unwindTo(i)
			p.complete(v)
			return
		}
	}
	p.terminate(Outcome{Value: v})
}

func (p *Process) block(reason BlockReason) {
	p.state = StateBlocked
	p.reason = reason
}

// resume delivers the awaited value to the waiting block and makes the
// process runnable again. Completed sibling arguments are not re-evaluated.
func (p *Process) resume(v value.Value) {
	p.state = StateRunning
	p.reason = BlockReason{}
	p.complete(v)
}

// resumeWithError wakes the process and handles a failed request according
// to the configured error scheme.
func (p *Process) resumeWithError(err error) {
	p.state = StateRunning
	p.reason = BlockReason{}

	switch p.awaiting {
	case handleRPC:
		if rerr := p.remoteFailed("remote call", err); rerr != nil {
			p.raise(rerr)
		}
	case handleReply:
		p.raise(value.NewCapabilityError("send message and wait", err))
	default:
		p.raise(value.NewCapabilityError("ask", err))
	}
}

// remoteFailed applies the remote call error scheme. Under the soft scheme
// the message becomes the block's value and nil is returned.
func (p *Process) remoteFailed(op string, err error) error {
	if p.sched.rpcScheme == Soft {
		p.lastRPCError = err.Error()
		p.complete(value.Text(err.Error()))
		return nil
	}
	return value.NewCapabilityError(op, err)
}

func (p *Process) terminate(o Outcome) {
	p.state = StateTerminated
	p.outcome = o
	p.clearStack()
}

func (p *Process) kill() {
	p.state = StateKilled
	p.outcome = Outcome{Killed: true}
	p.clearStack()
}

func (p *Process) clearStack() {
	p.frames = nil
	p.callDepth = 0
	p.warpDepth = 0
	p.reason = BlockReason{}
}

// scriptArg returns the Script in args[i], or nil if absent.
func scriptArg(args []any, i int) opcode.Script {
	if i >= len(args) {
		return nil
	}
	s, _ := args[i].(opcode.Script)
	return s
}
