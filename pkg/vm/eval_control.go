package vm

import (
	"math"
	"time"

	"github.com/zurustar/blox/pkg/opcode"
	"github.com/zurustar/blox/pkg/value"
)

// Loop bookkeeping. Every iteration runs its body as a child block frame;
// when the body completes the loop frame is on top again in phaseBody.
// An iteration that completed no statements (an empty body) counts as one
// step so that an empty forever loop still gives way to other processes.

func (p *Process) startIteration(f *frame, scope *value.Scope) {
	f.phase = phaseBody
	f.mark = p.totalSteps
	p.push(&frame{kind: frameBlock, body: scriptArg(f.node.Args, len(f.node.Args)-1), scope: scope})
}

func (p *Process) endIteration(f *frame) {
	if p.totalSteps == f.mark {
		p.countStep()
	}
	f.phase = phaseLoop
}

func (p *Process) execIf(f *frame) error {
	if f.phase == phaseBody {
		p.complete(value.Void())
		return nil
	}

	done, err := p.evalArgs(f, 0)
	if !done {
		return err
	}
	cond, err := value.ToBool(f.vals[0])
	if err != nil {
		return err
	}

	branch := scriptArg(f.node.Args, 1)
	if !cond {
		branch = scriptArg(f.node.Args, 2)
	}
	if len(branch) == 0 {
		p.complete(value.Void())
		return nil
	}
	f.phase = phaseBody
	p.push(&frame{kind: frameBlock, body: branch, scope: f.scope})
	return nil
}

func (p *Process) execRepeat(f *frame) error {
	switch f.phase {
	case phaseInit:
		done, err := p.evalArgs(f, 0)
		if !done {
			return err
		}
		n, err := value.ToNumber(f.vals[0])
		if err != nil {
			return err
		}
		f.limit = math.Floor(n)
		f.cursor = 0
		f.phase = phaseLoop
	case phaseBody:
		p.endIteration(f)
	}

	if f.cursor >= f.limit {
		p.complete(value.Void())
		return nil
	}
	f.cursor++
	p.startIteration(f, f.scope)
	return nil
}

func (p *Process) execRepeatUntil(f *frame) error {
	if f.phase == phaseBody {
		p.endIteration(f)
	}

	done, err := p.evalArgs(f, 0)
	if !done {
		return err
	}
	cond, err := value.ToBool(f.vals[0])
	if err != nil {
		return err
	}
	f.vals = f.vals[:0]

	if cond {
		p.complete(value.Void())
		return nil
	}
	p.startIteration(f, f.scope)
	return nil
}

func (p *Process) execForever(f *frame) error {
	if f.phase == phaseBody {
		p.endIteration(f)
	}
	p.startIteration(f, f.scope)
	return nil
}

func (p *Process) execFor(f *frame) error {
	name, _ := f.node.Args[0].(opcode.Variable)

	switch f.phase {
	case phaseInit:
		done, err := p.evalArgs(f, 1, 2)
		if !done {
			return err
		}
		from, err := value.ToNumber(f.vals[0])
		if err != nil {
			return err
		}
		to, err := value.ToNumber(f.vals[1])
		if err != nil {
			return err
		}
		f.cursor, f.limit, f.dir = from, to, 1
		if to < from {
			f.dir = -1
		}
		f.phase = phaseLoop
	case phaseBody:
		p.endIteration(f)
		f.cursor += f.dir
	}

	if (f.dir > 0 && f.cursor > f.limit) || (f.dir < 0 && f.cursor < f.limit) {
		p.complete(value.Void())
		return nil
	}
	f.scope.Define(string(name), value.Number(f.cursor))
	p.startIteration(f, f.scope)
	return nil
}

// execForEach walks the live list by position, so items appended by the
// body are visited too.
func (p *Process) execForEach(f *frame) error {
	name, _ := f.node.Args[0].(opcode.Variable)

	switch f.phase {
	case phaseInit:
		done, err := p.evalArgs(f, 1)
		if !done {
			return err
		}
		l, err := value.ToList(f.vals[0])
		if err != nil {
			return err
		}
		f.list = l
		f.index = 0
		f.phase = phaseLoop
	case phaseBody:
		p.endIteration(f)
	}

	if f.index >= f.list.Len() {
		p.complete(value.Void())
		return nil
	}
	f.index++
	item, err := f.list.Get(f.index)
	if err != nil {
		return err
	}
	f.scope.Define(string(name), item)
	p.startIteration(f, f.scope)
	return nil
}

// execWaitUntil yields until its condition holds, even inside warp.
func (p *Process) execWaitUntil(f *frame) error {
	done, err := p.evalArgs(f, 0)
	if !done {
		return err
	}
	cond, err := value.ToBool(f.vals[0])
	if err != nil {
		return err
	}
	if cond {
		p.complete(value.Void())
		return nil
	}
	f.vals = f.vals[:0]
	p.yielded = true
	return nil
}

func (p *Process) execWarp(f *frame) error {
	if f.phase == phaseBody {
		p.complete(value.Void())
		return nil
	}
	f.phase = phaseBody
	f.warp = true
	p.warpDepth++
	p.push(&frame{kind: frameBlock, body: scriptArg(f.node.Args, 0), scope: f.scope})
	return nil
}

// execTry runs the body; raise switches the frame to phaseHandler when
// an error escapes it.
func (p *Process) execTry(f *frame) error {
	if f.phase != phaseInit {
		p.complete(value.Void())
		return nil
	}
	f.phase = phaseBody
	p.push(&frame{kind: frameBlock, body: scriptArg(f.node.Args, 0), scope: f.scope})
	return nil
}

func (p *Process) execLogic(f *frame) error {
	done, err := p.evalArgs(f, 0)
	if !done {
		return err
	}
	left, err := value.ToBool(f.vals[0])
	if err != nil {
		return err
	}
	if f.node.Cmd == opcode.And && !left {
		p.complete(value.Bool(false))
		return nil
	}
	if f.node.Cmd == opcode.Or && left {
		p.complete(value.Bool(true))
		return nil
	}

	done, err = p.evalArgs(f, 0, 1)
	if !done {
		return err
	}
	right, err := value.ToBool(f.vals[1])
	if err != nil {
		return err
	}
	p.complete(value.Bool(right))
	return nil
}

func secondsToDuration(secs float64) time.Duration {
	d := secs * float64(time.Second)
	if d >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(d)
}
