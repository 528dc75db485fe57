package vm

import (
	"math"

	"github.com/zurustar/blox/pkg/value"
)

// registerMathBuiltins registers math-related built-in functions.
func (s *Scheduler) registerMathBuiltins() {
	// sign: -1, 0 or 1
	s.RegisterBuiltinFunction("sign", func(p *Process, args []value.Value) (value.Value, error) {
		x, err := numberArg("sign", args, 0)
		if err != nil {
			return value.Void(), err
		}
		switch {
		case x > 0:
			return value.Number(1), nil
		case x < 0:
			return value.Number(-1), nil
		default:
			return value.Number(0), nil
		}
	})

	// hypot(x, y): length of the vector (x, y)
	s.RegisterBuiltinFunction("hypot", func(p *Process, args []value.Value) (value.Value, error) {
		x, err := numberArg("hypot", args, 0)
		if err != nil {
			return value.Void(), err
		}
		y, err := numberArg("hypot", args, 1)
		if err != nil {
			return value.Void(), err
		}
		return value.Number(math.Hypot(x, y)), nil
	})

	// clamp(x, lo, hi)
	s.RegisterBuiltinFunction("clamp", func(p *Process, args []value.Value) (value.Value, error) {
		x, err := numberArg("clamp", args, 0)
		if err != nil {
			return value.Void(), err
		}
		lo, err := numberArg("clamp", args, 1)
		if err != nil {
			return value.Void(), err
		}
		hi, err := numberArg("clamp", args, 2)
		if err != nil {
			return value.Void(), err
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		return value.Number(math.Max(lo, math.Min(hi, x))), nil
	})

	// isInteger: whether the value is a whole number
	s.RegisterBuiltinFunction("isInteger", func(p *Process, args []value.Value) (value.Value, error) {
		if len(args) < 1 || !value.IsNumeric(args[0]) {
			return value.Bool(false), nil
		}
		x, _ := value.ToNumber(args[0])
		return value.Bool(!math.IsInf(x, 0) && x == math.Trunc(x)), nil
	})

	// randomInt(lo, hi): integer in [lo, hi] from the host source
	s.RegisterBuiltinFunction("randomInt", func(p *Process, args []value.Value) (value.Value, error) {
		lo, err := numberArg("randomInt", args, 0)
		if err != nil {
			return value.Void(), err
		}
		hi, err := numberArg("randomInt", args, 1)
		if err != nil {
			return value.Void(), err
		}
		return p.random(value.Number(math.Ceil(lo)), value.Number(math.Floor(hi)))
	})
}

// numberArg returns args[i] as a number.
func numberArg(name string, args []value.Value, i int) (float64, error) {
	if i >= len(args) {
		return 0, value.NewTypeError("%s requires %d arguments", name, i+1)
	}
	return value.ToNumber(args[i])
}
