package vm

import (
	"math"

	"github.com/zurustar/blox/pkg/value"
)

// Trigonometry works in degrees, like the blocks it backs.
const degToRad = math.Pi / 180

func binaryOp(op string, a, b value.Value) (value.Value, error) {
	switch op {
	case "=":
		return value.Bool(value.Equal(a, b)), nil
	case "!=":
		return value.Bool(!value.Equal(a, b)), nil
	case "<", "<=", ">", ">=":
		c, err := value.Compare(a, b)
		if err != nil {
			return value.Void(), err
		}
		switch op {
		case "<":
			return value.Bool(c < 0), nil
		case "<=":
			return value.Bool(c <= 0), nil
		case ">":
			return value.Bool(c > 0), nil
		default:
			return value.Bool(c >= 0), nil
		}
	}

	x, err := value.ToNumber(a)
	if err != nil {
		return value.Void(), err
	}
	y, err := value.ToNumber(b)
	if err != nil {
		return value.Void(), err
	}

	var r float64
	switch op {
	case "+":
		r = x + y
	case "-":
		r = x - y
	case "*":
		r = x * y
	case "/":
		r = x / y
	case "%":
		// floored: the result takes the sign of the divisor
		r = x - y*math.Floor(x/y)
	case "^":
		r = math.Pow(x, y)
	case "min":
		r = math.Min(x, y)
	case "max":
		r = math.Max(x, y)
	case "atan2":
		r = math.Atan2(x, y) / degToRad
	default:
		return value.Void(), value.NewTypeError("unknown operator %q", op)
	}
	return value.CheckNumber(r, op)
}

func unaryOp(op string, a value.Value) (value.Value, error) {
	if op == "not" {
		b, err := value.ToBool(a)
		if err != nil {
			return value.Void(), err
		}
		return value.Bool(!b), nil
	}

	x, err := value.ToNumber(a)
	if err != nil {
		return value.Void(), err
	}

	var r float64
	switch op {
	case "neg":
		r = -x
	case "abs":
		r = math.Abs(x)
	case "sqrt":
		r = math.Sqrt(x)
	case "floor":
		r = math.Floor(x)
	case "ceil":
		r = math.Ceil(x)
	case "round":
		r = math.Floor(x + 0.5)
	case "sin":
		r = math.Sin(x * degToRad)
	case "cos":
		r = math.Cos(x * degToRad)
	case "tan":
		r = math.Tan(x * degToRad)
	case "asin":
		r = math.Asin(x) / degToRad
	case "acos":
		r = math.Acos(x) / degToRad
	case "atan":
		r = math.Atan(x) / degToRad
	case "ln":
		r = math.Log(x)
	case "log":
		r = math.Log10(x)
	case "exp":
		r = math.Exp(x)
	default:
		return value.Void(), value.NewTypeError("unknown operator %q", op)
	}
	return value.CheckNumber(r, op)
}
