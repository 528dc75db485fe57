package value

import (
	"math"
	"strconv"
	"strings"
)

// ToNumber converts v for use in a numeric context.
// Text must hold a decimal number, optionally with a 0x, 0o or 0b integer
// prefix; anything else is a TypeError. Booleans are not numbers here,
// see ExplicitNumber.
func ToNumber(v Value) (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindText:
		f, ok := ParseNumber(v.str)
		if !ok {
			return 0, NewTypeError("expected a number, got text %q", v.str)
		}
		return f, nil
	default:
		return 0, NewTypeError("expected a number, got %s", v.kind)
	}
}

// ExplicitNumber is the conversion used by the "to number" block:
// like ToNumber, but true and false become 1 and 0.
func ExplicitNumber(v Value) (float64, error) {
	if v.kind == KindBool {
		if v.b {
			return 1, nil
		}
		return 0, nil
	}
	return ToNumber(v)
}

// ParseNumber parses number text. NaN is never accepted.
func ParseNumber(s string) (float64, bool) {
	if s == "" || strings.ContainsRune(s, '_') {
		return 0, false
	}

	body, neg := s, false
	switch body[0] {
	case '-':
		body, neg = body[1:], true
	case '+':
		body = body[1:]
	}
	if len(body) > 2 && body[0] == '0' {
		base := 0
		switch body[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(body[2:], base, 64)
			if err != nil {
				return 0, false
			}
			f := float64(n)
			if neg {
				f = -f
			}
			return f, true
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !isRangeErr(err) {
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// IsNumeric reports whether v can be used as a number without error.
func IsNumeric(v Value) bool {
	switch v.kind {
	case KindNumber:
		return true
	case KindText:
		_, ok := ParseNumber(v.str)
		return ok
	default:
		return false
	}
}

// CheckNumber rejects NaN results of arithmetic.
func CheckNumber(f float64, op string) (Value, error) {
	if math.IsNaN(f) {
		return Void(), NewTypeError("%s: result is not a number", op)
	}
	return Number(f), nil
}

// ToText converts v for use in a text context.
func ToText(v Value) (string, error) {
	switch v.kind {
	case KindText:
		return v.str, nil
	case KindNumber:
		return FormatNumber(v.num), nil
	case KindBool:
		return strconv.FormatBool(v.b), nil
	case KindVoid:
		return "", nil
	default:
		return "", NewTypeError("expected text, got %s", v.kind)
	}
}

// ToBool converts v for use as a condition. Only booleans qualify.
func ToBool(v Value) (bool, error) {
	if v.kind == KindBool {
		return v.b, nil
	}
	return false, NewTypeError("expected a boolean, got %s", v.kind)
}

// ToIndex converts v to a list index for a list of the given length.
// The text "last" selects the final item.
func ToIndex(v Value, length int) (int, error) {
	if v.kind == KindText && strings.EqualFold(v.str, "last") {
		return length, nil
	}
	f, err := ToNumber(v)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, NewTypeError("index must be a whole number, got %s", FormatNumber(f))
	}
	if f > float64(math.MaxInt32) || f < float64(math.MinInt32) {
		return 0, NewIndexError(math.MaxInt32, length)
	}
	return int(f), nil
}

// ToList returns the list held by v or a TypeError.
func ToList(v Value) (*List, error) {
	if l, ok := v.List(); ok {
		return l, nil
	}
	return nil, NewTypeError("expected a list, got %s", v.kind)
}

// ToClosure returns the closure held by v or a TypeError.
func ToClosure(v Value) (*Closure, error) {
	if c, ok := v.Closure(); ok {
		return c, nil
	}
	return nil, NewTypeError("expected a closure, got %s", v.kind)
}

// FormatNumber renders a number without exponent notation. Integers have
// no fractional part and infinities print as Infinity and -Infinity.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.IsNaN(f):
		return "NaN"
	case f == 0:
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
