package value

import (
	"strings"

	"golang.org/x/text/cases"
)

// fold returns the caseless form of s used by text comparison.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Identical reports reference identity: the same list or closure, or equal
// primitive values.
func Identical(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindList, KindClosure, KindEntity:
		return a.ref == b.ref
	case KindNumber:
		return a.num == b.num
	case KindText:
		return a.str == b.str
	case KindBool:
		return a.b == b.b
	default:
		return true
	}
}

// Equal implements the "=" block. Numbers and numeric text compare
// numerically, other text compares without regard to case, and lists,
// closures and entities compare by identity.
func Equal(a, b Value) bool {
	if isReference(a) || isReference(b) {
		return a.kind == b.kind && a.ref == b.ref
	}
	if a.kind == KindBool || b.kind == KindBool {
		return a.kind == b.kind && a.b == b.b
	}
	if a.kind == KindVoid || b.kind == KindVoid {
		return textOf(a) == textOf(b)
	}
	if IsNumeric(a) && IsNumeric(b) {
		x, _ := ToNumber(a)
		y, _ := ToNumber(b)
		return x == y
	}
	return fold(textOf(a)) == fold(textOf(b))
}

// DeepEqual is like Equal but compares lists item by item. A pair of lists
// already under comparison is taken as equal, so cyclic lists terminate.
func DeepEqual(a, b Value) bool {
	return deepEqual(a, b, make(map[[2]*List]bool))
}

func deepEqual(a, b Value, visiting map[[2]*List]bool) bool {
	la, okA := a.List()
	lb, okB := b.List()
	if !okA || !okB {
		return Equal(a, b)
	}
	if la == lb {
		return true
	}
	key := [2]*List{la, lb}
	if visiting[key] {
		return true
	}
	visiting[key] = true

	xs, ys := la.Items(), lb.Items()
	if len(xs) != len(ys) {
		return false
	}
	for i := range xs {
		if !deepEqual(xs[i], ys[i], visiting) {
			return false
		}
	}
	return true
}

// Compare orders two values for "<" and ">". Numeric operands compare
// numerically, text compares caselessly; anything else is a TypeError.
func Compare(a, b Value) (int, error) {
	if IsNumeric(a) && IsNumeric(b) {
		x, _ := ToNumber(a)
		y, _ := ToNumber(b)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		default:
			return 0, nil
		}
	}
	for _, v := range []Value{a, b} {
		if v.kind != KindText && v.kind != KindNumber {
			return 0, NewTypeError("cannot compare %s", v.kind)
		}
	}
	return strings.Compare(fold(textOf(a)), fold(textOf(b))), nil
}

func isReference(v Value) bool {
	return v.kind == KindList || v.kind == KindClosure || v.kind == KindEntity
}

// textOf renders primitives; callers have excluded reference kinds.
func textOf(v Value) string {
	s, _ := ToText(v)
	return s
}
