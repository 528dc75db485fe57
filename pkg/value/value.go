// Package value implements the dynamically typed values manipulated by
// blox scripts: numbers, text, booleans, shared lists, closures and entity
// references, together with the scope chain that binds names to them.
package value

import (
	"fmt"
	"math"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindNumber
	KindText
	KindBool
	KindList
	KindClosure
	KindEntity
)

// String returns the kind name as shown in error messages.
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "nothing"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "boolean"
	case KindList:
		return "list"
	case KindClosure:
		return "closure"
	case KindEntity:
		return "entity"
	default:
		return "unknown"
	}
}

// EntityRef is a handle to a scriptable object.
type EntityRef interface {
	EntityName() string
}

// Value is an immutable tagged value. Lists and closures are held by
// reference, so copying a Value shares the underlying list.
// The zero Value is Void.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	ref  any
}

// Void returns the empty value.
func Void() Value { return Value{} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// ListValue wraps a list. A nil list becomes an empty list.
func ListValue(l *List) Value {
	if l == nil {
		l = NewList()
	}
	return Value{kind: KindList, ref: l}
}

// ClosureValue wraps a closure.
func ClosureValue(c *Closure) Value { return Value{kind: KindClosure, ref: c} }

// EntityValue wraps an entity reference.
func EntityValue(e EntityRef) Value { return Value{kind: KindEntity, ref: e} }

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsVoid reports whether v is the empty value.
func (v Value) IsVoid() bool { return v.kind == KindVoid }

// List returns the list held by v.
func (v Value) List() (*List, bool) {
	l, ok := v.ref.(*List)
	return l, ok && v.kind == KindList
}

// Closure returns the closure held by v.
func (v Value) Closure() (*Closure, bool) {
	c, ok := v.ref.(*Closure)
	return c, ok && v.kind == KindClosure
}

// Entity returns the entity held by v.
func (v Value) Entity() (EntityRef, bool) {
	e, ok := v.ref.(EntityRef)
	return e, ok && v.kind == KindEntity
}

// String returns the display form of v. It never fails, even for cyclic lists.
func (v Value) String() string {
	return Format(v)
}

// FromGo converts a literal embedded in a block tree (or handed over by a
// host) into a Value.
func FromGo(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Void(), nil
	case Value:
		return t, nil
	case float64:
		if math.IsNaN(t) {
			return Void(), NewTypeError("literal is not a number")
		}
		return Number(t), nil
	case float32:
		return FromGo(float64(t))
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case string:
		return Text(t), nil
	case bool:
		return Bool(t), nil
	case *List:
		return ListValue(t), nil
	case *Closure:
		return ClosureValue(t), nil
	case EntityRef:
		return EntityValue(t), nil
	case []any:
		l := NewList()
		for _, item := range t {
			iv, err := FromGo(item)
			if err != nil {
				return Void(), err
			}
			l.Append(iv)
		}
		return ListValue(l), nil
	case []Value:
		return ListValue(NewListFrom(t)), nil
	default:
		return Void(), NewTypeError("unsupported literal %T", x)
	}
}

// MustFromGo is like FromGo but panics on error. Intended for tests and
// static tables.
func MustFromGo(x any) Value {
	v, err := FromGo(x)
	if err != nil {
		panic(fmt.Sprintf("value: %v", err))
	}
	return v
}
