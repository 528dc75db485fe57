package value

import (
	"github.com/zurustar/blox/pkg/opcode"
)

// Closure is a block body together with the context it was created in.
// The captured scope is shared, not copied: a closure observes later
// changes to the variables it closed over.
type Closure struct {
	Name     string // procedure name, or "" for an anonymous ring
	Params   []string
	Body     any // opcode.OpCode (reporter) or opcode.Script (command)
	Captured *Scope
	Owner    EntityRef // entity the closure runs as; may be nil
	Warp     bool      // body runs as an atomic region
}

// IsReporter reports whether the body is a single reporter block.
func (c *Closure) IsReporter() bool {
	switch c.Body.(type) {
	case opcode.Script, nil:
		return false
	default:
		return true
	}
}

// Bind creates the call scope for an invocation: a fresh scope chained to
// the captured context with each parameter bound to its argument.
// Missing arguments are bound to Void.
func (c *Closure) Bind(args []Value) (*Scope, error) {
	if len(args) > len(c.Params) {
		return nil, NewTypeError("%s expects %d inputs, got %d", c.label(), len(c.Params), len(args))
	}
	sc := NewScope(c.Captured)
	for i, p := range c.Params {
		if i < len(args) {
			sc.Define(p, args[i])
		} else {
			sc.Define(p, Void())
		}
	}
	return sc, nil
}

func (c *Closure) label() string {
	if c.Name != "" {
		return c.Name
	}
	return "closure"
}
