package value

import (
	"sync"
)

// slot is a single variable binding.
type slot struct {
	v Value
}

// Scope represents one level of the evaluation context.
// Scopes chain from the innermost (procedure call, script) outward to the
// entity fields and finally the project globals.
type Scope struct {
	vars   map[string]*slot
	parent *Scope
	mu     sync.RWMutex
}

// NewScope creates a new scope with an optional parent scope.
func NewScope(parent *Scope) *Scope {
	return &Scope{
		vars:   make(map[string]*slot),
		parent: parent,
	}
}

// lookup finds the slot bound to name, searching this scope first and then
// each parent in turn.
func (s *Scope) lookup(name string) (*slot, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		sc.mu.RLock()
		b, ok := sc.vars[name]
		sc.mu.RUnlock()
		if ok {
			return b, true
		}
	}
	return nil, false
}

// Get retrieves a variable value by name.
func (s *Scope) Get(name string) (Value, error) {
	b, ok := s.lookup(name)
	if !ok {
		return Void(), NewNameError(name)
	}
	return b.v, nil
}

// Set updates the nearest existing binding of name.
// Assigning to a name that was never declared is a NameError.
func (s *Scope) Set(name string, v Value) error {
	b, ok := s.lookup(name)
	if !ok {
		return NewNameError(name)
	}
	b.v = v
	return nil
}

// Define creates or replaces a binding in this scope, shadowing any binding
// of the same name further out.
func (s *Scope) Define(name string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.vars[name]; ok {
		b.v = v
		return
	}
	s.vars[name] = &slot{v: v}
}

// HasLocal reports whether name is bound in this scope only.
func (s *Scope) HasLocal(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[name]
	return ok
}
