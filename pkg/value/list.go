package value

import (
	"sync"
)

// List is a mutable, shared sequence of values.
// Lists are passed by reference: every Value holding the same *List sees
// the same items, and a list may contain itself.
// Indices in the public methods are 1-based.
type List struct {
	items []Value
	mu    sync.RWMutex
}

// NewList creates an empty list.
func NewList() *List {
	return &List{}
}

// NewListFrom creates a list holding a copy of items.
func NewListFrom(items []Value) *List {
	cp := make([]Value, len(items))
	copy(cp, items)
	return &List{items: cp}
}

// Len returns the number of items.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Get returns the item at a 1-based index.
func (l *List) Get(index int) (Value, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index < 1 || index > len(l.items) {
		return Void(), NewIndexError(index, len(l.items))
	}
	return l.items[index-1], nil
}

// Set replaces the item at a 1-based index.
func (l *List) Set(index int, v Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 1 || index > len(l.items) {
		return NewIndexError(index, len(l.items))
	}
	l.items[index-1] = v
	return nil
}

// Append adds an item at the end.
func (l *List) Append(v Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, v)
}

// Insert places an item before a 1-based index; Len()+1 appends.
func (l *List) Insert(index int, v Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 1 || index > len(l.items)+1 {
		return NewIndexError(index, len(l.items))
	}
	l.items = append(l.items, Value{})
	copy(l.items[index:], l.items[index-1:])
	l.items[index-1] = v
	return nil
}

// Delete removes the item at a 1-based index and shifts the rest down.
func (l *List) Delete(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 1 || index > len(l.items) {
		return NewIndexError(index, len(l.items))
	}
	l.items = append(l.items[:index-1], l.items[index:]...)
	return nil
}

// Clear removes every item.
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
}

// Items returns a copy of the items.
func (l *List) Items() []Value {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]Value, len(l.items))
	copy(result, l.items)
	return result
}

// Copy returns a new list holding the same items (shallow copy).
func (l *List) Copy() *List {
	return NewListFrom(l.Items())
}

// DeepCopy returns a copy in which every reachable list is duplicated.
// Sharing and cycles are reproduced in the copy.
func (l *List) DeepCopy() *List {
	return deepCopyList(l, make(map[*List]*List))
}

func deepCopyList(src *List, memo map[*List]*List) *List {
	if dst, ok := memo[src]; ok {
		return dst
	}
	dst := NewList()
	memo[src] = dst

	items := src.Items()
	copied := make([]Value, len(items))
	for i, item := range items {
		if inner, ok := item.List(); ok {
			copied[i] = ListValue(deepCopyList(inner, memo))
			continue
		}
		copied[i] = item
	}
	dst.items = copied
	return dst
}

// DeepCopy copies v; lists are copied deeply, everything else is returned as is.
func DeepCopy(v Value) Value {
	if l, ok := v.List(); ok {
		return ListValue(l.DeepCopy())
	}
	return v
}
