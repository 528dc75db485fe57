package vm

import (
	"slices"

	"github.com/zurustar/blox/pkg/value"
)

// registerListBuiltins registers list built-in functions. They never modify
// their argument; each returns a new list.
func (s *Scheduler) registerListBuiltins() {
	// reverse(list)
	s.RegisterBuiltinFunction("reverse", func(p *Process, args []value.Value) (value.Value, error) {
		l, err := listArg("reverse", args, 0)
		if err != nil {
			return value.Void(), err
		}
		items := l.Items()
		slices.Reverse(items)
		return value.ListValue(value.NewListFrom(items)), nil
	})

	// sort(list): ascending; numbers numerically, text caselessly
	s.RegisterBuiltinFunction("sort", func(p *Process, args []value.Value) (value.Value, error) {
		l, err := listArg("sort", args, 0)
		if err != nil {
			return value.Void(), err
		}
		items := l.Items()

		var cmpErr error
		slices.SortStableFunc(items, func(a, b value.Value) int {
			c, err := value.Compare(a, b)
			if err != nil && cmpErr == nil {
				cmpErr = err
			}
			return c
		})
		if cmpErr != nil {
			return value.Void(), cmpErr
		}
		return value.ListValue(value.NewListFrom(items)), nil
	})

	// sum(list)
	s.RegisterBuiltinFunction("sum", func(p *Process, args []value.Value) (value.Value, error) {
		l, err := listArg("sum", args, 0)
		if err != nil {
			return value.Void(), err
		}
		total := 0.0
		for _, item := range l.Items() {
			n, err := value.ToNumber(item)
			if err != nil {
				return value.Void(), err
			}
			total += n
		}
		return value.CheckNumber(total, "sum")
	})

	// flatten(list): items of nested lists, depth first. A list that
	// contains itself is flattened once.
	s.RegisterBuiltinFunction("flatten", func(p *Process, args []value.Value) (value.Value, error) {
		l, err := listArg("flatten", args, 0)
		if err != nil {
			return value.Void(), err
		}
		out := value.NewList()
		flattenInto(out, l, make(map[*value.List]bool))
		return value.ListValue(out), nil
	})
}

func flattenInto(out, l *value.List, seen map[*value.List]bool) {
	if seen[l] {
		return
	}
	seen[l] = true
	defer delete(seen, l)

	for _, item := range l.Items() {
		if inner, ok := item.List(); ok {
			flattenInto(out, inner, seen)
			continue
		}
		out.Append(item)
	}
}

func listArg(name string, args []value.Value, i int) (*value.List, error) {
	if i >= len(args) {
		return nil, value.NewTypeError("%s requires %d arguments", name, i+1)
	}
	return value.ToList(args[i])
}
