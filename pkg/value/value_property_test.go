package value

import (
	"math"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildGraph creates n lists and wires them together according to edges,
// where each edge (i, j) appends list j to list i. Self edges and back
// edges produce cycles.
func buildGraph(n int, edges []int) []*List {
	lists := make([]*List, n)
	for i := range lists {
		lists[i] = NewList()
		lists[i].Append(Number(float64(i)))
	}
	for k := 0; k+1 < len(edges); k += 2 {
		from, to := edges[k]%n, edges[k+1]%n
		lists[from].Append(ListValue(lists[to]))
	}
	return lists
}

// TestProperty_CyclicListsTerminate checks that equality, printing and
// copying terminate on arbitrary list graphs, cycles included.
func TestProperty_CyclicListsTerminate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("a list is deep-equal to itself", prop.ForAll(
		func(n int, edges []int) bool {
			lists := buildGraph(n, edges)
			return DeepEqual(ListValue(lists[0]), ListValue(lists[0]))
		},
		gen.IntRange(1, 6),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.Property("printing terminates and marks revisited lists", prop.ForAll(
		func(n int, edges []int) bool {
			lists := buildGraph(n, edges)
			lists[0].Append(ListValue(lists[0]))
			s := Format(ListValue(lists[0]))
			return strings.HasPrefix(s, "[0") && strings.Contains(s, "[...]")
		},
		gen.IntRange(1, 6),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.Property("a deep copy is deep-equal to its source and shares nothing", prop.ForAll(
		func(n int, edges []int) bool {
			lists := buildGraph(n, edges)
			cp := lists[0].DeepCopy()
			if !DeepEqual(ListValue(lists[0]), ListValue(cp)) {
				return false
			}
			for _, item := range cp.Items() {
				if inner, ok := item.List(); ok {
					for _, orig := range lists {
						if inner == orig {
							return false
						}
					}
				}
			}
			return true
		},
		gen.IntRange(1, 6),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestProperty_NumberTextRoundTrip checks that every finite number survives
// conversion to text and back.
func TestProperty_NumberTextRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("FormatNumber output parses to the same number", prop.ForAll(
		func(f float64) bool {
			if math.IsNaN(f) {
				return true
			}
			got, err := ToNumber(Text(FormatNumber(f)))
			return err == nil && got == f
		},
		gen.Float64(),
	))

	properties.Property("numeric text equals its number", prop.ForAll(
		func(n int64) bool {
			return Equal(Number(float64(n)), Text(FormatNumber(float64(n))))
		},
		gen.Int64Range(-1<<40, 1<<40),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
