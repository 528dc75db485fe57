package vm

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zurustar/blox/pkg/value"
)

// callBuiltin invokes a default builtin outside of any process.
func callBuiltin(name string, args ...value.Value) (value.Value, error) {
	s := New(NewProject("builtins"), newMockHost(), WithLogger(discardLogger()))
	return s.builtins[name](nil, args)
}

func numberList(xs []float64) value.Value {
	items := make([]value.Value, len(xs))
	for i, x := range xs {
		items[i] = value.Number(x)
	}
	return value.ListValue(value.NewListFrom(items))
}

func TestProperty_ListBuiltins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("reverse twice gives the same items", prop.ForAll(
		func(xs []float64) bool {
			in := numberList(xs)
			once, err := callBuiltin("reverse", in)
			if err != nil {
				return false
			}
			twice, err := callBuiltin("reverse", once)
			return err == nil && value.DeepEqual(in, twice)
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
	))

	properties.Property("sort keeps every item and orders them", prop.ForAll(
		func(xs []float64) bool {
			sorted, err := callBuiltin("sort", numberList(xs))
			if err != nil {
				return false
			}
			l, _ := sorted.List()
			if l.Len() != len(xs) {
				return false
			}
			items := l.Items()
			for i := 1; i < len(items); i++ {
				if c, _ := value.Compare(items[i-1], items[i]); c > 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
	))

	properties.Property("sort does not modify its argument", prop.ForAll(
		func(xs []float64) bool {
			in := numberList(xs)
			before := value.DeepCopy(in)
			if _, err := callBuiltin("sort", in); err != nil {
				return false
			}
			return value.DeepEqual(in, before)
		},
		gen.SliceOf(gen.Float64Range(-100, 100)),
	))

	properties.TestingRun(t)
}

func TestProperty_TextBuiltins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("length counts characters", prop.ForAll(
		func(s string) bool {
			n, err := callBuiltin("length", value.Text(s))
			if err != nil {
				return false
			}
			got, _ := value.ToNumber(n)
			return int(got) == utf8.RuneCountInString(s)
		},
		gen.UnicodeString(unicode.Hiragana),
	))

	properties.Property("split by letter gives one item per character", prop.ForAll(
		func(s string) bool {
			parts, err := callBuiltin("split", value.Text(s), value.Text("letter"))
			if err != nil {
				return false
			}
			l, _ := parts.List()
			var b strings.Builder
			for _, item := range l.Items() {
				b.WriteString(item.String())
			}
			return l.Len() == utf8.RuneCountInString(s) && b.String() == s
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
