package vm

import (
	"strings"
	"unicode/utf8"

	"github.com/zurustar/blox/pkg/value"
)

// registerStringBuiltins registers text and conversion built-in functions.
func (s *Scheduler) registerStringBuiltins() {
	// length: number of characters in text
	s.RegisterBuiltinFunction("length", func(p *Process, args []value.Value) (value.Value, error) {
		text, err := textArg("length", args, 0)
		if err != nil {
			return value.Void(), err
		}
		return value.Number(float64(utf8.RuneCountInString(text))), nil
	})

	// letter(i, text): the i-th character, 1-based; "" when out of range
	s.RegisterBuiltinFunction("letter", func(p *Process, args []value.Value) (value.Value, error) {
		text, err := textArg("letter", args, 1)
		if err != nil {
			return value.Void(), err
		}
		runes := []rune(text)
		i, err := value.ToIndex(args[0], len(runes))
		if err != nil {
			return value.Void(), err
		}
		if i < 1 || i > len(runes) {
			return value.Text(""), nil
		}
		return value.Text(string(runes[i-1])), nil
	})

	// split(text, sep): list of parts. The separators "letter", "line",
	// "tab" and "whitespace" are recognised by name.
	s.RegisterBuiltinFunction("split", func(p *Process, args []value.Value) (value.Value, error) {
		text, err := textArg("split", args, 0)
		if err != nil {
			return value.Void(), err
		}
		sep, err := textArg("split", args, 1)
		if err != nil {
			return value.Void(), err
		}

		var parts []string
		switch sep {
		case "letter", "":
			for _, r := range text {
				parts = append(parts, string(r))
			}
		case "line":
			parts = strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
		case "tab":
			parts = strings.Split(text, "\t")
		case "whitespace":
			parts = strings.Fields(text)
		default:
			parts = strings.Split(text, sep)
		}

		items := make([]value.Value, len(parts))
		for i, part := range parts {
			items[i] = value.Text(part)
		}
		return value.ListValue(value.NewListFrom(items)), nil
	})

	// upper: text in upper case
	s.RegisterBuiltinFunction("upper", func(p *Process, args []value.Value) (value.Value, error) {
		text, err := textArg("upper", args, 0)
		if err != nil {
			return value.Void(), err
		}
		return value.Text(strings.ToUpper(text)), nil
	})

	// lower: text in lower case
	s.RegisterBuiltinFunction("lower", func(p *Process, args []value.Value) (value.Value, error) {
		text, err := textArg("lower", args, 0)
		if err != nil {
			return value.Void(), err
		}
		return value.Text(strings.ToLower(text)), nil
	})

	// unicode: code point of the first character
	s.RegisterBuiltinFunction("unicode", func(p *Process, args []value.Value) (value.Value, error) {
		text, err := textArg("unicode", args, 0)
		if err != nil {
			return value.Void(), err
		}
		r, size := utf8.DecodeRuneInString(text)
		if size == 0 {
			return value.Number(0), nil
		}
		return value.Number(float64(r)), nil
	})

	// unicodeAsLetter: character for a code point
	s.RegisterBuiltinFunction("unicodeAsLetter", func(p *Process, args []value.Value) (value.Value, error) {
		if len(args) < 1 {
			return value.Void(), value.NewTypeError("unicodeAsLetter requires 1 argument")
		}
		n, err := value.ToNumber(args[0])
		if err != nil {
			return value.Void(), err
		}
		r := rune(n)
		if float64(r) != n || !utf8.ValidRune(r) {
			return value.Void(), value.NewTypeError("unicodeAsLetter: %s is not a code point", value.FormatNumber(n))
		}
		return value.Text(string(r)), nil
	})

	// textContains(text, part): caseless substring test
	s.RegisterBuiltinFunction("textContains", func(p *Process, args []value.Value) (value.Value, error) {
		text, err := textArg("textContains", args, 0)
		if err != nil {
			return value.Void(), err
		}
		part, err := textArg("textContains", args, 1)
		if err != nil {
			return value.Void(), err
		}
		return value.Bool(strings.Contains(strings.ToLower(text), strings.ToLower(part))), nil
	})

	// typeOf: kind name of a value
	s.RegisterBuiltinFunction("typeOf", func(p *Process, args []value.Value) (value.Value, error) {
		if len(args) < 1 {
			return value.Text(value.KindVoid.String()), nil
		}
		return value.Text(args[0].Kind().String()), nil
	})

	// isNumber: whether the value can be used as a number
	s.RegisterBuiltinFunction("isNumber", func(p *Process, args []value.Value) (value.Value, error) {
		if len(args) < 1 {
			return value.Bool(false), nil
		}
		return value.Bool(value.IsNumeric(args[0])), nil
	})

	// jsonEncode: JSON text of a value
	s.RegisterBuiltinFunction("jsonEncode", func(p *Process, args []value.Value) (value.Value, error) {
		if len(args) < 1 {
			return value.Void(), value.NewTypeError("jsonEncode requires 1 argument")
		}
		data, err := value.ToJSON(args[0])
		if err != nil {
			return value.Void(), err
		}
		return value.Text(string(data)), nil
	})

	// jsonDecode: value of JSON text; objects become lists of [key, value]
	s.RegisterBuiltinFunction("jsonDecode", func(p *Process, args []value.Value) (value.Value, error) {
		text, err := textArg("jsonDecode", args, 0)
		if err != nil {
			return value.Void(), err
		}
		v, err := value.FromJSON([]byte(text))
		if err != nil {
			return value.Void(), value.NewTypeError("jsonDecode: %v", err)
		}
		return v, nil
	})
}

// textArg returns args[i] as text.
func textArg(name string, args []value.Value, i int) (string, error) {
	if i >= len(args) {
		return "", value.NewTypeError("%s requires %d arguments", name, i+1)
	}
	return value.ToText(args[i])
}
