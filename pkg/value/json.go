package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

var (
	// ErrCyclic is returned when a cyclic list is serialised.
	ErrCyclic = errors.New("value: cyclic list cannot be serialised")
	// ErrNull is returned when a JSON document contains null.
	ErrNull = errors.New("value: JSON null has no value")
)

// ToJSON serialises v. Lists become arrays and Void becomes the empty
// string; closures and entities cannot be serialised.
func ToJSON(v Value) ([]byte, error) {
	g, err := toGo(v, make(map[*List]bool))
	if err != nil {
		return nil, err
	}
	return json.Marshal(g)
}

func toGo(v Value, onPath map[*List]bool) (any, error) {
	switch v.kind {
	case KindVoid:
		return "", nil
	case KindNumber:
		if math.IsInf(v.num, 0) {
			return FormatNumber(v.num), nil
		}
		return v.num, nil
	case KindText:
		return v.str, nil
	case KindBool:
		return v.b, nil
	case KindList:
		l := v.ref.(*List)
		if onPath[l] {
			return nil, ErrCyclic
		}
		onPath[l] = true
		defer delete(onPath, l)

		items := l.Items()
		out := make([]any, len(items))
		for i, item := range items {
			g, err := toGo(item, onPath)
			if err != nil {
				return nil, err
			}
			out[i] = g
		}
		return out, nil
	default:
		return nil, NewTypeError("cannot serialise %s", v.kind)
	}
}

// FromJSON parses a JSON document. Objects become lists of [key, value]
// pairs in document order. A null anywhere in the document is an error.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Void(), err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Void(), fmt.Errorf("value: trailing data after JSON document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Void(), fmt.Errorf("value: invalid JSON: %w", err)
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			l := NewList()
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Void(), err
				}
				l.Append(item)
			}
			if _, err := dec.Token(); err != nil {
				return Void(), fmt.Errorf("value: invalid JSON: %w", err)
			}
			return ListValue(l), nil
		case '{':
			l := NewList()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Void(), fmt.Errorf("value: invalid JSON: %w", err)
				}
				key, _ := keyTok.(string)
				item, err := decodeValue(dec)
				if err != nil {
					return Void(), err
				}
				l.Append(ListValue(NewListFrom([]Value{Text(key), item})))
			}
			if _, err := dec.Token(); err != nil {
				return Void(), fmt.Errorf("value: invalid JSON: %w", err)
			}
			return ListValue(l), nil
		default:
			return Void(), fmt.Errorf("value: unexpected delimiter %v", t)
		}
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return Void(), fmt.Errorf("value: invalid number %s", t)
		}
		return Number(f), nil
	case string:
		return Text(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Void(), ErrNull
	default:
		return Void(), fmt.Errorf("value: unexpected token %v", tok)
	}
}
