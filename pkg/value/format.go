package value

import (
	"strings"
)

// Format renders v for display. A list that is already being printed
// further up the current path prints as [...].
func Format(v Value) string {
	var sb strings.Builder
	format(&sb, v, make(map[*List]bool))
	return sb.String()
}

func format(sb *strings.Builder, v Value, onPath map[*List]bool) {
	switch v.kind {
	case KindList:
		l := v.ref.(*List)
		if onPath[l] {
			sb.WriteString("[...]")
			return
		}
		onPath[l] = true
		sb.WriteByte('[')
		for i, item := range l.Items() {
			if i > 0 {
				sb.WriteByte(',')
			}
			format(sb, item, onPath)
		}
		sb.WriteByte(']')
		delete(onPath, l)
	case KindClosure:
		c := v.ref.(*Closure)
		if c.Name != "" {
			sb.WriteString("<closure " + c.Name + ">")
		} else {
			sb.WriteString("<closure>")
		}
	case KindEntity:
		sb.WriteString(v.ref.(EntityRef).EntityName())
	default:
		sb.WriteString(textOf(v))
	}
}
