package jsonvalue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultIndent is the indentation used for human-facing output.
const DefaultIndent = "  "

// MarshalJSON encodes v as compact JSON. HTML characters are not escaped.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, "", "", 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Indent encodes v with one indent unit per nesting level. It uses
// DefaultIndent when indent is empty. Empty objects and arrays render as
// {} and [].
func Indent(v Value, indent string) ([]byte, error) {
	if indent == "" {
		indent = DefaultIndent
	}
	var buf bytes.Buffer
	if err := encode(&buf, v, "\n", indent, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Spaces returns an indent unit of n spaces. Non-positive n yields DefaultIndent.
func Spaces(n int) string {
	if n <= 0 {
		return DefaultIndent
	}
	return strings.Repeat(" ", n)
}

func encode(buf *bytes.Buffer, v Value, newline, indent string, depth int) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		if !json.Valid([]byte(v.s)) {
			return fmt.Errorf("jsonvalue: invalid number literal %q", v.s)
		}
		buf.WriteString(v.s)
	case KindString:
		if err := encodeString(buf, v.s); err != nil {
			return err
		}
	case KindArray:
		if len(v.items) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeBreak(buf, newline, indent, depth+1)
			if err := encode(buf, item, newline, indent, depth+1); err != nil {
				return err
			}
		}
		writeBreak(buf, newline, indent, depth)
		buf.WriteByte(']')
	case KindObject:
		if len(v.members) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeBreak(buf, newline, indent, depth+1)
			if err := encodeString(buf, m.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if newline != "" {
				buf.WriteByte(' ')
			}
			if err := encode(buf, m.Value, newline, indent, depth+1); err != nil {
				return err
			}
		}
		writeBreak(buf, newline, indent, depth)
		buf.WriteByte('}')
	default:
		return fmt.Errorf("jsonvalue: unknown kind %v", v.kind)
	}
	return nil
}

func writeBreak(buf *bytes.Buffer, newline, indent string, depth int) {
	if newline == "" {
		return
	}
	buf.WriteString(newline)
	for range depth {
		buf.WriteString(indent)
	}
}

func encodeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("jsonvalue: encode string: %w", err)
	}
	// Encode always appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
