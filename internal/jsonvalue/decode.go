package jsonvalue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Parse decodes exactly one strict JSON value from text.
//
// Object member order is preserved. A duplicate key keeps the position of
// its first occurrence and takes the value of its last. Anything other than
// whitespace after the value is an error.
func Parse(text string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return Value{}, err
		}
		return Value{}, fmt.Errorf("invalid character after top-level value at offset %d", dec.InputOffset())
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Value{}, io.ErrUnexpectedEOF
		}
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t.String()), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		}
		return Value{}, fmt.Errorf("unexpected delimiter %q at offset %d", rune(t), dec.InputOffset())
	}
	return Value{}, fmt.Errorf("unexpected token %T at offset %d", tok, dec.InputOffset())
}

func decodeObject(dec *json.Decoder) (Value, error) {
	b := NewObjectBuilder(0)
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, unexpectedEOF(err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return b.Build(), nil
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("object key is %T at offset %d", tok, dec.InputOffset())
		}
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		b.Set(key, val)
	}
}

func decodeArray(dec *json.Decoder) (Value, error) {
	items := []Value{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, unexpectedEOF(err)
		}
		if d, ok := tok.(json.Delim); ok && d == ']' {
			return Value{kind: KindArray, items: items}, nil
		}
		val, err := decodeToken(dec, tok)
		if err != nil {
			return Value{}, err
		}
		items = append(items, val)
	}
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
