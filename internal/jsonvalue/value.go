package jsonvalue

import "fmt"

// Kind identifies which variant of the JSON union a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable JSON value. The zero Value is null.
//
// Objects keep their members in insertion order. Numbers keep the literal
// text they were parsed from, so no precision is lost on a round trip.
type Value struct {
	kind    Kind
	b       bool
	s       string // string contents or number literal
	items   []Value
	members []Member
}

// Null returns the JSON null value.
func Null() Value { return Value{} }

// Bool returns a JSON boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a JSON number from its literal text (e.g. "1", "-2.5e3").
// The literal is not validated here; Parse only produces valid literals.
func Number(literal string) Value { return Value{kind: KindNumber, s: literal} }

// String returns a JSON string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns a JSON array holding a copy of items.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, items: cp}
}

// Object returns a JSON object holding a copy of members, in the given order.
// A repeated key replaces the earlier value but keeps the earlier position.
func Object(members ...Member) Value {
	b := NewObjectBuilder(len(members))
	for _, m := range members {
		b.Set(m.Key, m.Value)
	}
	return b.Build()
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsObject reports whether v is a mergeable object. Arrays and null are not.
func (v Value) IsObject() bool { return v.kind == KindObject }

// BoolValue returns the boolean held by v, or false for other kinds.
func (v Value) BoolValue() bool { return v.b }

// Text returns the string contents for strings and the literal for numbers.
func (v Value) Text() string { return v.s }

// Len returns the number of array elements or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	}
	return 0
}

// Items returns a copy of the array elements.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp
}

// Members returns a copy of the object members in order.
func (v Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}
	cp := make([]Member, len(v.members))
	copy(cp, v.members)
	return cp
}

// Keys returns the object keys in order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, len(v.members))
	for i, m := range v.members {
		keys[i] = m.Key
	}
	return keys
}

// Get returns the value stored under key and whether it exists.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	if i := indexOf(v.members, key); i >= 0 {
		return v.members[i].Value, true
	}
	return Value{}, false
}

// Equal reports whether v and o are the same JSON value. Object member order
// is significant. Numbers compare by literal text.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber, KindString:
		return v.s == o.s
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.members) != len(o.members) {
			return false
		}
		for i := range v.members {
			if v.members[i].Key != o.members[i].Key || !v.members[i].Value.Equal(o.members[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v as compact JSON. Intended for logs and test failures.
func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid json: %v>", err)
	}
	return string(data)
}

func indexOf(members []Member, key string) int {
	for i, m := range members {
		if m.Key == key {
			return i
		}
	}
	return -1
}

// ObjectBuilder assembles an object member by member with O(1) key lookup.
type ObjectBuilder struct {
	members []Member
	index   map[string]int
}

// NewObjectBuilder returns an empty builder sized for n members.
func NewObjectBuilder(n int) *ObjectBuilder {
	return &ObjectBuilder{
		members: make([]Member, 0, n),
		index:   make(map[string]int, n),
	}
}

// Set stores val under key. An existing key keeps its position.
func (b *ObjectBuilder) Set(key string, val Value) {
	if i, ok := b.index[key]; ok {
		b.members[i].Value = val
		return
	}
	b.index[key] = len(b.members)
	b.members = append(b.members, Member{Key: key, Value: val})
}

// Get returns the value currently stored under key.
func (b *ObjectBuilder) Get(key string) (Value, bool) {
	i, ok := b.index[key]
	if !ok {
		return Value{}, false
	}
	return b.members[i].Value, true
}

// Build returns the assembled object. The builder is reset afterwards so the
// returned Value cannot be changed through it.
func (b *ObjectBuilder) Build() Value {
	v := Value{kind: KindObject, members: b.members}
	if v.members == nil {
		v.members = []Member{}
	}
	b.members = nil
	b.index = make(map[string]int)
	return v
}
