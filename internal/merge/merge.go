// Package merge folds JSON objects together with first-wins precedence.
package merge

import "github.com/Fuabioo/json-merger/internal/jsonvalue"

// DeepMerge combines source into target, with target winning every conflict.
//
// A non-object target is returned as is, whatever source is. An object target
// is returned as is when source is not an object. When both are objects the
// result holds every target key in its original order, with shared keys
// resolved recursively, followed by source-only keys in source order.
// Neither argument is modified.
//
// DeepMerge is associative when every operand is an object at every shared
// key path. It is not associative in general because the short-circuit only
// looks at the target's shape.
func DeepMerge(target, source jsonvalue.Value) jsonvalue.Value {
	if !target.IsObject() {
		return target
	}
	if !source.IsObject() {
		return target
	}

	tm := target.Members()
	out := jsonvalue.NewObjectBuilder(len(tm) + source.Len())
	for _, m := range tm {
		out.Set(m.Key, m.Value)
	}

	for _, m := range source.Members() {
		if existing, ok := out.Get(m.Key); ok {
			out.Set(m.Key, DeepMerge(existing, m.Value))
			continue
		}
		out.Set(m.Key, m.Value)
	}

	return out.Build()
}
