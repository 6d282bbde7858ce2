package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Fuabioo/json-merger/internal/jsonvalue"
)

func parse(t *testing.T, text string) jsonvalue.Value {
	t.Helper()
	v, err := jsonvalue.Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	return v
}

func TestDeepMergeIdentity(t *testing.T) {
	objects := []string{
		`{}`,
		`{"a":1}`,
		`{"a":{"b":[1,2,{"c":null}]},"d":"x","e":true}`,
	}

	for _, text := range objects {
		t.Run(text, func(t *testing.T) {
			o := parse(t, text)
			got := DeepMerge(o, o)
			if !got.Equal(o) {
				t.Errorf("DeepMerge(O, O) = %v, want %v", got, o)
			}
		})
	}
}

func TestDeepMergeNonObjectTargetWins(t *testing.T) {
	targets := []string{`1`, `"s"`, `true`, `null`, `[1,2]`, `[]`}
	sources := []string{`{"a":1}`, `2`, `[3]`, `null`, `{}`}

	for _, tt := range targets {
		for _, st := range sources {
			t.Run(tt+"<-"+st, func(t *testing.T) {
				target := parse(t, tt)
				got := DeepMerge(target, parse(t, st))
				if !got.Equal(target) {
					t.Errorf("DeepMerge(%s, %s) = %v, want %v", tt, st, got, target)
				}
			})
		}
	}
}

func TestDeepMergeObjectWinsOverNonObjectSource(t *testing.T) {
	target := parse(t, `{"a":1}`)
	for _, st := range []string{`1`, `"s"`, `false`, `null`, `[{"b":2}]`} {
		t.Run(st, func(t *testing.T) {
			got := DeepMerge(target, parse(t, st))
			if !got.Equal(target) {
				t.Errorf("DeepMerge(%v, %s) = %v, want target", target, st, got)
			}
		})
	}
}

func TestDeepMergeEmptyObjectTargetStillMerges(t *testing.T) {
	got := DeepMerge(parse(t, `{}`), parse(t, `{"a":1}`))
	if want := `{"a":1}`; got.String() != want {
		t.Errorf("DeepMerge({}, {a:1}) = %v, want %s", got, want)
	}
}

func TestDeepMergeRecursivePrecedence(t *testing.T) {
	got := DeepMerge(parse(t, `{"a":{"x":1}}`), parse(t, `{"a":{"x":2,"y":3}}`))
	if want := `{"a":{"x":1,"y":3}}`; got.String() != want {
		t.Errorf("got %v, want %s", got, want)
	}
}

func TestDeepMergeConflictCases(t *testing.T) {
	tests := []struct {
		name   string
		target string
		source string
		want   string
	}{
		{"primitive over object", `{"a":1}`, `{"a":{"b":2}}`, `{"a":1}`},
		{"object over primitive", `{"a":{"b":2}}`, `{"a":1}`, `{"a":{"b":2}}`},
		{"arrays are not concatenated", `{"a":[1,2]}`, `{"a":[3,4,5]}`, `{"a":[1,2]}`},
		{"null target wins", `{"a":null}`, `{"a":{"b":1}}`, `{"a":null}`},
		{"array over object", `{"a":[1]}`, `{"a":{"b":1}}`, `{"a":[1]}`},
		{"deep three levels", `{"a":{"b":{"c":1}}}`, `{"a":{"b":{"c":2,"d":3},"e":4}}`, `{"a":{"b":{"c":1,"d":3},"e":4}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeepMerge(parse(t, tt.target), parse(t, tt.source))
			if got.String() != tt.want {
				t.Errorf("DeepMerge(%s, %s) = %v, want %s", tt.target, tt.source, got, tt.want)
			}
		})
	}
}

func TestDeepMergeKeyUnion(t *testing.T) {
	target := parse(t, `{"a":1,"b":{"c":2}}`)
	source := parse(t, `{"b":{"d":3},"e":4,"a":5}`)

	got := DeepMerge(target, source)
	for _, k := range append(target.Keys(), source.Keys()...) {
		if _, ok := got.Get(k); !ok {
			t.Errorf("key %q missing from %v", k, got)
		}
	}
}

func TestDeepMergeKeyOrder(t *testing.T) {
	target := parse(t, `{"z":1,"m":{"q":1,"p":2},"a":3}`)
	source := parse(t, `{"new2":0,"a":9,"m":{"n":1,"p":0},"new1":0}`)

	got := DeepMerge(target, source)

	if diff := cmp.Diff([]string{"z", "m", "a", "new2", "new1"}, got.Keys()); diff != "" {
		t.Errorf("top-level key order mismatch (-want +got):\n%s", diff)
	}
	m, _ := got.Get("m")
	if diff := cmp.Diff([]string{"q", "p", "n"}, m.Keys()); diff != "" {
		t.Errorf("nested key order mismatch (-want +got):\n%s", diff)
	}
}

func TestDeepMergeAssociativeOverObjects(t *testing.T) {
	a := parse(t, `{"x":{"y":1},"k":"a"}`)
	b := parse(t, `{"x":{"y":2,"z":2},"l":"b"}`)
	c := parse(t, `{"x":{"z":3,"w":3},"k":"c","m":"c"}`)

	left := DeepMerge(DeepMerge(a, b), c)
	right := DeepMerge(a, DeepMerge(b, c))
	if !left.Equal(right) {
		t.Errorf("(a+b)+c = %v, a+(b+c) = %v", left, right)
	}
}

func TestDeepMergeNotAssociativeWithMixedShapes(t *testing.T) {
	a := parse(t, `{"k":{"x":1}}`)
	b := parse(t, `{"k":[1]}`)
	c := parse(t, `{"k":{"y":2}}`)

	left := DeepMerge(DeepMerge(a, b), c)
	right := DeepMerge(a, DeepMerge(b, c))
	if left.Equal(right) {
		t.Errorf("expected mixed shapes to break associativity, both = %v", left)
	}
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	target := parse(t, `{"a":{"x":1}}`)
	source := parse(t, `{"a":{"y":2},"b":3}`)
	targetBefore := target.String()
	sourceBefore := source.String()

	_ = DeepMerge(target, source)

	if target.String() != targetBefore {
		t.Errorf("target mutated: %v, was %s", target, targetBefore)
	}
	if source.String() != sourceBefore {
		t.Errorf("source mutated: %v, was %s", source, sourceBefore)
	}
}
