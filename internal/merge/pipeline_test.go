package merge

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeAllFirstWins(t *testing.T) {
	out := MergeAll([]string{`{"a":1,"b":2}`, `{"a":9,"c":3}`})

	if out.Status != StatusMerged {
		t.Fatalf("Status = %v, want merged", out.Status)
	}
	if got, want := out.Value.String(), `{"a":1,"b":2,"c":3}`; got != want {
		t.Errorf("Value = %s, want %s", got, want)
	}
}

func TestMergeAllSkipsNonObjects(t *testing.T) {
	out := MergeAll([]string{`[1,2,3]`, `{"a":1}`, `"str"`, `42`, `null`, `true`})

	if out.Status != StatusMerged {
		t.Fatalf("Status = %v, want merged", out.Status)
	}
	if got, want := out.Value.String(), `{"a":1}`; got != want {
		t.Errorf("Value = %s, want %s", got, want)
	}
	if diff := cmp.Diff([]int{1, 3, 4, 5, 6}, out.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeAllParseFailureHalts(t *testing.T) {
	out := MergeAll([]string{`{"a":1}`, `{bad json`, `{"c":3}`})

	if out.Status != StatusParseFailure {
		t.Fatalf("Status = %v, want parse_failure", out.Status)
	}
	if out.Position != 2 {
		t.Errorf("Position = %d, want 2", out.Position)
	}
	if out.Message == "" {
		t.Error("Message is empty")
	}
	if out.Value.IsObject() {
		t.Errorf("partial result returned: %v", out.Value)
	}
	if out.Considered != 2 {
		t.Errorf("Considered = %d, want 2", out.Considered)
	}
	if !strings.HasPrefix(out.FailureMessage(), "Parse Error in Input 2: ") {
		t.Errorf("FailureMessage() = %q", out.FailureMessage())
	}
}

func TestMergeAllPositionCountsNonBlankOnly(t *testing.T) {
	out := MergeAll([]string{"", `{"a":1}`, "   \n", `{oops`})

	if out.Status != StatusParseFailure {
		t.Fatalf("Status = %v, want parse_failure", out.Status)
	}
	if out.Position != 2 {
		t.Errorf("Position = %d, want 2 (blank slots are not counted)", out.Position)
	}
}

func TestMergeAllEmpty(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
	}{
		{"nil", nil},
		{"all blank", []string{"", "   "}},
		{"only non-objects", []string{`[1]`, `"x"`, `null`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := MergeAll(tt.fragments)
			if out.Status != StatusEmpty {
				t.Errorf("Status = %v, want empty", out.Status)
			}
			if out.FailureMessage() != "" {
				t.Errorf("FailureMessage() = %q, want empty", out.FailureMessage())
			}
		})
	}
}

func TestMergeAllSanitizesEachFragment(t *testing.T) {
	out := MergeAll([]string{
		"{\n  name: \"first\",\n  tags: [\"a\",],\n}",
		"{name: \"second\", extra: {deep: true,},}",
	})

	if out.Status != StatusMerged {
		t.Fatalf("Status = %v (%s), want merged", out.Status, out.Message)
	}
	if got, want := out.Value.String(), `{"name":"first","tags":["a"],"extra":{"deep":true}}`; got != want {
		t.Errorf("Value = %s, want %s", got, want)
	}
}

func TestMergeAllFirstObjectTakenVerbatim(t *testing.T) {
	out := MergeAll([]string{`{"a":1,"a":2}`})

	if out.Status != StatusMerged {
		t.Fatalf("Status = %v, want merged", out.Status)
	}
	if got, want := out.Value.String(), `{"a":2}`; got != want {
		t.Errorf("Value = %s, want %s", got, want)
	}
}

func TestMergeAllIsRepeatable(t *testing.T) {
	fragments := []string{`{b: {x: 1}}`, `{"a": [1,2,], "b": {"y": 2}}`, `{"c": null}`}

	first := MergeAll(fragments)
	second := MergeAll(fragments)
	if first.Value.String() != second.Value.String() {
		t.Errorf("repeated MergeAll differs: %v vs %v", first.Value, second.Value)
	}
	if fragments[0] != `{b: {x: 1}}` {
		t.Errorf("input slice modified: %q", fragments[0])
	}
}

func TestNonBlank(t *testing.T) {
	got := NonBlank([]string{"", "a", " \t\n", "b", "\u00a0\ufeff", ""})
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("NonBlank mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeAllPastedWhitespace(t *testing.T) {
	fragments := []string{
		"{\"a\":1,\u00a0}",
		"\u00a0\u3000",
		"{\u00a0b: 2,\v}",
	}

	out := MergeAll(fragments)
	if out.Status != StatusMerged {
		t.Fatalf("Status = %v (%s), want merged", out.Status, out.FailureMessage())
	}
	if got, want := out.Value.String(), `{"a":1,"b":2}`; got != want {
		t.Errorf("Value = %s, want %s", got, want)
	}
	if out.Considered != 2 {
		t.Errorf("Considered = %d, want 2", out.Considered)
	}
}

func TestStatusString(t *testing.T) {
	if got := StatusParseFailure.String(); got != "parse_failure" {
		t.Errorf("StatusParseFailure.String() = %q", got)
	}
	if got := Status(9).String(); got != "Status(9)" {
		t.Errorf("Status(9).String() = %q", got)
	}
}
