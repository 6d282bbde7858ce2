package merge

import (
	"fmt"

	"github.com/Fuabioo/json-merger/internal/jsonvalue"
	"github.com/Fuabioo/json-merger/internal/sanitize"
)

// Status identifies the variant of an Outcome.
type Status int

const (
	// StatusEmpty means no fragment produced a mergeable object.
	StatusEmpty Status = iota
	// StatusMerged means at least one object was merged.
	StatusMerged
	// StatusParseFailure means a fragment could not be parsed.
	StatusParseFailure
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusMerged:
		return "merged"
	case StatusParseFailure:
		return "parse_failure"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the result of MergeAll.
type Outcome struct {
	Status Status

	// Value is the merged object. Set only for StatusMerged.
	Value jsonvalue.Value

	// Position and Message describe a parse failure. Position is 1-based
	// over the non-blank fragments.
	Position int
	Message  string

	// Skipped lists the positions of fragments that parsed to something
	// other than an object. Skipping is not an error.
	Skipped []int

	// Considered is the number of non-blank fragments seen before the
	// pipeline finished or stopped.
	Considered int
}

// Merged reports whether the outcome carries a merged value.
func (o Outcome) Merged() bool { return o.Status == StatusMerged }

// Failed reports whether the outcome is a parse failure.
func (o Outcome) Failed() bool { return o.Status == StatusParseFailure }

// FailureMessage renders a parse failure the way it is shown to users. It
// returns an empty string for other outcomes.
func (o Outcome) FailureMessage() string {
	if o.Status != StatusParseFailure {
		return ""
	}
	return fmt.Sprintf("Parse Error in Input %d: %s", o.Position, o.Message)
}

// NonBlank returns the fragments that contain something other than
// whitespace, in their original order.
func NonBlank(fragments []string) []string {
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if sanitize.IsBlank(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// MergeAll sanitizes, parses and folds fragments into one object. Earlier
// fragments win. Blank fragments are ignored and do not count towards
// positions. The first parse failure stops the fold and no partial result is
// returned. Fragments that are valid JSON but not objects are skipped.
func MergeAll(fragments []string) Outcome {
	inputs := NonBlank(fragments)

	var (
		acc     jsonvalue.Value
		found   bool
		skipped []int
	)

	for i, raw := range inputs {
		pos := i + 1

		v, err := jsonvalue.Parse(sanitize.Sanitize(raw))
		if err != nil {
			return Outcome{
				Status:     StatusParseFailure,
				Position:   pos,
				Message:    err.Error(),
				Considered: pos,
			}
		}

		if !v.IsObject() {
			skipped = append(skipped, pos)
			continue
		}

		if !found {
			acc = v
			found = true
			continue
		}
		acc = DeepMerge(acc, v)
	}

	if !found {
		return Outcome{Status: StatusEmpty, Skipped: skipped, Considered: len(inputs)}
	}
	return Outcome{Status: StatusMerged, Value: acc, Skipped: skipped, Considered: len(inputs)}
}
