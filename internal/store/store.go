package store

import (
	"time"
	"unicode/utf8"
)

// Outcome constants for MergeRun. They match merge.Status strings.
const (
	OutcomeMerged       = "merged"
	OutcomeEmpty        = "empty"
	OutcomeParseFailure = "parse_failure"
)

// Fragment status constants for FragmentRecord.
const (
	FragmentMerged  = "merged"
	FragmentSkipped = "skipped"
	FragmentFailed  = "failed"
	FragmentUnread  = "unread" // after a failure, never parsed
)

// Recorder records merge runs.
type Recorder interface {
	RecordRun(run MergeRun) error
	Close() error
}

// MergeRun represents one merge invocation.
type MergeRun struct {
	ID            int64
	RunID         string
	Timestamp     time.Time
	FragmentCount int
	Considered    int    // fragments read before the run finished or stopped
	Outcome       string // merged|empty|parse_failure
	Position      int    // failing fragment, 0 unless parse_failure
	Message       string
	ResultBytes   int
	DurationMs    int64
	Fragments     []FragmentRecord
}

// FragmentRecord represents one non-blank fragment within a run.
type FragmentRecord struct {
	ID       int64
	RunRowID int64
	Position int
	Source   string // file path, "-" for stdin, "flag" or "restored"
	Status   string // merged|skipped|failed|unread
	Bytes    int
}

// InputSet is a saved sequence of raw fragments.
type InputSet struct {
	ID        int64
	Timestamp time.Time
	Fragments []string
}

// Stats holds aggregate statistics from the store.
type Stats struct {
	TotalRuns      int64
	CountByOutcome map[string]int64
	AvgDurationMs  float64
	OldestEntry    time.Time
	NewestEntry    time.Time
	InputSets      int64
}

// Truncate truncates s to at most max bytes, appending "..." if truncated.
// The cut never splits a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	suffix := "..."
	if max <= len(suffix) {
		suffix = ""
	} else {
		max -= len(suffix)
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + suffix
}
