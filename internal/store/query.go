package store

import (
	"database/sql"
	"fmt"
	"time"
)

const runColumns = "id, run_id, timestamp, fragment_count, considered, outcome, position, message, result_bytes, duration_ms"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (MergeRun, error) {
	var r MergeRun
	var tsStr string
	if err := row.Scan(&r.ID, &r.RunID, &tsStr, &r.FragmentCount, &r.Considered, &r.Outcome, &r.Position, &r.Message, &r.ResultBytes, &r.DurationMs); err != nil {
		return MergeRun{}, err
	}
	ts, err := time.Parse(tsLayout, tsStr)
	if err != nil {
		return MergeRun{}, fmt.Errorf("parse timestamp %q: %w", tsStr, err)
	}
	r.Timestamp = ts
	return r, nil
}

// ListRuns returns merge runs with optional filtering by outcome.
// Results are ordered by timestamp descending (newest first).
func ListRuns(db *sql.DB, limit, offset int, filterOutcome string) ([]MergeRun, error) {
	if db == nil {
		return nil, fmt.Errorf("store: ListRuns called with nil db")
	}

	query := "SELECT " + runColumns + " FROM merge_runs WHERE 1=1"
	var args []any

	if filterOutcome != "" {
		query += " AND outcome = ?"
		args = append(args, filterOutcome)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	} else if offset > 0 {
		query += " LIMIT -1"
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []MergeRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate run rows: %w", err)
	}

	return runs, nil
}

// GetRun returns a single merge run by row ID, including its fragment records.
func GetRun(db *sql.DB, id int64) (*MergeRun, error) {
	if db == nil {
		return nil, fmt.Errorf("store: GetRun called with nil db")
	}

	r, err := scanRun(db.QueryRow("SELECT "+runColumns+" FROM merge_runs WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("store: get run %d: %w", id, err)
	}

	rows, err := db.Query(
		"SELECT id, run_row_id, position, source, status, bytes FROM run_fragments WHERE run_row_id = ? ORDER BY position",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: get fragments for run %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var f FragmentRecord
		if err := rows.Scan(&f.ID, &f.RunRowID, &f.Position, &f.Source, &f.Status, &f.Bytes); err != nil {
			return nil, fmt.Errorf("store: scan fragment: %w", err)
		}
		r.Fragments = append(r.Fragments, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate fragments: %w", err)
	}

	return &r, nil
}

// Tail returns the last n merge runs ordered by timestamp descending (newest first).
func Tail(db *sql.DB, n int) ([]MergeRun, error) {
	return ListRuns(db, n, 0, "")
}

// Prune deletes merge runs (and their fragment records) older than the given duration.
// Returns the number of runs deleted.
func Prune(db *sql.DB, olderThan time.Duration) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("store: Prune called with nil db")
	}
	return PruneBefore(db, time.Now().UTC().Add(-olderThan))
}

// PruneBefore deletes merge runs (and their fragment records) with a
// timestamp before cutoff. Returns the number of runs deleted.
func PruneBefore(db *sql.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("store: PruneBefore called with nil db")
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin prune transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	count, err := pruneRuns(tx, "timestamp < ?", cutoff.UTC().Format(tsLayout))
	if err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit prune: %w", err)
	}

	return count, nil
}

// pruneRuns deletes the merge runs matching where, and their fragment
// records, inside tx.
func pruneRuns(tx *sql.Tx, where string, args ...any) (int64, error) {
	// Fragment records first (foreign key reference).
	if _, err := tx.Exec(
		"DELETE FROM run_fragments WHERE run_row_id IN (SELECT id FROM merge_runs WHERE "+where+")",
		args...,
	); err != nil {
		return 0, fmt.Errorf("prune fragments: %w", err)
	}

	result, err := tx.Exec("DELETE FROM merge_runs WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	return count, nil
}

// GetStats returns aggregate statistics from the store database.
func GetStats(db *sql.DB) (*Stats, error) {
	if db == nil {
		return nil, fmt.Errorf("store: GetStats called with nil db")
	}

	stats := &Stats{
		CountByOutcome: make(map[string]int64),
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM input_sets").Scan(&stats.InputSets); err != nil {
		return nil, fmt.Errorf("store: stats input sets: %w", err)
	}

	// Total count and average duration.
	err := db.QueryRow("SELECT COALESCE(COUNT(*), 0), COALESCE(AVG(duration_ms), 0) FROM merge_runs").
		Scan(&stats.TotalRuns, &stats.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("store: stats totals: %w", err)
	}

	if stats.TotalRuns == 0 {
		return stats, nil
	}

	// Oldest and newest entries.
	var oldestStr, newestStr string
	err = db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM merge_runs").
		Scan(&oldestStr, &newestStr)
	if err != nil {
		return nil, fmt.Errorf("store: stats min/max timestamp: %w", err)
	}

	oldest, err := time.Parse(tsLayout, oldestStr)
	if err != nil {
		return nil, fmt.Errorf("store: parse oldest timestamp %q: %w", oldestStr, err)
	}
	stats.OldestEntry = oldest

	newest, err := time.Parse(tsLayout, newestStr)
	if err != nil {
		return nil, fmt.Errorf("store: parse newest timestamp %q: %w", newestStr, err)
	}
	stats.NewestEntry = newest

	// Counts by outcome.
	rows, err := db.Query("SELECT outcome, COUNT(*) FROM merge_runs GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("store: stats by outcome: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("store: scan outcome count: %w", err)
		}
		stats.CountByOutcome[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate outcome rows: %w", err)
	}

	return stats, nil
}
