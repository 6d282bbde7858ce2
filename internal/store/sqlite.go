package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Fuabioo/json-merger/internal/pathutil"
)

const (
	maxMessageLen = 512

	// maxInputSets is how many saved input sets are kept.
	maxInputSets = 20

	// schemaVersion is stored in PRAGMA user_version.
	schemaVersion = 1

	tsLayout = "2006-01-02T15:04:05.000"
)

// SQLiteStore implements Recorder and input persistence using a local
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS input_sets (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp   TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%f','now')),
    fragments   TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS merge_runs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id         TEXT    NOT NULL,
    timestamp      TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%f','now')),
    fragment_count INTEGER NOT NULL,
    considered     INTEGER NOT NULL DEFAULT 0,
    outcome        TEXT    NOT NULL,
    position       INTEGER NOT NULL DEFAULT 0,
    message        TEXT    NOT NULL DEFAULT '',
    result_bytes   INTEGER NOT NULL DEFAULT 0,
    duration_ms    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_fragments (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    run_row_id   INTEGER NOT NULL REFERENCES merge_runs(id),
    position     INTEGER NOT NULL,
    source       TEXT    NOT NULL DEFAULT '',
    status       TEXT    NOT NULL,
    bytes        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_ts ON merge_runs(timestamp);
CREATE INDEX IF NOT EXISTS idx_fragment_run ON run_fragments(run_row_id);
`

// DefaultDBPath returns the default store database path.
// It checks $JSON_MERGER_DB, then falls back to the XDG data directory
// (~/.local/share/json-merger/store.db).
func DefaultDBPath() string {
	if p := os.Getenv("JSON_MERGER_DB"); p != "" {
		return pathutil.ExpandTilde(p)
	}
	return filepath.Join(pathutil.DataDir(), "store.db")
}

// Open opens (or creates) a SQLite store database at the given path.
// It runs the schema migration and configures WAL mode with a 5-second busy timeout.
func Open(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database %q: %w", dbPath, err)
	}

	steps := []struct {
		what string
		run  func() error
	}{
		{"set WAL mode", func() error { _, err := db.Exec("PRAGMA journal_mode=WAL"); return err }},
		{"set busy_timeout", func() error { _, err := db.Exec("PRAGMA busy_timeout=5000"); return err }},
		{"create schema", func() error { _, err := db.Exec(schema); return err }},
		{"migrate", func() error { return migrate(db) }},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				return nil, fmt.Errorf("store: %s: %w (also failed to close: %v)", s.what, err, closeErr)
			}
			return nil, fmt.Errorf("store: %s: %w", s.what, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// migrate stamps PRAGMA user_version and rejects databases written by a
// newer schema.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	if version < schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("set user_version to %d: %w", schemaVersion, err)
		}
	}

	return nil
}

// DB returns the underlying *sql.DB for use with query helpers.
// Returns nil if the receiver is nil.
func (s *SQLiteStore) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// RecordRun inserts a merge run and its fragment records in a single
// transaction. A missing RunID is filled with a random UUID.
// Nil receiver is a no-op.
func (s *SQLiteStore) RecordRun(run MergeRun) error {
	if s == nil {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() {
		// Rollback is a no-op if the transaction was already committed.
		_ = tx.Rollback()
	}()

	ts := run.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	runID := run.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	result, err := tx.Exec(
		`INSERT INTO merge_runs (run_id, timestamp, fragment_count, considered, outcome, position, message, result_bytes, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		ts.UTC().Format(tsLayout),
		run.FragmentCount,
		run.Considered,
		run.Outcome,
		run.Position,
		Truncate(run.Message, maxMessageLen),
		run.ResultBytes,
		run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("store: insert merge_run: %w", err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: get last insert id: %w", err)
	}

	for _, f := range run.Fragments {
		_, err := tx.Exec(
			`INSERT INTO run_fragments (run_row_id, position, source, status, bytes)
			 VALUES (?, ?, ?, ?, ?)`,
			rowID,
			f.Position,
			f.Source,
			f.Status,
			f.Bytes,
		)
		if err != nil {
			return fmt.Errorf("store: insert fragment %d: %w", f.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}

	return nil
}

// SaveInputs stores fragments as the newest input set and drops all but the
// most recent maxInputSets sets. Nil receiver is a no-op.
func (s *SQLiteStore) SaveInputs(fragments []string) error {
	if s == nil {
		return nil
	}
	if fragments == nil {
		fragments = []string{}
	}

	data, err := json.Marshal(fragments)
	if err != nil {
		return fmt.Errorf("store: marshal input set: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		"INSERT INTO input_sets (timestamp, fragments) VALUES (?, ?)",
		time.Now().UTC().Format(tsLayout), string(data),
	); err != nil {
		return fmt.Errorf("store: insert input set: %w", err)
	}

	if _, err := tx.Exec(
		"DELETE FROM input_sets WHERE id NOT IN (SELECT id FROM input_sets ORDER BY id DESC LIMIT ?)",
		maxInputSets,
	); err != nil {
		return fmt.Errorf("store: trim input sets: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit input set: %w", err)
	}
	return nil
}

// LatestInputs returns the most recently saved input set, or nil if none
// has been saved. Nil receiver returns nil.
func (s *SQLiteStore) LatestInputs() (*InputSet, error) {
	if s == nil {
		return nil, nil
	}

	set, err := scanInputSet(s.db.QueryRow("SELECT id, timestamp, fragments FROM input_sets ORDER BY id DESC LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest input set: %w", err)
	}
	return &set, nil
}

func scanInputSet(row rowScanner) (InputSet, error) {
	var set InputSet
	var tsStr, data string
	if err := row.Scan(&set.ID, &tsStr, &data); err != nil {
		return InputSet{}, err
	}
	ts, err := time.Parse(tsLayout, tsStr)
	if err != nil {
		return InputSet{}, fmt.Errorf("parse timestamp %q: %w", tsStr, err)
	}
	set.Timestamp = ts
	if err := json.Unmarshal([]byte(data), &set.Fragments); err != nil {
		return InputSet{}, fmt.Errorf("decode input set %d: %w", set.ID, err)
	}
	return set, nil
}

// ClearInputs deletes every saved input set and returns how many were removed.
func (s *SQLiteStore) ClearInputs() (int64, error) {
	if s == nil {
		return 0, nil
	}
	result, err := s.db.Exec("DELETE FROM input_sets")
	if err != nil {
		return 0, fmt.Errorf("store: clear input sets: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: clear rows affected: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
// Nil receiver is a no-op.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close database: %w", err)
	}
	return nil
}
