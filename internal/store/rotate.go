package store

import (
	"archive/zip"
	"cmp"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	archiveEntryName = "history.json"
	markerName       = ".last-rotation"

	defaultRotateInterval = time.Hour
)

// RotationConfig controls moving old history into archives.
type RotationConfig struct {
	Retention  time.Duration // runs and input sets older than this are archived
	ArchiveDir string        // holds the zip files and the throttle marker
	Interval   time.Duration // minimum time between rotations, default one hour
}

func (c RotationConfig) interval() time.Duration {
	if c.Interval > 0 {
		return c.Interval
	}
	return defaultRotateInterval
}

// Archive is the document stored as history.json in each zip file.
// Runs and InputSets are oldest first. The newest input set is never
// archived, so --restore keeps working after a long pause.
type Archive struct {
	Cutoff    time.Time
	Runs      []MergeRun
	InputSets []InputSet
}

func (a *Archive) empty() bool {
	return len(a.Runs) == 0 && len(a.InputSets) == 0
}

// ArchiveInfo describes one archive file on disk.
type ArchiveInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// MaybeRotate moves history older than cfg.Retention from db into a new zip
// archive. It does nothing when the previous rotation ran less than
// cfg.Interval ago. Errors are logged, never returned.
func MaybeRotate(db *sql.DB, cfg RotationConfig, logger *slog.Logger) {
	if db == nil {
		return
	}

	marker := filepath.Join(cfg.ArchiveDir, markerName)
	if !rotationDue(marker, cfg.interval()) {
		logger.Debug("rotation throttled")
		return
	}
	// A rotation that keeps failing is retried once per interval.
	if err := touch(marker); err != nil {
		logger.Warn("rotation: touch marker", "err", err)
		return
	}

	cutoff := time.Now().UTC().Add(-cfg.Retention)
	archive, err := collectArchive(db, cutoff)
	if err != nil {
		logger.Warn("rotation: collect history", "err", err)
		return
	}
	if archive.empty() {
		logger.Debug("rotation: nothing older than cutoff", "cutoff", cutoff)
		return
	}

	name := fmt.Sprintf("history-%s.zip", time.Now().UTC().Format("20060102T150405.000000000Z"))
	path := filepath.Join(cfg.ArchiveDir, name)
	if err := writeArchive(path, archive); err != nil {
		logger.Warn("rotation: write archive", "err", err)
		return
	}

	runs, sets, err := pruneArchived(db, archive)
	if err != nil {
		logger.Warn("rotation: prune failed, archive already written", "archive", path, "err", err)
		return
	}

	logger.Info("rotation complete",
		"runs", runs,
		"input_sets", sets,
		"archive", path,
	)
}

// rotationDue reports whether the marker is missing, unreadable or older
// than interval.
func rotationDue(marker string, interval time.Duration) bool {
	info, err := os.Stat(marker)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) >= interval
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	return os.WriteFile(path, nil, 0o644)
}

// collectArchive reads every run older than cutoff, with its fragment
// records, and every input set older than cutoff except the newest one.
func collectArchive(db *sql.DB, cutoff time.Time) (*Archive, error) {
	cutoffStr := cutoff.UTC().Format(tsLayout)
	archive := &Archive{Cutoff: cutoff}

	runs, err := runsBefore(db, cutoffStr)
	if err != nil {
		return nil, err
	}
	if err := attachFragments(db, cutoffStr, runs); err != nil {
		return nil, err
	}
	archive.Runs = runs

	sets, err := supersededInputSets(db, cutoffStr)
	if err != nil {
		return nil, err
	}
	archive.InputSets = sets

	return archive, nil
}

func runsBefore(db *sql.DB, cutoffStr string) ([]MergeRun, error) {
	rows, err := db.Query(
		"SELECT "+runColumns+" FROM merge_runs WHERE timestamp < ? ORDER BY timestamp, id",
		cutoffStr,
	)
	if err != nil {
		return nil, fmt.Errorf("query old runs: %w", err)
	}
	defer rows.Close()

	var runs []MergeRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan old run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate old runs: %w", err)
	}
	return runs, nil
}

// attachFragments loads the fragment records of runs in one query.
func attachFragments(db *sql.DB, cutoffStr string, runs []MergeRun) error {
	if len(runs) == 0 {
		return nil
	}
	byRow := make(map[int64]*MergeRun, len(runs))
	for i := range runs {
		byRow[runs[i].ID] = &runs[i]
	}

	rows, err := db.Query(
		`SELECT f.id, f.run_row_id, f.position, f.source, f.status, f.bytes
		 FROM run_fragments f JOIN merge_runs r ON r.id = f.run_row_id
		 WHERE r.timestamp < ?
		 ORDER BY f.run_row_id, f.position`,
		cutoffStr,
	)
	if err != nil {
		return fmt.Errorf("query old fragments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f FragmentRecord
		if err := rows.Scan(&f.ID, &f.RunRowID, &f.Position, &f.Source, &f.Status, &f.Bytes); err != nil {
			return fmt.Errorf("scan old fragment: %w", err)
		}
		// Runs recorded after runsBefore read the table are not archived.
		if run, ok := byRow[f.RunRowID]; ok {
			run.Fragments = append(run.Fragments, f)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate old fragments: %w", err)
	}
	return nil
}

func supersededInputSets(db *sql.DB, cutoffStr string) ([]InputSet, error) {
	rows, err := db.Query(
		`SELECT id, timestamp, fragments FROM input_sets
		 WHERE timestamp < ? AND id < (SELECT MAX(id) FROM input_sets)
		 ORDER BY id`,
		cutoffStr,
	)
	if err != nil {
		return nil, fmt.Errorf("query old input sets: %w", err)
	}
	defer rows.Close()

	var sets []InputSet
	for rows.Next() {
		set, err := scanInputSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan old input set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate old input sets: %w", err)
	}
	return sets, nil
}

// pruneArchived deletes exactly the rows in archive, in one transaction.
func pruneArchived(db *sql.DB, archive *Archive) (runs, sets int64, err error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin prune transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoffStr := archive.Cutoff.UTC().Format(tsLayout)
	if len(archive.Runs) > 0 {
		lastID := slices.MaxFunc(archive.Runs, func(a, b MergeRun) int { return cmp.Compare(a.ID, b.ID) }).ID
		if runs, err = pruneRuns(tx, "timestamp < ? AND id <= ?", cutoffStr, lastID); err != nil {
			return 0, 0, err
		}
	}

	if len(archive.InputSets) > 0 {
		lastID := archive.InputSets[len(archive.InputSets)-1].ID
		result, err := tx.Exec(
			"DELETE FROM input_sets WHERE timestamp < ? AND id <= ? AND id < (SELECT MAX(id) FROM input_sets)",
			cutoffStr, lastID,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("prune input sets: %w", err)
		}
		if sets, err = result.RowsAffected(); err != nil {
			return 0, 0, fmt.Errorf("prune input sets rows affected: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit prune: %w", err)
	}
	return runs, sets, nil
}

// writeArchive writes archive to a temp file next to path and renames it
// into place, so a partial zip is never listed.
func writeArchive(path string, archive *Archive) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     archiveEntryName,
		Method:   zip.Deflate,
		Modified: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(archive); err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp archive: %w", err)
	}
	return nil
}

// ReadArchive decodes the history stored in the zip file at path.
func ReadArchive(path string) (*Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("store: open archive %q: %w", path, err)
	}
	defer r.Close()

	rc, err := r.Open(archiveEntryName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("store: archive %q has no %s", path, archiveEntryName)
		}
		return nil, fmt.Errorf("store: open %s in %q: %w", archiveEntryName, path, err)
	}
	defer rc.Close()

	var archive Archive
	if err := json.NewDecoder(rc).Decode(&archive); err != nil {
		return nil, fmt.Errorf("store: decode archive %q: %w", path, err)
	}
	return &archive, nil
}

// ArchiveDir returns the archive directory that sits next to dbPath.
func ArchiveDir(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "archives")
}

// ListArchives returns the zip files in archiveDir, newest first. A missing
// directory yields no archives.
func ListArchives(archiveDir string) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(archiveDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read archive dir: %w", err)
	}

	var archives []ArchiveInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".zip" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, ArchiveInfo{
			Path:    filepath.Join(archiveDir, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	slices.SortFunc(archives, func(a, b ArchiveInfo) int {
		return b.ModTime.Compare(a.ModTime)
	})
	return archives, nil
}
