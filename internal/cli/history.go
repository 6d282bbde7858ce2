package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Fuabioo/json-merger/internal/config"
	"github.com/Fuabioo/json-merger/internal/store"
	_ "modernc.org/sqlite"
)

// openHistoryReadOnly opens an existing store DB for read-only queries.
// Returns a clear error if the DB doesn't exist. The returned path is the
// one that was opened.
func openHistoryReadOnly(cmd *cobra.Command) (*sql.DB, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	dbPath := resolveDBPath(cmd, cfg)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, "", fmt.Errorf("store database not found at %s (has anything been merged yet?)", dbPath)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, "", fmt.Errorf("open store db %q: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("set busy_timeout on store db %q: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("connect store db %q: %w", dbPath, err)
	}
	return db, dbPath, nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the merge history",
	}
	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryTailCmd(),
		newHistoryPruneCmd(),
		newHistoryStatsCmd(),
		newHistoryDBPathCmd(),
		newHistoryArchivesCmd(),
	)
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List merge runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	cmd.Flags().Int("limit", 20, "maximum number of entries")
	cmd.Flags().Int("offset", 0, "skip N entries")
	cmd.Flags().String("outcome", "", "filter by outcome (merged, empty, parse_failure)")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	db, dbPath, err := openHistoryReadOnly(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("invalid --limit: %w", err)
	}
	offset, err := cmd.Flags().GetInt("offset")
	if err != nil {
		return fmt.Errorf("invalid --offset: %w", err)
	}
	outcome, err := cmd.Flags().GetString("outcome")
	if err != nil {
		return fmt.Errorf("invalid --outcome: %w", err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	runs, err := store.ListRuns(db, limit, offset, outcome)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if asJSON {
		return printJSON(cmd.OutOrStdout(), runs)
	}
	printRunTable(cmd.OutOrStdout(), cmd.ErrOrStderr(), runs, dbPath)
	return nil
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show details of a merge run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run ID %q: %w", args[0], err)
	}

	db, _, err := openHistoryReadOnly(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	run, err := store.GetRun(db, id)
	if err != nil {
		return fmt.Errorf("get run %d: %w", id, err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, run)
	}

	fmt.Fprintf(out, "Run #%d\n", run.ID)
	fmt.Fprintf(out, "  Run ID:     %s\n", run.RunID)
	fmt.Fprintf(out, "  Timestamp:  %s\n", run.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "  Inputs:     %d\n", run.FragmentCount)
	fmt.Fprintf(out, "  Read:       %d of %d\n", run.Considered, run.FragmentCount)
	fmt.Fprintf(out, "  Outcome:    %s\n", run.Outcome)
	if run.Outcome == store.OutcomeParseFailure {
		fmt.Fprintf(out, "  Position:   %d\n", run.Position)
		fmt.Fprintf(out, "  Message:    %s\n", run.Message)
	}
	fmt.Fprintf(out, "  Result:     %s\n", humanize.Bytes(uint64(run.ResultBytes)))
	fmt.Fprintf(out, "  Duration:   %dms\n", run.DurationMs)

	if len(run.Fragments) > 0 {
		fmt.Fprintf(out, "\n  Fragments:\n")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "  POS\tSOURCE\tSTATUS\tSIZE")
		for _, f := range run.Fragments {
			_, _ = fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n",
				f.Position, store.Truncate(f.Source, 40), f.Status, humanize.Bytes(uint64(f.Bytes)))
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush tabwriter: %w", err)
		}
	}

	return nil
}

func newHistoryTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show last N merge runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryTail,
	}
	cmd.Flags().Int("n", 10, "number of entries")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runHistoryTail(cmd *cobra.Command, _ []string) error {
	db, dbPath, err := openHistoryReadOnly(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	n, err := cmd.Flags().GetInt("n")
	if err != nil {
		return fmt.Errorf("invalid --n: %w", err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	runs, err := store.Tail(db, n)
	if err != nil {
		return fmt.Errorf("tail: %w", err)
	}

	if asJSON {
		return printJSON(cmd.OutOrStdout(), runs)
	}
	printRunTable(cmd.OutOrStdout(), cmd.ErrOrStderr(), runs, dbPath)
	return nil
}

func newHistoryPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old merge runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryPrune,
	}
	cmd.Flags().String("older-than", "", "delete entries older than duration (e.g., 7d, 24h, 30d)")
	if err := cmd.MarkFlagRequired("older-than"); err != nil {
		panic(fmt.Sprintf("mark --older-than required: %v", err))
	}
	return cmd
}

func runHistoryPrune(cmd *cobra.Command, _ []string) error {
	olderThanStr, err := cmd.Flags().GetString("older-than")
	if err != nil {
		return fmt.Errorf("invalid --older-than: %w", err)
	}
	dur, err := config.ParseDuration(olderThanStr)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", olderThanStr, err)
	}

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	count, err := store.Prune(s.DB(), dur)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d merge run(s).\n", count)
	return nil
}

func newHistoryStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show merge history statistics",
		Args:  cobra.NoArgs,
		RunE:  runHistoryStats,
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runHistoryStats(cmd *cobra.Command, _ []string) error {
	db, _, err := openHistoryReadOnly(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	stats, err := store.GetStats(db)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, stats)
	}

	fmt.Fprintf(out, "Total runs:     %d\n", stats.TotalRuns)
	fmt.Fprintf(out, "Saved inputs:   %d\n", stats.InputSets)
	fmt.Fprintf(out, "Avg duration:   %.1fms\n", stats.AvgDurationMs)

	if stats.TotalRuns > 0 {
		fmt.Fprintf(out, "Oldest entry:   %s (%s)\n", stats.OldestEntry.Format(time.RFC3339), humanize.Time(stats.OldestEntry))
		fmt.Fprintf(out, "Newest entry:   %s (%s)\n", stats.NewestEntry.Format(time.RFC3339), humanize.Time(stats.NewestEntry))
	}

	if len(stats.CountByOutcome) > 0 {
		fmt.Fprintf(out, "\nBy outcome:\n")
		outcomes := make([]string, 0, len(stats.CountByOutcome))
		for outcome := range stats.CountByOutcome {
			outcomes = append(outcomes, outcome)
		}
		slices.Sort(outcomes)
		for _, outcome := range outcomes {
			fmt.Fprintf(out, "  %-14s %d\n", outcome, stats.CountByOutcome[outcome])
		}
	}

	return nil
}

func newHistoryDBPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "db-path",
		Short: "Print the store database path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resolveDBPath(cmd, cfg))
			return nil
		},
	}
}

func newHistoryArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives [name]",
		Short: "List history archive files, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistoryArchives,
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runHistoryArchives(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	archiveDir := store.ArchiveDir(resolveDBPath(cmd, cfg))

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		archive, err := store.ReadArchive(filepath.Join(archiveDir, filepath.Base(args[0])))
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(out, archive)
		}
		printArchive(out, archive)
		return nil
	}

	archives, err := store.ListArchives(archiveDir)
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}

	if len(archives) == 0 {
		fmt.Fprintln(out, "No archives found.")
		return nil
	}

	if asJSON {
		return printJSON(out, archives)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSIZE\tDATE")
	for _, a := range archives {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			a.Name,
			humanize.Bytes(uint64(a.Size)),
			a.ModTime.Format(time.RFC3339),
		)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush tabwriter: %w", err)
	}
	return nil
}

// printArchive prints what one archive holds. The sqlite3 tip of
// printRunTable is dropped because archived runs are no longer in the DB.
func printArchive(out io.Writer, archive *store.Archive) {
	fmt.Fprintf(out, "Cutoff:      %s\n", archive.Cutoff.Format(time.RFC3339))
	fmt.Fprintf(out, "Runs:        %d\n", len(archive.Runs))
	fmt.Fprintf(out, "Input sets:  %d\n", len(archive.InputSets))
	if len(archive.Runs) > 0 {
		fmt.Fprintln(out)
		printRunTable(out, io.Discard, archive.Runs, "")
	}
}

// printRunTable outputs merge runs in a tabwriter table.
// If any run failed to parse, a hint is printed to errOut showing how to
// query full untruncated messages via sqlite3.
func printRunTable(out, errOut io.Writer, runs []store.MergeRun, dbPath string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTIMESTAMP\tINPUTS\tOUTCOME\tPOS\tMESSAGE\tRESULT\tDURATION")

	hasFailure := false
	for _, r := range runs {
		pos := "-"
		if r.Outcome == store.OutcomeParseFailure {
			hasFailure = true
			pos = strconv.Itoa(r.Position)
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%dms\n",
			r.ID,
			r.Timestamp.Format(time.RFC3339),
			r.FragmentCount,
			r.Outcome,
			pos,
			store.Truncate(r.Message, 40),
			humanize.Bytes(uint64(r.ResultBytes)),
			r.DurationMs,
		)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(errOut, "json-merger: flush table: %v\n", err)
	}

	if hasFailure {
		fmt.Fprintf(errOut,
			"\nTip: to see full parse errors, run:\n  sqlite3 %s \"SELECT id, position, message FROM merge_runs WHERE outcome = 'parse_failure' ORDER BY id DESC LIMIT %d\"\n",
			dbPath, len(runs),
		)
	}
}

// printJSON marshals v as indented JSON and writes it to w.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
