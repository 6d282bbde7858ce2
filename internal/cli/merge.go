package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/kaptinlin/jsonrepair"
	"github.com/spf13/cobra"

	"github.com/Fuabioo/json-merger/internal/config"
	"github.com/Fuabioo/json-merger/internal/jsonvalue"
	"github.com/Fuabioo/json-merger/internal/merge"
	"github.com/Fuabioo/json-merger/internal/sanitize"
	"github.com/Fuabioo/json-merger/internal/store"
)

const maxIndent = 16

// Fragment sources that are not file paths.
const (
	sourceStdin    = "-"
	sourceFlag     = "flag"
	sourceRestored = "restored"
)

// fragment is one raw input and where it came from.
type fragment struct {
	source string
	text   string
}

func addMergeFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("json", "j", nil, "literal fragment (repeatable)")
	cmd.Flags().Bool("restore", false, "prepend the last saved input set")
	cmd.Flags().Bool("no-save", false, "do not save this input set")
	cmd.Flags().Bool("suggest", false, "print a repaired candidate on parse errors")
	cmd.Flags().Int("indent", 0, "spaces per indent level (default from config, else 2)")
	cmd.Flags().Bool("compact", false, "print the merged document on one line")
}

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge [files...]",
		Short: "Merge fragments from files, flags or stdin",
		Args:  cobra.ArbitraryArgs,
		RunE:  runMerge,
	}
	addMergeFlags(cmd)
	return cmd
}

// mergeOptions are the merge flags resolved against the config file.
type mergeOptions struct {
	literals []string
	restore  bool
	save     bool
	suggest  bool
	compact  bool
	indent   int
}

func parseMergeOptions(cmd *cobra.Command, cfg config.Config) (mergeOptions, error) {
	var opts mergeOptions
	var err error

	if opts.literals, err = cmd.Flags().GetStringArray("json"); err != nil {
		return opts, fmt.Errorf("invalid --json: %w", err)
	}
	if opts.restore, err = cmd.Flags().GetBool("restore"); err != nil {
		return opts, fmt.Errorf("invalid --restore: %w", err)
	}
	noSave, err := cmd.Flags().GetBool("no-save")
	if err != nil {
		return opts, fmt.Errorf("invalid --no-save: %w", err)
	}
	opts.save = !noSave
	if opts.suggest, err = cmd.Flags().GetBool("suggest"); err != nil {
		return opts, fmt.Errorf("invalid --suggest: %w", err)
	}
	opts.suggest = opts.suggest || cfg.Suggest
	if opts.compact, err = cmd.Flags().GetBool("compact"); err != nil {
		return opts, fmt.Errorf("invalid --compact: %w", err)
	}

	opts.indent = cfg.EffectiveIndent()
	if cmd.Flags().Changed("indent") {
		n, err := cmd.Flags().GetInt("indent")
		if err != nil {
			return opts, fmt.Errorf("invalid --indent: %w", err)
		}
		if n < 1 || n > maxIndent {
			return opts, fmt.Errorf("invalid --indent %d: must be between 1 and %d", n, maxIndent)
		}
		opts.indent = n
	}
	return opts, nil
}

// runMerge is the default command: collect fragments, merge, print.
func runMerge(cmd *cobra.Command, args []string) error {
	logger := commandLogger(cmd)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := parseMergeOptions(cmd, cfg)
	if err != nil {
		return err
	}

	// Setup store (fail-open: errors logged, never change the merge result).
	var st *store.SQLiteStore
	dbPath := resolveDBPath(cmd, cfg)
	if cfg.StoreEnabled() {
		s, err := store.Open(dbPath)
		if err != nil {
			logger.Warn("failed to open store, continuing without it", "err", err)
		} else {
			st = s
			defer st.Close()
		}
	} else if opts.restore {
		return fmt.Errorf("--restore needs the store, which is disabled in config")
	}

	fragments, err := collectFragments(cmd, args, opts, st, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.text
	}
	outcome := merge.MergeAll(texts)
	elapsed := time.Since(start)

	nonBlank := slices.DeleteFunc(slices.Clone(fragments), func(f fragment) bool {
		return sanitize.IsBlank(f.text)
	})
	for _, pos := range outcome.Skipped {
		logger.Info("skipped non-object fragment",
			"input", pos, "source", nonBlank[pos-1].source)
	}

	var output []byte
	switch outcome.Status {
	case merge.StatusMerged:
		output, err = render(outcome.Value, opts)
		if err != nil {
			return fmt.Errorf("render merged document: %w", err)
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(output)); err != nil {
			logger.Error("failed to write output", "err", err)
		}
		if opts.save {
			if err := st.SaveInputs(merge.NonBlank(texts)); err != nil {
				logger.Warn("failed to save input set", "err", err)
			}
		}

	case merge.StatusEmpty:
		fmt.Fprintln(cmd.ErrOrStderr(), "No object fragments to merge.")

	case merge.StatusParseFailure:
		paint(cmd.ErrOrStderr(), color.FgRed, color.Bold).Fprintln(cmd.ErrOrStderr(), outcome.FailureMessage())
		if opts.suggest {
			printSuggestion(cmd.ErrOrStderr(), outcome.Position, nonBlank[outcome.Position-1].text, logger)
		}
	}

	if st != nil {
		recordRun(st, fragmentRecords(nonBlank, outcome), outcome, len(output), elapsed, logger)
		rotate(st, cfg, dbPath, logger)
	}

	if outcome.Failed() {
		return &exitError{code: 1}
	}
	return nil
}

// collectFragments gathers inputs in order: restored set, files, literals,
// then stdin when nothing else was given and stdin is not a terminal.
func collectFragments(cmd *cobra.Command, args []string, opts mergeOptions, st *store.SQLiteStore, logger *slog.Logger) ([]fragment, error) {
	var fragments []fragment

	if opts.restore {
		set, err := st.LatestInputs()
		if err != nil {
			logger.Warn("failed to load saved input set", "err", err)
		} else if set == nil {
			logger.Info("no saved input set to restore")
		} else {
			logger.Debug("restored input set", "id", set.ID, "fragments", len(set.Fragments))
			for _, text := range set.Fragments {
				fragments = append(fragments, fragment{source: sourceRestored, text: text})
			}
		}
	}

	for _, name := range args {
		text, err := readSource(cmd, name)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, fragment{source: name, text: text})
	}

	for _, lit := range opts.literals {
		fragments = append(fragments, fragment{source: sourceFlag, text: lit})
	}

	if len(args) == 0 && len(opts.literals) == 0 && !opts.restore {
		if isTerminal(cmd.InOrStdin()) {
			logger.Debug("stdin is a terminal, not reading it")
			return fragments, nil
		}
		text, err := readSource(cmd, sourceStdin)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, fragment{source: sourceStdin, text: text})
	}

	return fragments, nil
}

// readSource reads a whole file, or stdin when name is "-".
func readSource(cmd *cobra.Command, name string) (string, error) {
	if name == sourceStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read fragment: %w", err)
	}
	return string(data), nil
}

func render(v jsonvalue.Value, opts mergeOptions) ([]byte, error) {
	if opts.compact {
		return v.MarshalJSON()
	}
	return jsonvalue.Indent(v, jsonvalue.Spaces(opts.indent))
}

// printSuggestion prints a repaired candidate for the failing fragment. The
// candidate is a hint only.
func printSuggestion(w io.Writer, pos int, raw string, logger *slog.Logger) {
	repaired, err := jsonrepair.JSONRepair(sanitize.Sanitize(raw))
	if err != nil {
		logger.Debug("no repair candidate", "input", pos, "err", err)
		return
	}
	paint(w, color.FgYellow).Fprintf(w, "Suggestion for Input %d:\n", pos)
	fmt.Fprintln(w, repaired)
}

// fragmentRecords maps each non-blank fragment to its fate in outcome.
func fragmentRecords(nonBlank []fragment, outcome merge.Outcome) []store.FragmentRecord {
	records := make([]store.FragmentRecord, len(nonBlank))
	for i, f := range nonBlank {
		pos := i + 1
		status := store.FragmentMerged
		switch {
		case outcome.Failed() && pos == outcome.Position:
			status = store.FragmentFailed
		case outcome.Failed() && pos > outcome.Position:
			status = store.FragmentUnread
		case slices.Contains(outcome.Skipped, pos):
			status = store.FragmentSkipped
		}
		records[i] = store.FragmentRecord{
			Position: pos,
			Source:   f.source,
			Status:   status,
			Bytes:    len(f.text),
		}
	}
	return records
}

// recordRun writes the run to history. Errors are logged, never returned.
func recordRun(rec store.Recorder, fragments []store.FragmentRecord, outcome merge.Outcome, resultBytes int, elapsed time.Duration, logger *slog.Logger) {
	run := store.MergeRun{
		Timestamp:     time.Now().UTC(),
		FragmentCount: len(fragments),
		Considered:    outcome.Considered,
		Outcome:       outcome.Status.String(),
		Position:      outcome.Position,
		Message:       outcome.Message,
		ResultBytes:   resultBytes,
		DurationMs:    elapsed.Milliseconds(),
		Fragments:     fragments,
	}
	if err := rec.RecordRun(run); err != nil {
		logger.Warn("failed to record merge run", "err", err)
	}
}

func rotate(st *store.SQLiteStore, cfg config.Config, dbPath string, logger *slog.Logger) {
	retention, err := cfg.RetentionDuration()
	if err != nil {
		logger.Warn("skipping history rotation", "err", err)
		return
	}
	store.MaybeRotate(st.DB(), store.RotationConfig{
		Retention:  retention,
		ArchiveDir: store.ArchiveDir(dbPath),
	}, logger)
}
