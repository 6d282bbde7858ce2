package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Fuabioo/json-merger/internal/config"
	"github.com/Fuabioo/json-merger/internal/sanitize"
	"github.com/Fuabioo/json-merger/internal/store"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// newLogger builds the stderr logger. JSON_MERGER_DEBUG=1 wins over --verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	if os.Getenv("JSON_MERGER_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func commandLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return newLogger(cmd.ErrOrStderr(), verbose)
}

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// paint returns c configured for w: colored only when w is a terminal and
// NO_COLOR is unset.
func paint(w io.Writer, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if isTerminal(w) && os.Getenv("NO_COLOR") == "" {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// loadConfig loads the config file, mapping failures to exit code 2.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "json-merger: config error: %v\n", err)
		return config.Config{}, &exitError{code: 2}
	}
	return cfg, nil
}

// resolveDBPath returns the store path from --db, the config file or the default.
func resolveDBPath(cmd *cobra.Command, cfg config.Config) string {
	if dbPath, err := cmd.Flags().GetString("db"); err == nil && dbPath != "" {
		return dbPath
	}
	if p := cfg.DBPath(); p != "" {
		return p
	}
	return store.DefaultDBPath()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "json-merger [files...]",
		Short: "Deep-merge JSON-like fragments, earlier fragments win",
		Long: `json-merger repairs unquoted keys and trailing commas in each fragment,
parses it, and deep-merges the objects in order. On key conflicts the
earlier fragment wins. Fragments come from files ("-" is stdin) and
--json literals; with neither, stdin is read when it is not a terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE:          runMerge,
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "log skipped fragments and store activity")
	root.PersistentFlags().String("db", "", "path to store database (default: auto-detected)")
	addMergeFlags(root)

	root.AddCommand(newMergeCmd())
	root.AddCommand(newSanitizeCmd())
	root.AddCommand(newInputsCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(os.Stderr, "json-merger: %v\n", err)
		return 1
	}
	return 0
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "json-merger %s (%s)\n", Version, Commit)
		},
	}
}

func newSanitizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize [file]",
		Short: "Print the repaired text of one fragment without parsing it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSanitize,
	}
}

func runSanitize(cmd *cobra.Command, args []string) error {
	name := "-"
	if len(args) == 1 {
		name = args[0]
	}
	text, err := readSource(cmd, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), sanitize.Sanitize(text))
	return nil
}
