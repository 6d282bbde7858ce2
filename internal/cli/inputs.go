package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Fuabioo/json-merger/internal/store"
)

func newInputsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inputs",
		Short: "Show or clear the saved input set",
	}
	cmd.AddCommand(newInputsShowCmd(), newInputsClearCmd())
	return cmd
}

// openStore opens the store for an inputs or history subcommand (creating
// it if needed). The caller must Close it.
func openStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(resolveDBPath(cmd, cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func newInputsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the last saved input set",
		Args:  cobra.NoArgs,
		RunE:  runInputsShow,
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runInputsShow(cmd *cobra.Command, _ []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	set, err := s.LatestInputs()
	if err != nil {
		return fmt.Errorf("load input set: %w", err)
	}
	if set == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No saved input set.")
		return nil
	}

	if asJSON {
		return printJSON(cmd.OutOrStdout(), set)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Input set #%d, saved %s (%s)\n",
		set.ID, set.Timestamp.Format(time.RFC3339), humanize.Time(set.Timestamp))
	for i, text := range set.Fragments {
		fmt.Fprintf(out, "\n--- Fragment %d (%s) ---\n%s\n", i+1, humanize.Bytes(uint64(len(text))), text)
	}
	return nil
}

func newInputsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all saved input sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.ClearInputs()
			if err != nil {
				return fmt.Errorf("clear inputs: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d input set(s).\n", n)
			return nil
		},
	}
}
