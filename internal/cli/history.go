package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/roach88/vetogate/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	AfterSeq  int64
	Limit     int
	CommandID string // optional - a single command
	Contract  string // optional - filter to units run by one contract
}

// HistoryResult holds the journal page and its statistics.
type HistoryResult struct {
	Units []store.CommandRecord `json:"units"`
	Stats HistoryStats          `json:"stats"`
}

// HistoryStats summarises a journal page.
type HistoryStats struct {
	Units    int   `json:"units"`
	Commands int   `json:"commands"`
	Failed   int   `json:"failed"`
	LastSeq  int64 `json:"last_seq"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the command journal",
		Long: `Show the journal of executed units in sequence order.

Every top-level command is journaled with the sub-messages, calls and
replies it caused, including the ones that failed and were rolled back.

Examples:
  vetogate history
  vetogate history --after 120 --limit 50
  vetogate history --command 0190f3c2-...
  vetogate history --contract parent/overrule --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.AfterSeq, "after", 0, "show units with a sequence number greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum units to show")
	cmd.Flags().StringVar(&opts.CommandID, "command", "", "show every unit of one command")
	cmd.Flags().StringVar(&opts.Contract, "contract", "", "filter to units run by a contract (label or address)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--limit must be positive, got %d", opts.Limit))
	}

	s, err := openSession(ctx, cmd, opts.RootOptions, "")
	if err != nil {
		return err
	}
	defer closeSession(ctx, s)
	formatter := opts.formatter(cmd)

	units, err := s.journal(ctx, opts)
	if err != nil {
		return err
	}

	if opts.Contract != "" {
		contract, err := s.resolveContract(ctx, opts.Contract)
		if err != nil {
			return err
		}
		units = lo.Filter(units, func(u store.CommandRecord, _ int) bool {
			return u.Contract == contract.Address
		})
	}

	result := HistoryResult{Units: units, Stats: historyStats(units)}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(units) == 0 {
		fmt.Fprintln(w, "No journal entries.")
		return nil
	}
	l, err := s.labels(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Timeline:")
	for _, u := range units {
		line := fmt.Sprintf("  [%d] %s #%d %s%s %s -> %s.%s",
			u.Seq, u.CommandID, u.Step, strings.Repeat("  ", u.Depth), u.Kind,
			l.name(u.Sender), l.name(u.Contract), variant(json.RawMessage(u.Msg)))
		if u.Status == store.UnitFailed {
			line += fmt.Sprintf(" error=%s", u.ErrorKind)
			if opts.Verbose {
				line += fmt.Sprintf(" (%s)", u.Error)
			}
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Stats:")
	fmt.Fprintf(w, "  Units: %d\n", result.Stats.Units)
	fmt.Fprintf(w, "  Commands: %d\n", result.Stats.Commands)
	fmt.Fprintf(w, "  Failed: %d\n", result.Stats.Failed)
	if opts.CommandID == "" && len(units) == opts.Limit {
		fmt.Fprintf(w, "  More: --after %d\n", result.Stats.LastSeq)
	}
	return nil
}

// journal reads one command's units, or a page of the whole journal.
func (s *session) journal(ctx context.Context, opts *HistoryOptions) ([]store.CommandRecord, error) {
	if opts.CommandID == "" {
		units, err := s.engine.Commands(ctx, opts.AfterSeq, opts.Limit)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		return units, nil
	}

	var units []store.CommandRecord
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		units, err = tx.CommandUnits(ctx, opts.CommandID)
		return err
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if len(units) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown command %q", opts.CommandID))
	}
	return units, nil
}

func historyStats(units []store.CommandRecord) HistoryStats {
	stats := HistoryStats{Units: len(units)}
	stats.Commands = len(lo.UniqBy(units, func(u store.CommandRecord) string { return u.CommandID }))
	stats.Failed = lo.CountBy(units, func(u store.CommandRecord) bool { return u.Status == store.UnitFailed })
	if len(units) > 0 {
		stats.LastSeq = units[len(units)-1].Seq
	}
	return stats
}
