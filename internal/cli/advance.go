package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// AdvanceOptions holds flags for the advance command.
type AdvanceOptions struct {
	*RootOptions
	Seconds uint64
	Blocks  uint64
}

// NewAdvanceCommand creates the advance command.
func NewAdvanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdvanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Move block time and height forward",
		Long: `Move the chain's block time and height forward.

Timelocks expire against block time, so advancing past a subDAO proposal's
lock lets it execute.

Example:
  vetogate advance --seconds 3600 --blocks 1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvance(opts, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Seconds, "seconds", 0, "seconds to add to block time")
	cmd.Flags().Uint64Var(&opts.Blocks, "blocks", 0, "blocks to add to block height")

	return cmd
}

func runAdvance(opts *AdvanceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	if opts.Seconds == 0 && opts.Blocks == 0 {
		return NewExitError(ExitCommandError, "one of --seconds or --blocks is required")
	}

	s, err := openSession(ctx, cmd, opts.RootOptions, "")
	if err != nil {
		return err
	}
	defer closeSession(ctx, s)
	formatter := opts.formatter(cmd)

	st, err := s.engine.Advance(ctx, time.Duration(opts.Seconds)*time.Second, opts.Blocks)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to advance chain", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(st)
	}
	fmt.Fprintf(formatter.Writer, "height %d, time %s\n", st.Height, st.Time.Format(time.RFC3339))
	return nil
}
