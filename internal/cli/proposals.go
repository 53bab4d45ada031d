package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/vetogate/internal/timelock"
	"github.com/roach88/vetogate/internal/types"
)

// ProposalsOptions holds flags for the proposals command.
type ProposalsOptions struct {
	*RootOptions
	StartAfter uint64
	Limit      uint64
}

// NewProposalsCommand creates the proposals command.
func NewProposalsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProposalsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "proposals <timelock>",
		Short: "List the proposals held by a timelock",
		Long: `List the proposals held by a subDAO timelock in ascending id order,
with their status and the time their lock expires.

Examples:
  vetogate proposals alpha/timelock
  vetogate proposals alpha/timelock --start-after 10 --limit 5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProposals(opts, args[0], cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.StartAfter, "start-after", 0, "list ids greater than this")
	cmd.Flags().Uint64Var(&opts.Limit, "limit", timelock.DefaultLimit, fmt.Sprintf("page size (at most %d)", timelock.MaxLimit))

	return cmd
}

func runProposals(opts *ProposalsOptions, ref string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	s, err := openSession(ctx, cmd, opts.RootOptions, "")
	if err != nil {
		return err
	}
	defer closeSession(ctx, s)
	formatter := opts.formatter(cmd)

	contract, err := s.resolveContract(ctx, ref)
	if err != nil {
		return err
	}
	if contract.Code != timelock.CodeName {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s is a %s contract, not a timelock", contract.Label, contract.Code))
	}

	query := timelock.ListProposalsQuery{Limit: &opts.Limit}
	if cmd.Flags().Changed("start-after") {
		query.StartAfter = &opts.StartAfter
	}
	var resp timelock.ProposalListResponse
	if err := s.engine.QueryInto(ctx, contract.Address, types.Variant("list_proposals", query), &resp); err != nil {
		return formatter.Fail(ExitFailure, "query failed", err, nil)
	}

	var cfg types.TimelockConfig
	if err := s.engine.QueryInto(ctx, contract.Address, types.Variant("config", nil), &cfg); err != nil {
		return formatter.Fail(ExitFailure, "query failed", err, nil)
	}
	lock, err := s.lockDuration(ctx, cfg)
	if err != nil {
		return formatter.Fail(ExitFailure, "query failed", err, nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(resp)
	}
	if len(resp.Proposals) == 0 {
		fmt.Fprintf(formatter.Writer, "No proposals in %s.\n", contract.Label)
		return nil
	}

	w := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTIMELOCKED\tUNLOCKS\tMSGS")
	for _, p := range resp.Proposals {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
			p.ID, p.Status,
			p.TimelockTS.Format(time.RFC3339),
			p.UnlocksAt(lock).Format(time.RFC3339),
			len(p.Msgs))
	}
	return w.Flush()
}

// lockDuration follows the timelock's admission module to the parent proposal
// module and reads its max voting period. Block-based periods yield zero.
func (s *session) lockDuration(ctx context.Context, cfg types.TimelockConfig) (time.Duration, error) {
	var module types.Address
	if err := s.engine.QueryInto(ctx, cfg.OverrulePrePropose, types.Variant("proposal_module", nil), &module); err != nil {
		return 0, err
	}
	var voting struct {
		MaxVotingPeriod types.Duration `json:"max_voting_period"`
	}
	if err := s.engine.QueryInto(ctx, module, types.Variant("config", nil), &voting); err != nil {
		return 0, err
	}
	if !voting.MaxVotingPeriod.IsTime() {
		return 0, nil
	}
	return voting.MaxVotingPeriod.Seconds()
}
