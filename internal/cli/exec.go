package cli

import (
	"github.com/spf13/cobra"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Sender string
	Msg    string
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <contract>",
		Short: "Execute a message against a contract",
		Long: `Execute a message against a deployed contract as one command.

The contract is a label ("alpha/timelock") or a hex address. The sender is
an account name, a hex address or a contract label. Every unit the command
runs is printed, including failed sub-messages; the exit code is 1 when the
command itself is rejected.

Examples:
  vetogate exec alpha/proposal --sender member --msg '{"propose":{"title":"t","msgs":[]}}'
  vetogate exec alpha/timelock --sender member --msg '{"execute_proposal":{"proposal_id":7}}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Sender, "sender", "", "sender account, address or contract label (required)")
	cmd.Flags().StringVar(&opts.Msg, "msg", "", "message as JSON (required)")
	_ = cmd.MarkFlagRequired("sender")
	_ = cmd.MarkFlagRequired("msg")

	return cmd
}

func runExec(opts *ExecOptions, ref string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	msg, err := parseMsg("msg", opts.Msg)
	if err != nil {
		return err
	}

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
	sender, err := s.resolveSender(ctx, opts.Sender)
	if err != nil {
		return err
	}

	formatter.VerboseLog("Executing %s on %s as %s", variant(msg), contract.Label, sender.Hex())
	out, execErr := s.engine.Execute(ctx, sender, contract.Address, msg)

	if formatter.Format == "json" {
		if execErr != nil {
			return formatter.Fail(ExitFailure, "command failed", execErr, out)
		}
		return formatter.Success(out)
	}

	if out != nil {
		l, err := s.labels(ctx)
		if err != nil {
			return err
		}
		l.account(sender, opts.Sender)
		printOutcome(formatter.Writer, out, l)
	}
	if execErr != nil {
		return formatter.Fail(ExitFailure, "command failed", execErr, nil)
	}
	return nil
}
