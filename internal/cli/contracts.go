package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewContractsCommand creates the contracts command.
func NewContractsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "List deployed contracts",
		Long: `List every deployed contract in instantiation order with its label,
code and address.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContracts(rootOpts, cmd)
		},
	}

	return cmd
}

func runContracts(opts *RootOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	s, err := openSession(ctx, cmd, opts, "")
	if err != nil {
		return err
	}
	defer closeSession(ctx, s)
	formatter := opts.formatter(cmd)

	records, err := s.engine.Contracts(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list contracts", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(formatter.Writer, "No contracts deployed.")
		return nil
	}

	w := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tCODE\tADDRESS\tHEIGHT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.Label, r.Code, r.Address.Hex(), r.CreatedHeight)
	}
	return w.Flush()
}
