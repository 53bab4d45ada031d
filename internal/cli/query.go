package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Msg string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <contract>",
		Short: "Run a read-only query against a contract",
		Long: `Run a read-only query against a deployed contract and print the result.

Examples:
  vetogate query alpha/timelock --msg '{"config":{}}'
  vetogate query alpha/timelock --msg '{"proposal":{"proposal_id":7}}'
  vetogate query parent/overrule --msg '{"query_extension":{"msg":{"list_overrule_proposals":{}}}}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Msg, "msg", "", "query message as JSON (required)")
	_ = cmd.MarkFlagRequired("msg")

	return cmd
}

func runQuery(opts *QueryOptions, ref string, cmd *cobra.Command) error {
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

	data, err := s.engine.Query(ctx, contract.Address, msg)
	if err != nil {
		return formatter.Fail(ExitFailure, "query failed", err, nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(data)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return formatter.JSON(v)
}
