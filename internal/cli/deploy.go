package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/vetogate/internal/topology"
	"github.com/roach88/vetogate/internal/types"
)

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <manifest.cue>",
		Short: "Deploy a parent DAO and its subDAOs",
		Long: `Deploy the DAOs described by a CUE manifest into the database.

The parent DAO gets a core, a proposal module and the overrule admission
module. Every subDAO gets a core, a timelock and a proposal module, and is
registered with the parent core. The deployer (--deployer) administers every
core and proposal module.

A manifest that names a chain_id must match the database's chain.

Example:
  vetogate deploy --db ./vetogate.db ./neutron.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDeploy(opts *RootOptions, path string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	if _, err := opts.prepare(); err != nil {
		return err
	}
	topo, err := topology.Load(path)
	if err != nil {
		return outputManifestError(opts.formatter(cmd), err)
	}

	s, err := openSession(ctx, cmd, opts, topo.ChainID)
	if err != nil {
		return err
	}
	defer closeSession(ctx, s)
	formatter := opts.formatter(cmd)

	state, err := s.engine.ChainState(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read chain state", err)
	}
	if topo.ChainID != "" && topo.ChainID != state.ChainID {
		err := types.Errorf(types.KindInvalidConfig, "manifest targets chain %q, database holds %q", topo.ChainID, state.ChainID)
		return formatter.Fail(ExitCommandError, "chain mismatch", err, nil)
	}

	deployer, err := s.cfg.DeployerAddress()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid deployer", err)
	}

	formatter.VerboseLog("Deploying %s as %s", path, deployer.Hex())
	deployment, err := topology.Deploy(ctx, s.engine, deployer, topo)
	if err != nil {
		return formatter.Fail(ExitFailure, "deploy failed", err, nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(deployment)
	}

	w := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", topology.Label(topology.ParentKey, topology.RoleCore), deployment.Parent.Core.Hex())
	fmt.Fprintf(w, "%s\t%s\n", topology.Label(topology.ParentKey, topology.RoleProposal), deployment.Parent.Proposal.Hex())
	fmt.Fprintf(w, "%s\t%s\n", topology.Label(topology.ParentKey, topology.RoleOverrule), deployment.Parent.Overrule.Hex())
	for _, key := range topo.SubdaoKeys() {
		sc := deployment.Subdaos[key]
		fmt.Fprintf(w, "%s\t%s\n", topology.Label(key, topology.RoleCore), sc.Core.Hex())
		fmt.Fprintf(w, "%s\t%s\n", topology.Label(key, topology.RoleTimelock), sc.Timelock.Hex())
		fmt.Fprintf(w, "%s\t%s\n", topology.Label(key, topology.RoleProposal), sc.Proposal.Hex())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(formatter.Writer, "✓ Deployed %q with %d subdao(s) on %s\n", topo.Parent.Name, len(deployment.Subdaos), state.ChainID)
	return nil
}
