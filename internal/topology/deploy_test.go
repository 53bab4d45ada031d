package topology_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/testutil"
	"github.com/roach88/vetogate/internal/topology"
	"github.com/roach88/vetogate/internal/types"
)

func TestDeploy_Labels(t *testing.T) {
	topo, err := topology.Load(filepath.Join("testdata", "neutron.cue"))
	require.NoError(t, err)

	e := testutil.NewEngine(t, topology.Codes())
	deployer := testutil.Account("deployer")
	d, err := topology.Deploy(context.Background(), e, deployer, topo)
	require.NoError(t, err)

	records, err := e.Contracts(context.Background())
	require.NoError(t, err)
	labels := map[string]types.Address{}
	for _, r := range records {
		labels[r.Label] = r.Address
	}

	want := map[string]types.Address{
		"parent/core":     d.Parent.Core,
		"parent/proposal": d.Parent.Proposal,
		"parent/overrule": d.Parent.Overrule,
		"alpha/core":      d.Subdaos["alpha"].Core,
		"alpha/proposal":  d.Subdaos["alpha"].Proposal,
		"alpha/timelock":  d.Subdaos["alpha"].Timelock,
		"beta/core":       d.Subdaos["beta"].Core,
		"beta/proposal":   d.Subdaos["beta"].Proposal,
		"beta/timelock":   d.Subdaos["beta"].Timelock,
	}
	assert.Equal(t, want, labels)

	// The admission module is created by the parent proposal module.
	assert.Equal(t, engine.ContractAddress(d.Parent.Proposal, "parent/overrule"), d.Parent.Overrule)
	assert.Equal(t, engine.ContractAddress(deployer, "beta/timelock"), d.Subdaos["beta"].Timelock)
	assert.Equal(t, "Beta", d.Subdaos["beta"].Name)
}

func TestDeploy_Deterministic(t *testing.T) {
	topo, err := topology.Parse("m.cue", []byte(testutil.DefaultManifest))
	require.NoError(t, err)

	deploy := func() *topology.Deployment {
		e := testutil.NewEngine(t, topology.Codes())
		d, err := topology.Deploy(context.Background(), e, testutil.Account("deployer"), topo)
		require.NoError(t, err)
		return d
	}
	assert.Equal(t, deploy(), deploy())
}

func TestDeploy_LabelsAreUnique(t *testing.T) {
	w := testutil.NewWorld(t, "")
	topo, err := topology.Parse("m.cue", []byte(testutil.DefaultManifest))
	require.NoError(t, err)

	_, err = topology.Deploy(context.Background(), w.Engine, w.Deployer, topo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent/core")
}
