package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/topology"
	"github.com/roach88/vetogate/internal/types"
)

// DefaultManifest deploys a parent DAO with a one hour voting period and a
// single subDAO "Alpha" under key "alpha".
const DefaultManifest = `
parent: {
	name:              "Neutron DAO"
	max_voting_period: time: 3600
}
subdaos: alpha: {
	name:              "Alpha"
	description:       "grants"
	max_voting_period: time: 600
}
`

// LockPeriod is the timelock duration of DefaultManifest (the parent's voting period).
const LockPeriod = time.Hour

// World is a deployed topology on a fresh engine.
type World struct {
	t        *testing.T
	Engine   *engine.Engine
	Deployer types.Address
	*topology.Deployment
}

// NewWorld deploys manifest (DefaultManifest when empty) on a fresh engine.
func NewWorld(t *testing.T, manifest string, opts ...engine.EngineOption) *World {
	t.Helper()
	if manifest == "" {
		manifest = DefaultManifest
	}
	topo, err := topology.Parse("manifest.cue", []byte(manifest))
	require.NoError(t, err)

	e := NewEngine(t, topology.Codes(), opts...)
	deployer := Account("deployer")
	d, err := topology.Deploy(context.Background(), e, deployer, topo)
	require.NoError(t, err)

	return &World{t: t, Engine: e, Deployer: deployer, Deployment: d}
}

// Sub returns the contracts of subDAO key.
func (w *World) Sub(key string) topology.SubdaoContracts {
	w.t.Helper()
	sc, ok := w.Subdaos[key]
	require.True(w.t, ok, "unknown subdao %q", key)
	return sc
}

// Exec executes msg as sender and returns the outcome and the command error.
func (w *World) Exec(sender, contract types.Address, msg any) (*engine.Outcome, error) {
	return w.Engine.Execute(context.Background(), sender, contract, msg)
}

// MustExec executes msg as sender and fails the test on a command error.
func (w *World) MustExec(sender, contract types.Address, msg any) *engine.Outcome {
	w.t.Helper()
	out, err := w.Exec(sender, contract, msg)
	require.NoError(w.t, err)
	return out
}

// Query decodes the result of msg against contract into out.
func (w *World) Query(contract types.Address, msg any, out any) {
	w.t.Helper()
	require.NoError(w.t, w.Engine.QueryInto(context.Background(), contract, msg, out))
}

// Advance moves block time forward by d and height by one block.
func (w *World) Advance(d time.Duration) {
	w.t.Helper()
	_, err := w.Engine.Advance(context.Background(), d, 1)
	require.NoError(w.t, err)
}

// PassSubdaoProposal creates, passes and executes a proposal with msgs in the
// proposal module of subDAO key. Execution hands the msgs to the timelock.
// Returns the outcome of the execute command and the proposal id.
func (w *World) PassSubdaoProposal(key string, msgs ...types.Msg) (*engine.Outcome, uint64) {
	w.t.Helper()
	sc := w.Sub(key)
	if msgs == nil {
		msgs = []types.Msg{}
	}

	out := w.MustExec(Account("member"), sc.Proposal, types.Variant("propose", map[string]any{
		"title":       "subdao proposal",
		"description": "",
		"msgs":        msgs,
	}))
	var id uint64
	require.NoError(w.t, json.Unmarshal(out.Data, &id))

	w.MustExec(w.Deployer, sc.Proposal, types.Variant("pass", map[string]any{"proposal_id": id}))
	out = w.MustExec(Account("member"), sc.Proposal, types.Variant("execute", map[string]any{"proposal_id": id}))
	return out, id
}

// TimelockProposal returns the timelock record id of subDAO key.
func (w *World) TimelockProposal(key string, id uint64) types.TimelockedProposal {
	w.t.Helper()
	var p types.TimelockedProposal
	w.Query(w.Sub(key).Timelock, types.Variant("proposal", map[string]any{"proposal_id": id}), &p)
	return p
}

// OverruleProposalID returns the veto proposal id recorded for (subDAO key, id).
func (w *World) OverruleProposalID(key string, id uint64) (uint64, error) {
	var vetoID uint64
	err := w.Engine.QueryInto(context.Background(), w.Parent.Overrule, types.Variant("query_extension", map[string]any{
		"msg": types.Variant("overrule_proposal_id", map[string]any{
			"subdao_proposal_id": id,
			"timelock_address":   w.Sub(key).Timelock,
		}),
	}), &vetoID)
	return vetoID, err
}
