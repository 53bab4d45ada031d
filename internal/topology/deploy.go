package topology

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/vetogate/internal/daostub"
	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/overrule"
	"github.com/roach88/vetogate/internal/timelock"
	"github.com/roach88/vetogate/internal/types"
)

// Contract roles, used as the second half of instance labels.
const (
	RoleCore     = "core"
	RoleProposal = "proposal"
	RoleOverrule = "overrule"
	RoleTimelock = "timelock"
)

// ParentKey is the label prefix of the parent DAO.
const ParentKey = "parent"

// Label returns the instance label of a contract, e.g. "alpha/timelock".
func Label(dao, role string) string {
	return dao + "/" + role
}

// Codes returns every code a deployment needs, keyed by code name.
func Codes() map[string]engine.Contract {
	return map[string]engine.Contract{
		timelock.CodeName:        timelock.New(),
		overrule.CodeName:        overrule.New(),
		daostub.CoreCodeName:     daostub.Core{},
		daostub.ProposalCodeName: daostub.ProposalModule{},
	}
}

// ParentContracts are the addresses of the parent DAO's contracts.
type ParentContracts struct {
	Core     types.Address `json:"core"`
	Proposal types.Address `json:"proposal"`
	Overrule types.Address `json:"overrule"`
}

// SubdaoContracts are the addresses of one subDAO's contracts.
type SubdaoContracts struct {
	Name     string        `json:"name"`
	Core     types.Address `json:"core"`
	Proposal types.Address `json:"proposal"`
	Timelock types.Address `json:"timelock"`
}

// Deployment is the result of Deploy.
type Deployment struct {
	Deployer types.Address              `json:"deployer"`
	Parent   ParentContracts            `json:"parent"`
	Subdaos  map[string]SubdaoContracts `json:"subdaos"`
}

// Deploy instantiates and wires every contract of t. The deployer becomes the
// admin of every DAO core and proposal module.
//
// Order: parent core, parent proposal module, admission module (instantiated by
// the proposal module), then per subDAO: core, timelock, proposal module, and
// finally registration with the parent core.
func Deploy(ctx context.Context, e *engine.Engine, deployer types.Address, t *Topology) (*Deployment, error) {
	d := &Deployment{Deployer: deployer, Subdaos: map[string]SubdaoContracts{}}
	dep := deployment{ctx: ctx, e: e, deployer: deployer}

	d.Parent.Core = dep.instantiate(deployer, daostub.CoreCodeName, Label(ParentKey, RoleCore), map[string]any{
		"name":        t.Parent.Name,
		"description": t.Parent.Description,
	})
	d.Parent.Proposal = dep.instantiate(deployer, daostub.ProposalCodeName, Label(ParentKey, RoleProposal), map[string]any{
		"dao":               d.Parent.Core,
		"max_voting_period": t.Parent.MaxVotingPeriod,
	})
	dep.execute(d.Parent.Core, types.Variant("register_proposal_module", map[string]any{"addr": d.Parent.Proposal}))
	d.Parent.Overrule = dep.instantiate(d.Parent.Proposal, overrule.CodeName, Label(ParentKey, RoleOverrule), nil)
	dep.execute(d.Parent.Proposal, types.Variant("set_pre_propose", map[string]any{"addr": d.Parent.Overrule}))

	for _, key := range t.SubdaoKeys() {
		sub := t.Subdaos[key]
		sc := SubdaoContracts{Name: sub.Name}

		sc.Core = dep.instantiate(deployer, daostub.CoreCodeName, Label(key, RoleCore), map[string]any{
			"name":        sub.Name,
			"description": sub.Description,
			"main_dao":    d.Parent.Core,
		})
		sc.Timelock = dep.instantiate(deployer, timelock.CodeName, Label(key, RoleTimelock), map[string]any{
			"overrule_pre_propose": d.Parent.Overrule,
			"subdao":               sc.Core,
		})
		dep.execute(sc.Core, types.Variant("set_item", map[string]any{"key": daostub.ItemTimelock, "addr": sc.Timelock}))
		sc.Proposal = dep.instantiate(deployer, daostub.ProposalCodeName, Label(key, RoleProposal), map[string]any{
			"dao":               sc.Core,
			"max_voting_period": sub.MaxVotingPeriod,
			"timelock":          sc.Timelock,
		})
		dep.execute(sc.Core, types.Variant("register_proposal_module", map[string]any{"addr": sc.Proposal}))
		dep.execute(d.Parent.Core, types.Variant("update_sub_daos", map[string]any{
			"to_add":    []daostub.SubDao{{Addr: sc.Core, Charter: sub.Description}},
			"to_remove": []string{},
		}))

		d.Subdaos[key] = sc
	}

	if dep.err != nil {
		return nil, dep.err
	}
	slog.Info("topology deployed",
		"parent", t.Parent.Name,
		"subdaos", len(d.Subdaos),
		"overrule", d.Parent.Overrule.Hex(),
	)
	return d, nil
}

// deployment runs the deploy steps and keeps the first error.
type deployment struct {
	ctx      context.Context
	e        *engine.Engine
	deployer types.Address
	err      error
}

func (d *deployment) instantiate(sender types.Address, code, label string, msg any) types.Address {
	if d.err != nil {
		return types.ZeroAddress
	}
	out, err := d.e.Instantiate(d.ctx, sender, code, label, msg)
	if err != nil {
		d.err = fmt.Errorf("deploy %s: %w", label, err)
		return types.ZeroAddress
	}
	return out.Contract
}

func (d *deployment) execute(contract types.Address, msg any) {
	if d.err != nil {
		return
	}
	if _, err := d.e.Execute(d.ctx, d.deployer, contract, msg); err != nil {
		d.err = fmt.Errorf("deploy: configure %s: %w", contract.Hex(), err)
	}
}
