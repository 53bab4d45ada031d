package overrule

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// contractRegistry answers Registry lookups by querying the timelock and DAO
// core contracts.
type contractRegistry struct {
	deps engine.Deps
}

// NewRegistry returns a Registry backed by contract queries made through deps.
func NewRegistry(deps engine.Deps) Registry {
	return contractRegistry{deps: deps}
}

func (r contractRegistry) TimelockSubdao(ctx context.Context, timelock types.Address) (types.Address, error) {
	var cfg types.TimelockConfig
	if err := r.deps.Query(ctx, timelock, types.Variant("config", nil), &cfg); err != nil {
		return types.ZeroAddress, err
	}
	return cfg.Subdao, nil
}

func (r contractRegistry) SubdaoTimelock(ctx context.Context, subdao types.Address) (types.Address, error) {
	var addr types.Address
	err := r.deps.Query(ctx, subdao, types.Variant("timelock_address", nil), &addr)
	return addr, err
}

func (r contractRegistry) SubdaoParent(ctx context.Context, subdao types.Address) (types.Address, error) {
	var addr types.Address
	err := r.deps.Query(ctx, subdao, types.Variant("main_dao", nil), &addr)
	return addr, err
}

type subDaoEntry struct {
	Addr types.Address `json:"addr"`
}

func (r contractRegistry) IsRegisteredSubdao(ctx context.Context, parent, subdao types.Address) (bool, error) {
	var subDaos []subDaoEntry
	if err := r.deps.Query(ctx, parent, types.Variant("list_sub_daos", nil), &subDaos); err != nil {
		return false, err
	}
	return lo.ContainsBy(subDaos, func(s subDaoEntry) bool {
		return s.Addr == subdao
	}), nil
}

func (r contractRegistry) SubdaoName(ctx context.Context, subdao types.Address) (string, error) {
	var cfg struct {
		Name string `json:"name"`
	}
	err := r.deps.Query(ctx, subdao, types.Variant("config", nil), &cfg)
	return cfg.Name, err
}

func (r contractRegistry) TimelockProposalStatus(ctx context.Context, timelock types.Address, id uint64) (types.ProposalStatus, bool, error) {
	var p types.TimelockedProposal
	err := r.deps.Query(ctx, timelock, types.Variant("proposal", map[string]any{"proposal_id": id}), &p)
	if types.IsKind(err, types.KindNoSuchProposal) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.Status, true, nil
}

// storeLedger reads the overrule records of one admission module.
type storeLedger struct {
	tx        *store.Tx
	admission types.Address
}

// NewLedger returns the Ledger of the admission module at admission.
func NewLedger(tx *store.Tx, admission types.Address) Ledger {
	return storeLedger{tx: tx, admission: admission}
}

func (l storeLedger) OverruleProposalID(ctx context.Context, timelock types.Address, subdaoProposalID uint64) (uint64, bool, error) {
	rec, err := l.tx.OverruleRecord(ctx, l.admission, timelock, subdaoProposalID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rec.OverruleProposalID, true, nil
}
