package timelock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// CodeName is the name the timelock code is registered under.
const CodeName = "timelock"

const (
	// DefaultLimit is the page size of list_proposals when none is requested.
	DefaultLimit = 30
	// MaxLimit caps the requested page size.
	MaxLimit = 100
)

// Contract is the subDAO timelock code.
type Contract struct{}

var (
	_ engine.Contract = Contract{}
	_ engine.Replier  = Contract{}
)

// New returns the timelock code.
func New() Contract {
	return Contract{}
}

// Instantiate resolves the owner as the subDAO core's main DAO.
func (Contract) Instantiate(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (engine.Response, error) {
	var msg InstantiateMsg
	if err := types.DecodeStrict(raw, &msg); err != nil {
		return engine.Response{}, err
	}
	prePropose, err := types.ParseAddress(msg.OverrulePrePropose)
	if err != nil {
		return engine.Response{}, fmt.Errorf("overrule_pre_propose: %w", err)
	}

	var subdao types.Address
	if msg.Subdao != nil {
		if subdao, err = types.ParseAddress(*msg.Subdao); err != nil {
			return engine.Response{}, fmt.Errorf("subdao: %w", err)
		}
	} else if err := deps.Query(ctx, env.Sender, types.Variant("dao", nil), &subdao); err != nil {
		return engine.Response{}, fmt.Errorf("resolve subdao through %s: %w", env.Sender.Hex(), err)
	}

	var owner types.Address
	if err := deps.Query(ctx, subdao, types.Variant("main_dao", nil), &owner); err != nil {
		return engine.Response{}, fmt.Errorf("resolve main dao of %s: %w", subdao.Hex(), err)
	}

	cfg := types.TimelockConfig{Owner: owner, OverrulePrePropose: prePropose, Subdao: subdao}
	if err := deps.Tx.SaveTimelockConfig(ctx, env.Contract, cfg); err != nil {
		return engine.Response{}, err
	}

	return engine.NewResponse("instantiate").
		WithAttr("owner", cfg.Owner).
		WithAttr("overrule_pre_propose", cfg.OverrulePrePropose).
		WithAttr("subdao", cfg.Subdao), nil
}

// Execute dispatches timelock_proposal, execute_proposal, overrule_proposal and
// update_config.
func (c Contract) Execute(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (engine.Response, error) {
	name, body, err := types.DecodeVariant(raw)
	if err != nil {
		return engine.Response{}, err
	}
	cfg, err := deps.Tx.TimelockConfig(ctx, env.Contract)
	if err != nil {
		return engine.Response{}, err
	}

	switch name {
	case "timelock_proposal":
		var msg TimelockProposalMsg
		if err := types.DecodeStrict(body, &msg); err != nil {
			return engine.Response{}, err
		}
		if err := types.CheckProposalID(msg.ProposalID); err != nil {
			return engine.Response{}, err
		}
		return c.timelockProposal(ctx, deps, env, cfg, msg)
	case "execute_proposal":
		var msg ProposalIDMsg
		if err := types.DecodeStrict(body, &msg); err != nil {
			return engine.Response{}, err
		}
		if err := types.CheckProposalID(msg.ProposalID); err != nil {
			return engine.Response{}, err
		}
		return c.executeProposal(ctx, deps, env, cfg, msg.ProposalID)
	case "overrule_proposal":
		var msg ProposalIDMsg
		if err := types.DecodeStrict(body, &msg); err != nil {
			return engine.Response{}, err
		}
		if err := types.CheckProposalID(msg.ProposalID); err != nil {
			return engine.Response{}, err
		}
		return c.overruleProposal(ctx, deps, env, cfg, msg.ProposalID)
	case "update_config":
		var msg UpdateConfigMsg
		if err := types.DecodeStrict(body, &msg); err != nil {
			return engine.Response{}, err
		}
		return c.updateConfig(ctx, deps, env, cfg, msg)
	default:
		return engine.Response{}, types.Errorf(types.KindUnknownMessage, "timelock: unknown command %q", name)
	}
}

func (Contract) timelockProposal(ctx context.Context, deps engine.Deps, env engine.Env, cfg types.TimelockConfig, msg TimelockProposalMsg) (engine.Response, error) {
	if env.Sender != cfg.Subdao {
		return engine.Response{}, errUnauthorized(env.Sender, "timelock_proposal")
	}

	p := types.TimelockedProposal{
		ID:         msg.ProposalID,
		Msgs:       msg.Msgs,
		TimelockTS: env.Time,
		Status:     types.StatusTimelocked,
	}
	if p.Msgs == nil {
		p.Msgs = []types.Msg{}
	}
	err := deps.Tx.InsertTimelockProposal(ctx, env.Contract, p)
	if errors.Is(err, store.ErrConflict) {
		return engine.Response{}, types.Errorf(types.KindDuplicateProposal, "proposal %d is already timelocked", p.ID)
	}
	if err != nil {
		return engine.Response{}, err
	}
	if digest, err := types.MsgsDigest(p.Msgs); err == nil {
		deps.Logger().Debug("proposal timelocked", "proposal_id", p.ID, "msgs", len(p.Msgs), "msgs_digest", digest)
	}

	propose, err := types.NewMsg(cfg.OverrulePrePropose, proposeOverruleMsg(env.Contract, p.ID))
	if err != nil {
		return engine.Response{}, err
	}

	// Fire-and-forget: a failed veto request never undoes the record.
	return engine.NewResponse("timelock_proposal").
		WithMessage(propose).
		WithAttr("sender", env.Sender).
		WithAttr("proposal_id", p.ID).
		WithAttr("status", p.Status), nil
}

func (Contract) executeProposal(ctx context.Context, deps engine.Deps, env engine.Env, cfg types.TimelockConfig, id uint64) (engine.Response, error) {
	p, err := loadProposal(ctx, deps.Tx, env.Contract, id)
	if err != nil {
		return engine.Response{}, err
	}
	if p.Status != types.StatusTimelocked {
		return engine.Response{}, errWrongStatus(p)
	}

	lock, err := lockDuration(ctx, deps, cfg.OverrulePrePropose)
	if err != nil {
		return engine.Response{}, err
	}
	if unlock := p.UnlocksAt(lock); env.Time.Before(unlock) {
		return engine.Response{}, types.Errorf(types.KindTimeLocked,
			"proposal %d is timelocked until %s", id, unlock.UTC().Format(time.RFC3339))
	}

	if err := deps.Tx.SetTimelockProposalStatus(ctx, env.Contract, id, types.StatusExecuted); err != nil {
		return engine.Response{}, err
	}

	resp := engine.NewResponse("execute_proposal").
		WithAttr("sender", env.Sender).
		WithAttr("proposal_id", id)
	for _, m := range p.Msgs {
		resp = resp.WithSubMsg(engine.SubMsg{ID: id, Msg: m, ReplyOn: engine.ReplyOnError})
	}
	return resp, nil
}

func (Contract) overruleProposal(ctx context.Context, deps engine.Deps, env engine.Env, cfg types.TimelockConfig, id uint64) (engine.Response, error) {
	if env.Sender != cfg.Owner {
		return engine.Response{}, errUnauthorized(env.Sender, "overrule_proposal")
	}
	p, err := loadProposal(ctx, deps.Tx, env.Contract, id)
	if err != nil {
		return engine.Response{}, err
	}
	if p.Status != types.StatusTimelocked {
		return engine.Response{}, errWrongStatus(p)
	}
	if err := deps.Tx.SetTimelockProposalStatus(ctx, env.Contract, id, types.StatusOverruled); err != nil {
		return engine.Response{}, err
	}

	return engine.NewResponse("overrule_proposal").
		WithAttr("sender", env.Sender).
		WithAttr("proposal_id", id), nil
}

func (Contract) updateConfig(ctx context.Context, deps engine.Deps, env engine.Env, cfg types.TimelockConfig, msg UpdateConfigMsg) (engine.Response, error) {
	if env.Sender != cfg.Owner {
		return engine.Response{}, errUnauthorized(env.Sender, "update_config")
	}

	owner, err := types.ParseOptionalAddress(msg.Owner)
	if err != nil {
		return engine.Response{}, fmt.Errorf("owner: %w", err)
	}
	prePropose, err := types.ParseOptionalAddress(msg.OverrulePrePropose)
	if err != nil {
		return engine.Response{}, fmt.Errorf("overrule_pre_propose: %w", err)
	}
	if owner != nil {
		cfg.Owner = *owner
	}
	if prePropose != nil {
		cfg.OverrulePrePropose = *prePropose
	}
	if err := deps.Tx.SaveTimelockConfig(ctx, env.Contract, cfg); err != nil {
		return engine.Response{}, err
	}

	return engine.NewResponse("update_config").
		WithAttr("owner", cfg.Owner).
		WithAttr("overrule_pre_propose", cfg.OverrulePrePropose), nil
}

// Reply marks the proposal whose dispatched message failed. It overwrites any
// prior status, executed included.
func (Contract) Reply(ctx context.Context, deps engine.Deps, env engine.Env, reply engine.Reply) (engine.Response, error) {
	if _, err := loadProposal(ctx, deps.Tx, env.Contract, reply.ID); err != nil {
		return engine.Response{}, err
	}
	if err := deps.Tx.SetTimelockProposalStatus(ctx, env.Contract, reply.ID, types.StatusExecutionFailed); err != nil {
		return engine.Response{}, err
	}

	deps.Logger().Info("timelocked proposal execution failed",
		"proposal_id", reply.ID,
		"kind", string(reply.Kind),
		"error", reply.Error,
	)
	return engine.Response{}.WithAttr("timelocked_proposal_execution_failed", reply.ID), nil
}

// Query answers config, proposal and list_proposals.
func (Contract) Query(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (json.RawMessage, error) {
	name, body, err := types.DecodeVariant(raw)
	if err != nil {
		return nil, err
	}

	switch name {
	case "config":
		cfg, err := deps.Tx.TimelockConfig(ctx, env.Contract)
		if err != nil {
			return nil, err
		}
		return types.MarshalCanonical(cfg)
	case "proposal":
		var q ProposalIDMsg
		if err := types.DecodeStrict(body, &q); err != nil {
			return nil, err
		}
		if err := types.CheckProposalID(q.ProposalID); err != nil {
			return nil, err
		}
		p, err := loadProposal(ctx, deps.Tx, env.Contract, q.ProposalID)
		if err != nil {
			return nil, err
		}
		return types.MarshalCanonical(p)
	case "list_proposals":
		var q ListProposalsQuery
		if err := types.DecodeStrict(body, &q); err != nil {
			return nil, err
		}
		if q.StartAfter != nil {
			if err := types.CheckProposalID(*q.StartAfter); err != nil {
				return nil, err
			}
		}
		proposals, err := deps.Tx.ListTimelockProposals(ctx, env.Contract, q.StartAfter, pageLimit(q.Limit))
		if err != nil {
			return nil, err
		}
		return types.MarshalCanonical(ProposalListResponse{Proposals: proposals})
	default:
		return nil, types.Errorf(types.KindUnknownMessage, "timelock: unknown query %q", name)
	}
}

// lockDuration reads max_voting_period of the parent proposal module, reached
// through the admission module. Only time-based periods are usable.
func lockDuration(ctx context.Context, deps engine.Deps, prePropose types.Address) (time.Duration, error) {
	var module types.Address
	if err := deps.Query(ctx, prePropose, types.Variant("proposal_module", nil), &module); err != nil {
		return 0, fmt.Errorf("resolve proposal module through %s: %w", prePropose.Hex(), err)
	}
	var cfg votingConfig
	if err := deps.Query(ctx, module, types.Variant("config", nil), &cfg); err != nil {
		return 0, fmt.Errorf("read config of %s: %w", module.Hex(), err)
	}
	if !cfg.MaxVotingPeriod.IsTime() {
		return 0, types.Errorf(types.KindCantCreateOverrule,
			"can't create overrule: max voting period %s is not time-based", cfg.MaxVotingPeriod)
	}
	return cfg.MaxVotingPeriod.Seconds()
}

func loadProposal(ctx context.Context, tx *store.Tx, contract types.Address, id uint64) (types.TimelockedProposal, error) {
	p, err := tx.TimelockProposal(ctx, contract, id)
	if errors.Is(err, store.ErrNotFound) {
		return types.TimelockedProposal{}, types.Errorf(types.KindNoSuchProposal, "no such proposal (%d)", id)
	}
	return p, err
}

func pageLimit(requested *uint64) int {
	if requested == nil {
		return DefaultLimit
	}
	return int(min(*requested, MaxLimit))
}

func errUnauthorized(sender types.Address, command string) error {
	return types.Errorf(types.KindUnauthorized, "unauthorized: %s may not %s", sender.Hex(), command)
}

func errWrongStatus(p types.TimelockedProposal) error {
	return types.Errorf(types.KindWrongStatus, "wrong status: proposal %d is %s", p.ID, p.Status)
}
