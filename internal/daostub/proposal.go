package daostub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// ProposalCodeName is the name the proposal module code is registered under.
const ProposalCodeName = "proposal-single"

const (
	// DefaultLimit is the page size of list_proposals when none is requested.
	DefaultLimit = 30
	// MaxLimit caps the requested page size.
	MaxLimit = 100
)

// Proposal statuses. Tallying is out of scope: pass and reject set the outcome directly.
const (
	StatusOpen            = "open"
	StatusPassed          = "passed"
	StatusRejected        = "rejected"
	StatusExecuted        = "executed"
	StatusExecutionFailed = "execution_failed"
)

// ProposalInstantiateMsg configures a proposal module.
type ProposalInstantiateMsg struct {
	DAO             string         `json:"dao" validate:"required,eth_addr"`
	MaxVotingPeriod types.Duration `json:"max_voting_period"`
	Timelock        *string        `json:"timelock,omitempty"`
	PrePropose      *string        `json:"pre_propose,omitempty"`
}

// ProposalConfig is the stored configuration of a proposal module.
type ProposalConfig struct {
	DAO             types.Address  `json:"dao"`
	MaxVotingPeriod types.Duration `json:"max_voting_period"`
	// Timelock, when set, wraps the msgs of every executed proposal into a
	// timelock_proposal command instead of running them directly.
	Timelock *types.Address `json:"timelock,omitempty"`
	// PrePropose, when set, is the only sender allowed to create proposals.
	PrePropose *types.Address `json:"pre_propose,omitempty"`
	Admin      types.Address  `json:"admin"`
}

// Proposal is one proposal of the module.
type Proposal struct {
	ID          uint64        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Proposer    types.Address `json:"proposer"`
	Msgs        []types.Msg   `json:"msgs"`
	Status      string        `json:"status"`
	StartHeight uint64        `json:"start_height"`
}

// ProposeMsg creates a proposal. The proposer defaults to the sender.
type ProposeMsg struct {
	Title       string      `json:"title" validate:"required"`
	Description string      `json:"description"`
	Msgs        []types.Msg `json:"msgs"`
	Proposer    *string     `json:"proposer,omitempty"`
}

// ProposalListResponse is returned by list_proposals.
type ProposalListResponse struct {
	Proposals []Proposal `json:"proposals"`
}

type proposalIDMsg struct {
	ProposalID uint64 `json:"proposal_id"`
}

type listProposalsQuery struct {
	StartAfter *uint64 `json:"start_after,omitempty"`
	Limit      *uint64 `json:"limit,omitempty"`
}

const (
	keyProposalConfig = "config"
	keyProposalCount  = "proposal_count"
	prefixProposal    = "proposal/"
)

// proposalKey zero-pads ids so that key order is id order.
func proposalKey(id uint64) string {
	return fmt.Sprintf("%s%020d", prefixProposal, id)
}

// ProposalModule is a single-choice proposal module without voting.
type ProposalModule struct{}

var (
	_ engine.Contract = ProposalModule{}
	_ engine.Replier  = ProposalModule{}
)

// Instantiate stores the configuration. The sender becomes the admin.
func (ProposalModule) Instantiate(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (engine.Response, error) {
	var msg ProposalInstantiateMsg
	if err := types.DecodeStrict(raw, &msg); err != nil {
		return engine.Response{}, err
	}
	if err := types.ValidateStruct(types.KindInvalidConfig, msg); err != nil {
		return engine.Response{}, err
	}
	if err := msg.MaxVotingPeriod.Validate(); err != nil {
		return engine.Response{}, err
	}
	dao, err := types.ParseAddress(msg.DAO)
	if err != nil {
		return engine.Response{}, fmt.Errorf("dao: %w", err)
	}
	timelock, err := types.ParseOptionalAddress(msg.Timelock)
	if err != nil {
		return engine.Response{}, fmt.Errorf("timelock: %w", err)
	}
	prePropose, err := types.ParseOptionalAddress(msg.PrePropose)
	if err != nil {
		return engine.Response{}, fmt.Errorf("pre_propose: %w", err)
	}

	cfg := ProposalConfig{
		DAO:             dao,
		MaxVotingPeriod: msg.MaxVotingPeriod,
		Timelock:        timelock,
		PrePropose:      prePropose,
		Admin:           env.Sender,
	}
	if err := deps.Tx.SaveJSON(ctx, env.Contract, keyProposalConfig, cfg); err != nil {
		return engine.Response{}, err
	}
	if err := deps.Tx.SaveJSON(ctx, env.Contract, keyProposalCount, uint64(0)); err != nil {
		return engine.Response{}, err
	}
	return engine.NewResponse("instantiate").
		WithAttr("dao", dao).
		WithAttr("max_voting_period", cfg.MaxVotingPeriod), nil
}

// Execute handles propose, pass, reject, execute and set_pre_propose.
func (m ProposalModule) Execute(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (engine.Response, error) {
	name, body, err := types.DecodeVariant(raw)
	if err != nil {
		return engine.Response{}, err
	}
	var cfg ProposalConfig
	if err := deps.Tx.LoadJSON(ctx, env.Contract, keyProposalConfig, &cfg); err != nil {
		return engine.Response{}, err
	}

	switch name {
	case "propose":
		var msg ProposeMsg
		if err := decodeValid(body, &msg); err != nil {
			return engine.Response{}, err
		}
		return m.propose(ctx, deps, env, cfg, msg)
	case "pass", "reject":
		if env.Sender != cfg.Admin && env.Sender != cfg.DAO {
			return engine.Response{}, types.Errorf(types.KindUnauthorized, "unauthorized: %s may not %s", env.Sender.Hex(), name)
		}
		var msg proposalIDMsg
		if err := types.DecodeStrict(body, &msg); err != nil {
			return engine.Response{}, err
		}
		status := StatusPassed
		if name == "reject" {
			status = StatusRejected
		}
		return m.close(ctx, deps, env, msg.ProposalID, status)
	case "execute":
		var msg proposalIDMsg
		if err := types.DecodeStrict(body, &msg); err != nil {
			return engine.Response{}, err
		}
		return m.execute(ctx, deps, env, cfg, msg.ProposalID)
	case "set_pre_propose":
		if env.Sender != cfg.Admin && env.Sender != cfg.DAO {
			return engine.Response{}, types.Errorf(types.KindUnauthorized, "unauthorized: %s may not set_pre_propose", env.Sender.Hex())
		}
		var msg moduleMsg
		if err := decodeValid(body, &msg); err != nil {
			return engine.Response{}, err
		}
		addr, err := types.ParseAddress(msg.Addr)
		if err != nil {
			return engine.Response{}, err
		}
		cfg.PrePropose = &addr
		if err := deps.Tx.SaveJSON(ctx, env.Contract, keyProposalConfig, cfg); err != nil {
			return engine.Response{}, err
		}
		return engine.NewResponse("set_pre_propose").WithAttr("pre_propose", addr), nil
	default:
		return engine.Response{}, types.Errorf(types.KindUnknownMessage, "proposal-single: unknown command %q", name)
	}
}

func (ProposalModule) propose(ctx context.Context, deps engine.Deps, env engine.Env, cfg ProposalConfig, msg ProposeMsg) (engine.Response, error) {
	if cfg.PrePropose != nil && env.Sender != *cfg.PrePropose {
		return engine.Response{}, types.Errorf(types.KindUnauthorized,
			"unauthorized: proposals must be submitted through %s", cfg.PrePropose.Hex())
	}
	proposer := env.Sender
	if msg.Proposer != nil {
		if cfg.PrePropose == nil {
			return engine.Response{}, types.Errorf(types.KindUnknownMessage, "proposer may only be set by a pre-propose module")
		}
		addr, err := types.ParseAddress(*msg.Proposer)
		if err != nil {
			return engine.Response{}, fmt.Errorf("proposer: %w", err)
		}
		proposer = addr
	}

	var count uint64
	if err := deps.Tx.LoadJSON(ctx, env.Contract, keyProposalCount, &count); err != nil {
		return engine.Response{}, err
	}
	count++
	p := Proposal{
		ID:          count,
		Title:       msg.Title,
		Description: msg.Description,
		Proposer:    proposer,
		Msgs:        lo.Ternary(msg.Msgs == nil, []types.Msg{}, msg.Msgs),
		Status:      StatusOpen,
		StartHeight: env.Height,
	}
	if err := deps.Tx.SaveJSON(ctx, env.Contract, proposalKey(p.ID), p); err != nil {
		return engine.Response{}, err
	}
	if err := deps.Tx.SaveJSON(ctx, env.Contract, keyProposalCount, count); err != nil {
		return engine.Response{}, err
	}

	return engine.NewResponse("propose").
		WithAttr("sender", env.Sender).
		WithAttr("proposal_id", p.ID).
		WithAttr("proposer", p.Proposer).
		WithData(p.ID)
}

func (ProposalModule) close(ctx context.Context, deps engine.Deps, env engine.Env, id uint64, status string) (engine.Response, error) {
	p, err := loadStubProposal(ctx, deps.Tx, env.Contract, id)
	if err != nil {
		return engine.Response{}, err
	}
	if p.Status != StatusOpen {
		return engine.Response{}, types.Errorf(types.KindWrongStatus, "wrong status: proposal %d is %s", id, p.Status)
	}
	p.Status = status
	if err := deps.Tx.SaveJSON(ctx, env.Contract, proposalKey(id), p); err != nil {
		return engine.Response{}, err
	}
	return engine.NewResponse(status).WithAttr("proposal_id", id), nil
}

// execute hands the msgs to the DAO core. Modules with a timelock hand over a
// single timelock_proposal command instead.
func (ProposalModule) execute(ctx context.Context, deps engine.Deps, env engine.Env, cfg ProposalConfig, id uint64) (engine.Response, error) {
	p, err := loadStubProposal(ctx, deps.Tx, env.Contract, id)
	if err != nil {
		return engine.Response{}, err
	}
	if p.Status != StatusPassed {
		return engine.Response{}, types.Errorf(types.KindWrongStatus, "wrong status: proposal %d is %s", id, p.Status)
	}
	p.Status = StatusExecuted
	if err := deps.Tx.SaveJSON(ctx, env.Contract, proposalKey(id), p); err != nil {
		return engine.Response{}, err
	}

	msgs := p.Msgs
	if cfg.Timelock != nil {
		wrapped, err := types.NewMsg(*cfg.Timelock, types.Variant("timelock_proposal", map[string]any{
			"proposal_id": id,
			"msgs":        p.Msgs,
		}))
		if err != nil {
			return engine.Response{}, err
		}
		msgs = []types.Msg{wrapped}
	}
	hook, err := types.NewMsg(cfg.DAO, types.Variant("execute_proposal_hook", hookMsg{Msgs: msgs}))
	if err != nil {
		return engine.Response{}, err
	}

	return engine.NewResponse("execute").
		WithSubMsg(engine.SubMsg{ID: id, Msg: hook, ReplyOn: engine.ReplyOnError}).
		WithAttr("sender", env.Sender).
		WithAttr("proposal_id", id), nil
}

// Reply marks a proposal whose execution hook failed.
func (ProposalModule) Reply(ctx context.Context, deps engine.Deps, env engine.Env, reply engine.Reply) (engine.Response, error) {
	p, err := loadStubProposal(ctx, deps.Tx, env.Contract, reply.ID)
	if err != nil {
		return engine.Response{}, err
	}
	p.Status = StatusExecutionFailed
	if err := deps.Tx.SaveJSON(ctx, env.Contract, proposalKey(p.ID), p); err != nil {
		return engine.Response{}, err
	}
	return engine.Response{}.WithAttr("proposal_execution_failed", p.ID), nil
}

// Query answers config, dao, proposal, proposal_count and list_proposals.
func (ProposalModule) Query(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (json.RawMessage, error) {
	name, body, err := types.DecodeVariant(raw)
	if err != nil {
		return nil, err
	}
	var cfg ProposalConfig
	if err := deps.Tx.LoadJSON(ctx, env.Contract, keyProposalConfig, &cfg); err != nil {
		return nil, err
	}

	switch name {
	case "config":
		return types.MarshalCanonical(cfg)
	case "dao":
		return types.MarshalCanonical(cfg.DAO)
	case "proposal":
		var q proposalIDMsg
		if err := types.DecodeStrict(body, &q); err != nil {
			return nil, err
		}
		p, err := loadStubProposal(ctx, deps.Tx, env.Contract, q.ProposalID)
		if err != nil {
			return nil, err
		}
		return types.MarshalCanonical(p)
	case "proposal_count":
		var count uint64
		if err := deps.Tx.LoadJSON(ctx, env.Contract, keyProposalCount, &count); err != nil {
			return nil, err
		}
		return types.MarshalCanonical(count)
	case "list_proposals":
		var q listProposalsQuery
		if err := types.DecodeStrict(body, &q); err != nil {
			return nil, err
		}
		return listStubProposals(ctx, deps.Tx, env.Contract, q)
	default:
		return nil, types.Errorf(types.KindUnknownMessage, "proposal-single: unknown query %q", name)
	}
}

func listStubProposals(ctx context.Context, tx *store.Tx, contract types.Address, q listProposalsQuery) (json.RawMessage, error) {
	limit := uint64(DefaultLimit)
	if q.Limit != nil {
		limit = min(*q.Limit, MaxLimit)
	}
	entries, err := tx.ScanState(ctx, contract, prefixProposal)
	if err != nil {
		return nil, err
	}

	out := []Proposal{}
	for _, kv := range entries {
		if uint64(len(out)) >= limit {
			break
		}
		var p Proposal
		if err := json.Unmarshal(kv.Value, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kv.Key, err)
		}
		if q.StartAfter != nil && p.ID <= *q.StartAfter {
			continue
		}
		out = append(out, p)
	}
	return types.MarshalCanonical(ProposalListResponse{Proposals: out})
}

func loadStubProposal(ctx context.Context, tx *store.Tx, contract types.Address, id uint64) (Proposal, error) {
	var p Proposal
	err := tx.LoadJSON(ctx, contract, proposalKey(id), &p)
	if errors.Is(err, store.ErrNotFound) {
		return Proposal{}, types.Errorf(types.KindNoSuchProposal, "no such proposal (%d)", id)
	}
	return p, err
}
