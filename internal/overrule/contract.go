package overrule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// CodeName is the name the admission code is registered under.
const CodeName = "overrule"

// ProposeOverrule asks for a veto proposal against a timelocked subDAO proposal.
type ProposeOverrule struct {
	TimelockContract string `json:"timelock_contract"`
	ProposalID       uint64 `json:"proposal_id"`
}

// OverruleProposalIDQuery resolves the veto proposal created for a subDAO proposal.
type OverruleProposalIDQuery struct {
	SubdaoProposalID uint64 `json:"subdao_proposal_id"`
	TimelockAddress  string `json:"timelock_address"`
}

// Config is the base pre-propose configuration reported by the config query.
type Config struct {
	DepositInfo            json.RawMessage `json:"deposit_info"`
	OpenProposalSubmission bool            `json:"open_proposal_submission"`
}

type proposeMsg struct {
	Msg json.RawMessage `json:"msg"`
}

type queryExtensionMsg struct {
	Msg json.RawMessage `json:"msg"`
}

// parentPropose is the propose command of the parent proposal module.
type parentPropose struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Msgs        []types.Msg `json:"msgs"`
	Proposer    string      `json:"proposer"`
}

// baseCommands are the generic pre-propose commands this module refuses.
var baseCommands = map[string]bool{
	"update_config":                  true,
	"withdraw":                       true,
	"extension":                      true,
	"add_proposal_submitted_hook":    true,
	"remove_proposal_submitted_hook": true,
	"proposal_completed_hook":        true,
}

// Contract is the overrule admission code. It fronts the parent DAO's proposal
// module and accepts exactly one proposal shape.
type Contract struct{}

var _ engine.Contract = Contract{}

// New returns the admission code.
func New() Contract {
	return Contract{}
}

// Instantiate must be sent by the parent proposal module; the DAO is read from
// its configuration.
func (Contract) Instantiate(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (engine.Response, error) {
	var msg struct{}
	if err := types.DecodeStrict(raw, &msg); err != nil {
		return engine.Response{}, err
	}
	var moduleCfg struct {
		DAO types.Address `json:"dao"`
	}
	if err := deps.Query(ctx, env.Sender, types.Variant("config", nil), &moduleCfg); err != nil {
		return engine.Response{}, fmt.Errorf("resolve dao through proposal module %s: %w", env.Sender.Hex(), err)
	}
	if moduleCfg.DAO == types.ZeroAddress {
		return engine.Response{}, types.Errorf(types.KindInvalidConfig, "proposal module %s has no dao", env.Sender.Hex())
	}

	cfg := store.OverruleConfig{
		DAO:                    moduleCfg.DAO,
		ProposalModule:         env.Sender,
		OpenProposalSubmission: true,
	}
	if err := deps.Tx.SaveOverruleConfig(ctx, env.Contract, cfg); err != nil {
		return engine.Response{}, err
	}
	return engine.NewResponse("instantiate").
		WithAttr("dao", cfg.DAO).
		WithAttr("proposal_module", cfg.ProposalModule), nil
}

// Execute accepts propose with a propose_overrule body. Every other command
// fails MessageUnsupported.
func (c Contract) Execute(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (engine.Response, error) {
	name, body, err := types.DecodeVariant(raw)
	if err != nil {
		return engine.Response{}, err
	}
	if baseCommands[name] {
		return engine.Response{}, fmt.Errorf("%w: %s", ErrMessageUnsupported, name)
	}
	if name != "propose" {
		return engine.Response{}, types.Errorf(types.KindUnknownMessage, "overrule: unknown command %q", name)
	}

	var msg proposeMsg
	if err := types.DecodeStrict(body, &msg); err != nil {
		return engine.Response{}, err
	}
	shape, inner, err := types.DecodeVariant(msg.Msg)
	if err != nil {
		return engine.Response{}, err
	}
	if shape != "propose_overrule" {
		return engine.Response{}, fmt.Errorf("%w: proposal shape %q", ErrMessageUnsupported, shape)
	}
	var req ProposeOverrule
	if err := types.DecodeStrict(inner, &req); err != nil {
		return engine.Response{}, err
	}
	if err := types.CheckProposalID(req.ProposalID); err != nil {
		return engine.Response{}, err
	}
	return c.proposeOverrule(ctx, deps, env, req)
}

func (Contract) proposeOverrule(ctx context.Context, deps engine.Deps, env engine.Env, msg ProposeOverrule) (engine.Response, error) {
	timelock, err := types.ParseAddress(msg.TimelockContract)
	if err != nil {
		return engine.Response{}, fmt.Errorf("timelock_contract: %w", err)
	}
	cfg, err := deps.Tx.OverruleConfig(ctx, env.Contract)
	if err != nil {
		return engine.Response{}, err
	}

	draft, err := Admit(ctx, NewRegistry(deps), NewLedger(deps.Tx, env.Contract), Request{
		DAO:        cfg.DAO,
		Caller:     env.Sender,
		Timelock:   timelock,
		ProposalID: msg.ProposalID,
	})
	if err != nil {
		return engine.Response{}, err
	}

	data, err := deps.Call(ctx, cfg.ProposalModule, types.Variant("propose", parentPropose{
		Title:       draft.Title,
		Description: draft.Description,
		Msgs:        draft.Msgs,
		Proposer:    draft.Proposer.Hex(),
	}))
	if err != nil {
		return engine.Response{}, fmt.Errorf("submit overrule proposal: %w", err)
	}
	var vetoID uint64
	if err := json.Unmarshal(data, &vetoID); err != nil {
		return engine.Response{}, fmt.Errorf("decode proposal id from %s: %w", cfg.ProposalModule.Hex(), err)
	}

	rec := types.OverruleRecord{
		RecordID:           types.RecordID(timelock, msg.ProposalID),
		Timelock:           timelock,
		SubdaoProposalID:   msg.ProposalID,
		OverruleProposalID: vetoID,
	}
	if err := deps.Tx.InsertOverruleRecord(ctx, env.Contract, rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return engine.Response{}, existingOverrule(ctx, deps.Tx, env.Contract, timelock, msg.ProposalID)
		}
		return engine.Response{}, err
	}

	deps.Logger().Info("overrule proposal created",
		"subdao", draft.SubdaoName,
		"timelock", timelock.Hex(),
		"subdao_proposal_id", msg.ProposalID,
		"overrule_proposal_id", vetoID,
	)
	return engine.NewResponse("propose_overrule").
		WithAttr("sender", env.Sender).
		WithAttr("timelock", timelock).
		WithAttr("subdao_proposal_id", msg.ProposalID).
		WithAttr("overrule_proposal_id", vetoID).
		WithData(vetoID)
}

// Query answers config, dao, proposal_module, pause_info and query_extension.
func (Contract) Query(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (json.RawMessage, error) {
	name, body, err := types.DecodeVariant(raw)
	if err != nil {
		return nil, err
	}
	cfg, err := deps.Tx.OverruleConfig(ctx, env.Contract)
	if err != nil {
		return nil, err
	}

	switch name {
	case "config":
		return types.MarshalCanonical(Config{
			DepositInfo:            cfg.DepositInfo,
			OpenProposalSubmission: cfg.OpenProposalSubmission,
		})
	case "dao":
		return types.MarshalCanonical(cfg.DAO)
	case "proposal_module":
		return types.MarshalCanonical(cfg.ProposalModule)
	case "pause_info":
		return deps.QueryRaw(ctx, cfg.DAO, types.Variant("pause_info", nil))
	case "query_extension":
		var q queryExtensionMsg
		if err := types.DecodeStrict(body, &q); err != nil {
			return nil, err
		}
		return queryExtension(ctx, deps, env, q.Msg)
	default:
		return nil, types.Errorf(types.KindUnknownMessage, "overrule: unknown query %q", name)
	}
}

func queryExtension(ctx context.Context, deps engine.Deps, env engine.Env, raw json.RawMessage) (json.RawMessage, error) {
	name, body, err := types.DecodeVariant(raw)
	if err != nil {
		return nil, err
	}
	switch name {
	case "overrule_proposal_id":
		var q OverruleProposalIDQuery
		if err := types.DecodeStrict(body, &q); err != nil {
			return nil, err
		}
		if err := types.CheckProposalID(q.SubdaoProposalID); err != nil {
			return nil, err
		}
		timelock, err := types.ParseAddress(q.TimelockAddress)
		if err != nil {
			return nil, fmt.Errorf("timelock_address: %w", err)
		}
		id, found, err := NewLedger(deps.Tx, env.Contract).OverruleProposalID(ctx, timelock, q.SubdaoProposalID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, types.Errorf(types.KindNotFound,
				"no overrule proposal for proposal %d of timelock %s", q.SubdaoProposalID, timelock.Hex())
		}
		return types.MarshalCanonical(id)
	case "list_overrule_proposals":
		records, err := deps.Tx.ListOverruleRecords(ctx, env.Contract)
		if err != nil {
			return nil, err
		}
		return types.MarshalCanonical(records)
	default:
		return nil, types.Errorf(types.KindUnknownMessage, "overrule: unknown query extension %q", name)
	}
}

// existingOverrule reports the veto proposal already recorded for a pair.
func existingOverrule(ctx context.Context, tx *store.Tx, admission, timelock types.Address, proposalID uint64) error {
	rec, err := tx.OverruleRecord(ctx, admission, timelock, proposalID)
	if err != nil {
		return fmt.Errorf("read existing overrule proposal: %w", err)
	}
	return &AlreadyExistsError{ID: rec.OverruleProposalID}
}
