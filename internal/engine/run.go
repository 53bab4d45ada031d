package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// Outcome is the record of one top-level command: every unit it ran, in step order.
type Outcome struct {
	CommandID  string          `json:"command_id"`
	Contract   types.Address   `json:"contract"`
	Data       json.RawMessage `json:"data,omitempty"`
	Attributes []Attribute     `json:"attributes,omitempty"`
	Units      []UnitResult    `json:"units"`
}

// UnitResult describes one executed unit.
type UnitResult struct {
	Step       int             `json:"step"`
	Depth      int             `json:"depth"`
	Kind       string          `json:"kind"`
	Sender     types.Address   `json:"sender"`
	Contract   types.Address   `json:"contract"`
	Msg        json.RawMessage `json:"msg"`
	Attributes []Attribute     `json:"attributes,omitempty"`
	ErrorKind  types.ErrorKind `json:"error_kind,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// OK reports whether the unit committed.
func (u UnitResult) OK() bool {
	return u.Error == ""
}

// Failures returns the units that did not commit.
func (o *Outcome) Failures() []UnitResult {
	if o == nil {
		return nil
	}
	var out []UnitResult
	for _, u := range o.Units {
		if !u.OK() {
			out = append(out, u)
		}
	}
	return out
}

// unit is a request to run one contract entry point.
type unit struct {
	kind     string
	sender   types.Address
	contract types.Address
	code     string // instantiate only
	label    string // instantiate only
	msg      json.RawMessage
	reply    *Reply
	depth    int
}

// batch is a list of sub-messages together with the contract that emitted them.
type batch struct {
	emitter types.Address
	msgs    []SubMsg
}

// executed is a committed unit with the sub-messages it (and the synchronous
// calls it made) emitted, in emission order.
type executed struct {
	Response
	depth   int
	batches []batch
}

// run executes one top-level command.
type run struct {
	e       *Engine
	steps   *stepBudget
	step    int
	outcome *Outcome
}

func (e *Engine) newRun() *run {
	id := e.ids.Generate()
	return &run{
		e:       e,
		steps:   newStepBudget(e.maxSteps),
		outcome: &Outcome{CommandID: id, Units: []UnitResult{}},
	}
}

func (r *run) commandID() string {
	return r.outcome.CommandID
}

// reserve assigns the next step number and a slot in the outcome.
func (r *run) reserve(u unit) (int, int) {
	step := r.step
	r.step++
	r.outcome.Units = append(r.outcome.Units, UnitResult{
		Step:     step,
		Depth:    u.depth,
		Kind:     u.kind,
		Sender:   u.sender,
		Contract: u.contract,
		Msg:      u.msg,
	})
	return step, len(r.outcome.Units) - 1
}

// unit runs u in its own transaction. On failure every write of u (and of the
// synchronous calls it made) is rolled back and only the failure is journaled.
func (r *run) unit(ctx context.Context, u unit) (executed, error) {
	if err := r.steps.spend(r.commandID()); err != nil {
		r.e.logger.Error("max steps exceeded",
			"command_id", r.commandID(),
			"limit", r.steps.limit,
			"contract", u.contract.Hex(),
		)
		return executed{}, err
	}
	step, slot := r.reserve(u)

	ctx, span := r.e.tracer.Start(ctx, "engine."+u.kind, trace.WithAttributes(
		attribute.String("vetogate.command_id", r.commandID()),
		attribute.Int("vetogate.step", step),
		attribute.String("vetogate.contract", u.contract.Hex()),
		attribute.String("vetogate.sender", u.sender.Hex()),
	))
	defer span.End()

	tx, err := r.e.store.Begin(ctx)
	if err != nil {
		return executed{}, err
	}
	st, err := tx.ChainState(ctx)
	if err != nil {
		tx.Rollback()
		return executed{}, fmt.Errorf("unit %d: %w", step, err)
	}

	var batches []batch
	deps := Deps{
		Tx:      tx,
		engine:  r.e,
		run:     r,
		depth:   u.depth,
		emitted: &batches,
		env: Env{
			Contract:  u.contract,
			Sender:    u.sender,
			Height:    st.Height,
			Time:      st.Time,
			CommandID: r.commandID(),
		},
	}

	code, resp, err := r.invoke(ctx, deps, u, st)
	span.SetAttributes(attribute.String("vetogate.code", code))

	rec := store.CommandRecord{
		CommandID: r.commandID(),
		Step:      step,
		Depth:     u.depth,
		Kind:      u.kind,
		Sender:    u.sender,
		Contract:  u.contract,
		Msg:       string(u.msg),
		Status:    store.UnitOK,
		Height:    st.Height,
		Time:      st.Time,
	}

	if err != nil {
		tx.Rollback()
		// Nested calls were undone with the unit; drop them from the outcome.
		r.outcome.Units = r.outcome.Units[:slot+1]
		r.fail(ctx, slot, rec, err)
		r.e.units.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", code), attribute.String("status", store.UnitFailed)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return executed{}, err
	}

	if err := tx.AppendCommand(ctx, rec); err != nil {
		tx.Rollback()
		return executed{}, err
	}
	if err := tx.Commit(); err != nil {
		return executed{}, err
	}

	r.outcome.Units[slot].Attributes = resp.Attributes
	r.e.units.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code), attribute.String("status", store.UnitOK)))
	r.e.logger.Debug("unit committed",
		"command_id", r.commandID(),
		"step", step,
		"kind", u.kind,
		"code", code,
		"contract", u.contract.Hex(),
		"messages", len(resp.Messages),
	)

	if len(resp.Messages) > 0 {
		batches = append(batches, batch{emitter: u.contract, msgs: resp.Messages})
	}
	return executed{Response: resp, depth: u.depth, batches: batches}, nil
}

// invoke resolves the code for u and calls the matching entry point.
func (r *run) invoke(ctx context.Context, deps Deps, u unit, st store.ChainState) (string, Response, error) {
	tx := deps.Tx

	if u.kind == store.UnitInstantiate {
		c, ok := r.e.codes[u.code]
		if !ok {
			return u.code, Response{}, NewUnknownCodeError(u.code)
		}
		err := tx.InsertContract(ctx, store.ContractRecord{
			Address:       u.contract,
			Code:          u.code,
			Label:         u.label,
			Creator:       u.sender,
			InitMsg:       u.msg,
			CreatedHeight: st.Height,
		})
		if errors.Is(err, store.ErrConflict) {
			return u.code, Response{}, types.Errorf(types.KindAlreadyExists, "label %q is already taken", u.label)
		}
		if err != nil {
			return u.code, Response{}, err
		}
		resp, err := c.Instantiate(ctx, deps, deps.env, u.msg)
		return u.code, resp, err
	}

	rec, c, err := r.e.resolve(ctx, tx, u.contract)
	if err != nil {
		return "", Response{}, err
	}

	if u.kind == store.UnitReply {
		replier, ok := c.(Replier)
		if !ok {
			return rec.Code, Response{}, &RuntimeError{
				Code:      ErrCodeNoReplyHandler,
				Message:   fmt.Sprintf("code %q does not handle failure callbacks", rec.Code),
				CommandID: r.commandID(),
				Contract:  u.contract.Hex(),
			}
		}
		resp, err := replier.Reply(ctx, deps, deps.env, *u.reply)
		return rec.Code, resp, err
	}

	resp, err := c.Execute(ctx, deps, deps.env, u.msg)
	return rec.Code, resp, err
}

// fail records a failed unit in the outcome and, in a fresh transaction, in the
// journal. A journal write failure is logged and otherwise ignored.
func (r *run) fail(ctx context.Context, slot int, rec store.CommandRecord, err error) {
	rec.Status = store.UnitFailed
	rec.ErrorKind = types.KindOf(err)
	rec.Error = err.Error()

	r.outcome.Units[slot].ErrorKind = rec.ErrorKind
	r.outcome.Units[slot].Error = rec.Error

	werr := r.e.store.Update(ctx, func(tx *store.Tx) error {
		return tx.AppendCommand(ctx, rec)
	})
	if werr != nil {
		r.e.logger.Error("journal write failed",
			"command_id", rec.CommandID,
			"step", rec.Step,
			"error", werr,
		)
	}
}

// call runs a synchronous nested Execute inside the caller's transaction under a
// savepoint. The callee's sender is the calling contract.
func (r *run) call(ctx context.Context, parent Deps, contract types.Address, msg json.RawMessage) (json.RawMessage, error) {
	u := unit{
		kind:     store.UnitCall,
		sender:   parent.env.Contract,
		contract: contract,
		msg:      msg,
		depth:    parent.depth + 1,
	}
	if err := r.steps.spend(r.commandID()); err != nil {
		return nil, err
	}
	step, slot := r.reserve(u)

	ctx, span := r.e.tracer.Start(ctx, "engine.call", trace.WithAttributes(
		attribute.String("vetogate.command_id", r.commandID()),
		attribute.Int("vetogate.step", step),
		attribute.String("vetogate.contract", contract.Hex()),
	))
	defer span.End()

	env := parent.env
	env.Contract = contract
	env.Sender = parent.env.Contract
	deps := Deps{
		Tx:      parent.Tx,
		engine:  r.e,
		run:     r,
		env:     env,
		depth:   u.depth,
		emitted: parent.emitted,
	}

	rec := store.CommandRecord{
		CommandID: r.commandID(),
		Step:      step,
		Depth:     u.depth,
		Kind:      u.kind,
		Sender:    u.sender,
		Contract:  contract,
		Msg:       string(msg),
		Status:    store.UnitOK,
		Height:    env.Height,
		Time:      env.Time,
	}

	var (
		resp Response
		code string
	)
	emitted := len(*parent.emitted)
	err := parent.Tx.Nested(ctx, func() error {
		cr, c, err := r.e.resolve(ctx, parent.Tx, contract)
		if err != nil {
			return err
		}
		code = cr.Code
		resp, err = c.Execute(ctx, deps, env, msg)
		return err
	})
	if err != nil {
		// Batches emitted by calls nested under the failed one roll back with it.
		*parent.emitted = (*parent.emitted)[:emitted]
		r.outcome.Units = r.outcome.Units[:slot+1]
		rec.Status = store.UnitFailed
		rec.ErrorKind = types.KindOf(err)
		rec.Error = err.Error()
		r.outcome.Units[slot].ErrorKind = rec.ErrorKind
		r.outcome.Units[slot].Error = rec.Error
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// Journaled in the caller's transaction; survives only if the caller commits.
		if jerr := parent.Tx.AppendCommand(ctx, rec); jerr != nil {
			return nil, errors.Join(err, jerr)
		}
		r.e.units.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", code), attribute.String("status", store.UnitFailed)))
		return nil, err
	}

	if err := parent.Tx.AppendCommand(ctx, rec); err != nil {
		return nil, err
	}
	r.outcome.Units[slot].Attributes = resp.Attributes
	r.e.units.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code), attribute.String("status", store.UnitOK)))

	if len(resp.Messages) > 0 {
		*parent.emitted = append(*parent.emitted, batch{emitter: contract, msgs: resp.Messages})
	}
	return resp.Data, nil
}

// dispatchAll dispatches every batch emitted by a committed unit.
func (r *run) dispatchAll(ctx context.Context, ex executed) error {
	for _, b := range ex.batches {
		if err := r.dispatch(ctx, b.emitter, b.msgs, ex.depth+1); err != nil {
			return err
		}
	}
	return nil
}

// dispatch runs sub-messages depth-first: each message and everything it emits
// completes before the next message starts.
func (r *run) dispatch(ctx context.Context, emitter types.Address, msgs []SubMsg, depth int) error {
	for _, sm := range msgs {
		ex, err := r.unit(ctx, unit{
			kind:     store.UnitSubMsg,
			sender:   emitter,
			contract: sm.Msg.Contract,
			msg:      sm.Msg.Msg,
			depth:    depth,
		})
		if err == nil {
			if err := r.dispatchAll(ctx, ex); err != nil {
				return err
			}
			continue
		}
		if IsStepsExceededError(err) {
			return err
		}

		if sm.ReplyOn != ReplyOnError {
			r.e.logger.Warn("fire-and-forget message failed",
				"command_id", r.commandID(),
				"emitter", emitter.Hex(),
				"contract", sm.Msg.Contract.Hex(),
				"kind", string(types.KindOf(err)),
				"error", err,
			)
			continue
		}

		reply := Reply{ID: sm.ID, Kind: types.KindOf(err), Error: err.Error()}
		replyMsg, merr := types.MarshalCanonical(map[string]any{"reply": reply})
		if merr != nil {
			return merr
		}
		rex, rerr := r.unit(ctx, unit{
			kind:     store.UnitReply,
			contract: emitter,
			msg:      replyMsg,
			reply:    &reply,
			depth:    depth,
		})
		if rerr != nil {
			if IsStepsExceededError(rerr) {
				return rerr
			}
			r.e.logger.Error("failure callback failed",
				"command_id", r.commandID(),
				"contract", emitter.Hex(),
				"reply_id", sm.ID,
				"error", rerr,
			)
			continue
		}
		if err := r.dispatchAll(ctx, rex); err != nil {
			return err
		}
	}
	return nil
}

// resolve loads the instance at addr and its code.
func (e *Engine) resolve(ctx context.Context, tx *store.Tx, addr types.Address) (store.ContractRecord, Contract, error) {
	rec, err := tx.Contract(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return store.ContractRecord{}, nil, NewUnknownContractError(addr)
	}
	if err != nil {
		return store.ContractRecord{}, nil, err
	}
	c, ok := e.codes[rec.Code]
	if !ok {
		return rec, nil, NewUnknownCodeError(rec.Code)
	}
	return rec, c, nil
}
