package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// maxQueryDepth bounds cross-contract query recursion.
const maxQueryDepth = 32

// Deps is a contract's handle on the world for the duration of one unit.
// Reads and writes go through Tx; other contracts are reached with Query and Call.
type Deps struct {
	Tx *store.Tx

	engine  *Engine
	run     *run // nil for queries
	env     Env
	depth   int
	emitted *[]batch
}

// Logger returns the engine logger annotated with the current unit.
func (d Deps) Logger() *slog.Logger {
	return d.engine.logger.With(
		"command_id", d.env.CommandID,
		"contract", d.env.Contract.Hex(),
	)
}

// ReadOnly reports whether the unit is a query.
func (d Deps) ReadOnly() bool {
	return d.run == nil
}

// Contract returns the stored instance record at addr.
func (d Deps) Contract(ctx context.Context, addr types.Address) (store.ContractRecord, error) {
	rec, _, err := d.engine.resolve(ctx, d.Tx, addr)
	return rec, err
}

// QueryRaw runs a query against another contract and returns its JSON result.
// The callee sees the state written so far by the current unit.
func (d Deps) QueryRaw(ctx context.Context, contract types.Address, msg any) (json.RawMessage, error) {
	raw, err := encodeMsg(msg)
	if err != nil {
		return nil, err
	}
	return d.query(ctx, contract, raw)
}

// Query runs a query against another contract and decodes the result into out.
func (d Deps) Query(ctx context.Context, contract types.Address, msg any, out any) error {
	raw, err := d.QueryRaw(ctx, contract, msg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode query result from %s: %w", contract.Hex(), err)
	}
	return nil
}

func (d Deps) query(ctx context.Context, contract types.Address, raw json.RawMessage) (json.RawMessage, error) {
	if d.depth >= maxQueryDepth {
		return nil, fmt.Errorf("query depth limit %d reached at %s", maxQueryDepth, contract.Hex())
	}
	_, c, err := d.engine.resolve(ctx, d.Tx, contract)
	if err != nil {
		return nil, err
	}
	qd := Deps{
		Tx:     d.Tx,
		engine: d.engine,
		depth:  d.depth + 1,
		env: Env{
			Contract:  contract,
			Sender:    d.env.Contract,
			Height:    d.env.Height,
			Time:      d.env.Time,
			CommandID: d.env.CommandID,
		},
	}
	return c.Query(ctx, qd, qd.env, raw)
}

// Call executes msg on contract synchronously, with the current contract as
// sender, and returns the callee's response data. The callee's writes share the
// current transaction: they commit or roll back together with the caller. A
// failing callee leaves no writes and its error is returned.
func (d Deps) Call(ctx context.Context, contract types.Address, msg any) (json.RawMessage, error) {
	if d.run == nil {
		return nil, &RuntimeError{
			Code:     ErrCodeReadOnly,
			Message:  "commands cannot be executed from a query",
			Contract: contract.Hex(),
		}
	}
	raw, err := encodeMsg(msg)
	if err != nil {
		return nil, err
	}
	return d.run.call(ctx, d, contract, raw)
}
