package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// DefaultMaxSteps is the default maximum number of units per top-level command.
const DefaultMaxSteps = 1000

// DefaultChainID names the chain when none is configured.
const DefaultChainID = "vetogate-local"

// ErrStopped is returned by Submit once the Run loop has shut down.
var ErrStopped = errors.New("engine stopped")

const instrumentationName = "github.com/roach88/vetogate/internal/engine"

// Engine is the single-writer command applier.
//
// Every top-level command runs in one store transaction; sub-messages emitted
// by a committed unit are dispatched depth-first, each in its own transaction.
//
// Thread-safety model:
//   - Instantiate/Execute/Advance: serialized by an internal mutex
//   - Query: read-only, safe from any goroutine
//   - Submit: safe from any goroutine; requests are applied by Run
//   - Run: must be called from exactly one goroutine
type Engine struct {
	store    *store.Store
	codes    map[string]Contract
	ids      CommandIDGenerator
	maxSteps int
	chainID  string
	logger   *slog.Logger

	tracer trace.Tracer
	units  metric.Int64Counter

	queue *requestQueue
	mu    sync.Mutex
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxSteps sets the maximum units per top-level command.
func WithMaxSteps(maxSteps int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = maxSteps
	}
}

// WithIDGenerator replaces the UUIDv7 command id generator.
func WithIDGenerator(g CommandIDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the structured logger (slog.Default() otherwise).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithChainID names the chain written at genesis.
func WithChainID(id string) EngineOption {
	return func(e *Engine) {
		e.chainID = id
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		e.tracer = tp.Tracer(instrumentationName)
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(e *Engine) {
		e.units = newUnitCounter(mp)
	}
}

// New creates an Engine over the given store with the given codes registered.
func New(s *store.Store, codes map[string]Contract, opts ...EngineOption) *Engine {
	registered := make(map[string]Contract, len(codes))
	for name, c := range codes {
		registered[name] = c
	}

	e := &Engine{
		store:    s,
		codes:    registered,
		ids:      UUIDv7Generator{},
		maxSteps: DefaultMaxSteps,
		chainID:  DefaultChainID,
		logger:   slog.Default(),
		tracer:   otel.GetTracerProvider().Tracer(instrumentationName),
		units:    newUnitCounter(otel.GetMeterProvider()),
		queue:    newRequestQueue(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func newUnitCounter(mp metric.MeterProvider) metric.Int64Counter {
	counter, err := mp.Meter(instrumentationName).Int64Counter(
		"vetogate.engine.units",
		metric.WithDescription("Units executed by the engine, by code and status"),
	)
	if err != nil {
		// The API only fails on invalid instrument names; fall back to a no-op.
		slog.Warn("create unit counter", "error", err)
		counter, _ = otel.GetMeterProvider().Meter(instrumentationName).Int64Counter("vetogate.engine.units")
	}
	return counter
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Codes returns the registered code names in sorted order.
func (e *Engine) Codes() []string {
	names := make([]string, 0, len(e.codes))
	for name := range e.codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxSteps returns the configured maximum units per command.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}

// Genesis writes the initial chain state. A no-op on an initialised store.
func (e *Engine) Genesis(ctx context.Context, height uint64, t time.Time) error {
	return e.store.Update(ctx, func(tx *store.Tx) error {
		return tx.InitChain(ctx, store.ChainState{ChainID: e.chainID, Height: height, Time: t.UTC()})
	})
}

// ChainState returns the current block height and time.
func (e *Engine) ChainState(ctx context.Context) (store.ChainState, error) {
	var st store.ChainState
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		st, err = tx.ChainState(ctx)
		return err
	})
	return st, err
}

// Advance moves block time forward by d and block height by blocks.
func (e *Engine) Advance(ctx context.Context, d time.Duration, blocks uint64) (store.ChainState, error) {
	if d < 0 {
		return store.ChainState{}, fmt.Errorf("advance: negative duration %s", d)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var st store.ChainState
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		cur, err := tx.ChainState(ctx)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		cur.Height += blocks
		cur.Time = cur.Time.Add(d.Truncate(time.Second))
		st = cur
		return tx.SetChainState(ctx, cur)
	})
	if err != nil {
		return store.ChainState{}, err
	}
	e.logger.Info("chain advanced", "height", st.Height, "time", st.Time.Unix())
	return st, nil
}

// Lookup resolves a contract reference: a label ("parent/core") or a hex address.
func (e *Engine) Lookup(ctx context.Context, ref string) (store.ContractRecord, error) {
	var rec store.ContractRecord
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		if common.IsHexAddress(ref) {
			rec, err = tx.Contract(ctx, common.HexToAddress(ref))
		} else {
			rec, err = tx.ContractByLabel(ctx, ref)
		}
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.ContractRecord{}, types.Errorf(types.KindNotFound, "unknown contract %q", ref)
	}
	return rec, err
}

// Contracts lists every instance in instantiation order.
func (e *Engine) Contracts(ctx context.Context) ([]store.ContractRecord, error) {
	var out []store.ContractRecord
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListContracts(ctx)
		return err
	})
	return out, err
}

// Commands returns journal rows after seq (see store.Tx.ListCommands).
func (e *Engine) Commands(ctx context.Context, afterSeq int64, limit int) ([]store.CommandRecord, error) {
	var out []store.CommandRecord
	err := e.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListCommands(ctx, afterSeq, limit)
		return err
	})
	return out, err
}

// Instantiate creates an instance of code under label, created by sender.
// The new address is Outcome.Contract.
func (e *Engine) Instantiate(ctx context.Context, sender types.Address, code, label string, msg any) (*Outcome, error) {
	raw, err := encodeMsg(msg)
	if err != nil {
		return nil, err
	}
	if _, ok := e.codes[code]; !ok {
		return nil, NewUnknownCodeError(code)
	}
	if strings.TrimSpace(label) == "" {
		return nil, types.Errorf(types.KindInvalidConfig, "instantiate %s: label is required", code)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.newRun()
	addr := ContractAddress(sender, label)
	r.outcome.Contract = addr
	res, err := r.unit(ctx, unit{
		kind:     store.UnitInstantiate,
		sender:   sender,
		contract: addr,
		code:     code,
		label:    label,
		msg:      raw,
	})
	if err != nil {
		return r.outcome, err
	}
	r.outcome.Data = res.Data
	r.outcome.Attributes = res.Attributes
	return r.outcome, r.dispatchAll(ctx, res)
}

// Execute runs a top-level command from sender against contract.
//
// The returned error reports the failure of the command itself, which leaves no
// writes behind. Failures of dispatched sub-messages never fail the command:
// they are recorded in the Outcome. A StepsExceededError is returned alongside
// the Outcome when the quota stops dispatch.
func (e *Engine) Execute(ctx context.Context, sender, contract types.Address, msg any) (*Outcome, error) {
	raw, err := encodeMsg(msg)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.newRun()
	r.outcome.Contract = contract
	res, err := r.unit(ctx, unit{
		kind:     store.UnitExecute,
		sender:   sender,
		contract: contract,
		msg:      raw,
	})
	if err != nil {
		return r.outcome, err
	}
	r.outcome.Data = res.Data
	r.outcome.Attributes = res.Attributes
	return r.outcome, r.dispatchAll(ctx, res)
}

// Query runs a read-only query against contract.
func (e *Engine) Query(ctx context.Context, contract types.Address, msg any) (json.RawMessage, error) {
	raw, err := encodeMsg(msg)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	err = e.store.View(ctx, func(tx *store.Tx) error {
		st, err := tx.ChainState(ctx)
		if err != nil {
			return err
		}
		d := Deps{Tx: tx, engine: e, env: Env{Height: st.Height, Time: st.Time}}
		out, err = d.query(ctx, contract, raw)
		return err
	})
	return out, err
}

// QueryInto runs Query and decodes the result into out.
func (e *Engine) QueryInto(ctx context.Context, contract types.Address, msg any, out any) error {
	raw, err := e.Query(ctx, contract, msg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode query result from %s: %w", contract.Hex(), err)
	}
	return nil
}

// Submit queues a request for the Run loop and waits for its result.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Submit(ctx context.Context, req Request) (*Outcome, error) {
	p := pending{req: req, done: make(chan Result, 1)}
	if !e.queue.Enqueue(p) {
		return nil, ErrStopped
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-p.done:
		return res.Outcome, res.Err
	}
}

// Run starts the single-writer loop.
// Blocks until context is cancelled or Stop() is called.
//
// ERROR HANDLING: a failing request is reported to its submitter and logged;
// the loop continues. Requests are never retried.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "max_steps", e.maxSteps)

	for {
		p, ok := e.queue.TryDequeue()
		if ok {
			out, err := e.apply(ctx, p.req)
			if err != nil {
				e.logger.Warn("request failed",
					"type", p.req.Type.String(),
					"sender", p.req.Sender.Hex(),
					"contract", p.req.Contract.Hex(),
					"error", err,
				)
			}
			p.done <- Result{Outcome: out, Err: err}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed.
			if e.queue.Len() == 0 && e.queueClosed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the Run loop.
func (e *Engine) Stop() {
	e.queue.Close()
}

// QueueLen returns the current number of pending requests.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

func (e *Engine) queueClosed() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

func (e *Engine) apply(ctx context.Context, req Request) (*Outcome, error) {
	switch req.Type {
	case RequestExecute:
		return e.Execute(ctx, req.Sender, req.Contract, req.Msg)
	case RequestInstantiate:
		return e.Instantiate(ctx, req.Sender, req.Code, req.Label, req.Msg)
	case RequestAdvance:
		st, err := e.Advance(ctx, req.Seconds, req.Blocks)
		if err != nil {
			return nil, err
		}
		data, err := types.MarshalCanonical(st)
		if err != nil {
			return nil, err
		}
		return &Outcome{Data: data}, nil
	default:
		return nil, fmt.Errorf("unknown request type: %d", req.Type)
	}
}

// encodeMsg canonicalises a message given as raw JSON or as any encodable value.
func encodeMsg(msg any) (json.RawMessage, error) {
	switch m := msg.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(m) == 0 {
			return json.RawMessage(`{}`), nil
		}
		raw, err := types.CanonicalizeJSON(m)
		if err != nil {
			return nil, types.Errorf(types.KindUnknownMessage, "malformed message: %v", err)
		}
		return raw, nil
	case []byte:
		return encodeMsg(json.RawMessage(m))
	default:
		raw, err := types.MarshalCanonical(m)
		if err != nil {
			return nil, types.Errorf(types.KindUnknownMessage, "malformed message: %v", err)
		}
		return raw, nil
	}
}
