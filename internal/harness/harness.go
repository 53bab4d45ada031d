package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/topology"
	"github.com/roach88/vetogate/internal/types"
)

// Genesis is the block time every scenario chain starts at.
var Genesis = time.Unix(1_700_000_000, 0).UTC()

// GenesisHeight is the block height every scenario chain starts at.
const GenesisHeight = 1

// DefaultDeployer is the deployer account name when a scenario names none.
const DefaultDeployer = "deployer"

// Harness runs one scenario against a fresh engine.
type Harness struct {
	engine *engine.Engine
	// labels renders addresses: contract labels and the account names the
	// scenario has referenced.
	labels map[types.Address]string
	units  []stepUnit
}

// stepUnit is a unit together with the flow step that ran it.
type stepUnit struct {
	step int
	unit engine.UnitResult
}

// stepOutcome is what a step produced.
type stepOutcome struct {
	out  *engine.Outcome
	data json.RawMessage
	err  error
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh in-memory database with sequential command
// ids and a fixed genesis, so identical scenarios produce identical traces.
//
// Execution flow:
// 1. Load the manifest and deploy it as the deployer account
// 2. Execute setup steps, which must succeed
// 3. Execute flow steps, recording units and checking expect clauses
// 4. Evaluate assertions against the trace and the final state
//
// Expectation and assertion failures are reported in the Result. The returned
// error is reserved for scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario, opts ...engine.EngineOption) (*Result, error) {
	topo, err := topology.Load(scenario.Manifest)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts = append([]engine.EngineOption{
		engine.WithIDGenerator(engine.NewSequenceGenerator("cmd")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	eng := engine.New(st, topology.Codes(), opts...)
	if err := eng.Genesis(ctx, GenesisHeight, Genesis); err != nil {
		return nil, err
	}

	deployerName := lo.CoalesceOrEmpty(scenario.Deployer, DefaultDeployer)
	deployer := types.AccountAddress(deployerName)
	if _, err := topology.Deploy(ctx, eng, deployer, topo); err != nil {
		return nil, fmt.Errorf("deploy %s: %w", scenario.Manifest, err)
	}

	h := &Harness{engine: eng, labels: map[types.Address]string{deployer: deployerName}}
	contracts, err := eng.Contracts(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range contracts {
		h.labels[c.Address] = c.Label
	}

	for i, step := range scenario.Setup {
		for range step.times() {
			so, err := h.apply(ctx, step)
			if err != nil {
				return nil, fmt.Errorf("setup[%d]: %w", i, err)
			}
			if so.err != nil {
				return nil, fmt.Errorf("setup[%d] %s: %w", i, step.describe(), so.err)
			}
		}
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		for range step.times() {
			so, err := h.apply(ctx, step)
			if err != nil {
				return nil, fmt.Errorf("flow[%d]: %w", i, err)
			}
			if so.out != nil {
				for _, u := range so.out.Units {
					h.units = append(h.units, stepUnit{step: i, unit: u})
				}
			}
			if err := h.check(ctx, i, step, so, result); err != nil {
				return nil, fmt.Errorf("flow[%d]: %w", i, err)
			}
		}
	}

	result.Trace = h.trace()
	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (s Step) times() int {
	return max(s.Repeat, 1)
}

func (s Step) describe() string {
	switch {
	case s.Exec != "":
		return fmt.Sprintf("exec %s.%s", s.Exec, variantOf(s.Msg))
	case s.Query != "":
		return fmt.Sprintf("query %s.%s", s.Query, variantOf(s.Msg))
	default:
		return fmt.Sprintf("advance %ds/%d blocks", s.Advance.Seconds, s.Advance.Blocks)
	}
}

func variantOf(msg map[string]any) string {
	for name := range msg {
		return name
	}
	return "?"
}

// apply runs one step. Command and query failures are returned in the
// stepOutcome; the error reports steps that could not be run.
func (h *Harness) apply(ctx context.Context, step Step) (stepOutcome, error) {
	switch {
	case step.Exec != "":
		contract, err := h.contract(ctx, step.Exec)
		if err != nil {
			return stepOutcome{}, err
		}
		sender, err := h.account(ctx, step.Sender)
		if err != nil {
			return stepOutcome{}, err
		}
		msg, err := h.resolve(ctx, step.Msg)
		if err != nil {
			return stepOutcome{}, err
		}
		out, err := h.engine.Execute(ctx, sender, contract, msg)
		so := stepOutcome{out: out, err: err}
		if out != nil {
			so.data = out.Data
		}
		return so, nil

	case step.Query != "":
		contract, err := h.contract(ctx, step.Query)
		if err != nil {
			return stepOutcome{}, err
		}
		msg, err := h.resolve(ctx, step.Msg)
		if err != nil {
			return stepOutcome{}, err
		}
		data, err := h.engine.Query(ctx, contract, msg)
		return stepOutcome{data: data, err: err}, nil

	default:
		d := time.Duration(step.Advance.Seconds) * time.Second
		if _, err := h.engine.Advance(ctx, d, step.Advance.Blocks); err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{}, nil
	}
}

// check compares a flow step's outcome with its expect clause.
func (h *Harness) check(ctx context.Context, i int, step Step, so stepOutcome, result *Result) error {
	where := fmt.Sprintf("flow[%d] %s", i, step.describe())
	exp := step.Expect
	if exp == nil {
		exp = &ExpectClause{}
	}

	if got := types.KindOf(so.err); got != exp.Error {
		if exp.Error == "" {
			result.AddError(fmt.Sprintf("%s: unexpected error: %v", where, so.err))
		} else {
			result.AddError(fmt.Sprintf("%s: expected error %s, got %s", where, exp.Error, describeErr(so.err)))
		}
		return nil
	}

	if exp.Result != nil {
		want, err := h.resolve(ctx, exp.Result)
		if err != nil {
			return err
		}
		got, err := decodeData(so.data)
		if err != nil {
			return err
		}
		if !matchValue(got, want) {
			result.AddError(fmt.Sprintf("%s: result mismatch\n  Expected: %v\n  Actual: %v", where, want, got))
		}
	}

	if exp.Failures != nil {
		var got []types.ErrorKind
		if so.out != nil {
			got = lo.Map(so.out.Failures(), func(u engine.UnitResult, _ int) types.ErrorKind {
				return u.ErrorKind
			})
		}
		if !slices.Equal(got, exp.Failures) {
			result.AddError(fmt.Sprintf("%s: expected failures %v, got %v", where, exp.Failures, got))
		}
	}
	return nil
}

func describeErr(err error) string {
	if err == nil {
		return "success"
	}
	return fmt.Sprintf("%s (%v)", types.KindOf(err), err)
}

func decodeData(data json.RawMessage) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return types.DecodeTree(data)
}

// contract resolves a label or hex address to a deployed contract.
func (h *Harness) contract(ctx context.Context, ref string) (types.Address, error) {
	rec, err := h.engine.Lookup(ctx, ref)
	if err != nil {
		return types.ZeroAddress, err
	}
	return rec.Address, nil
}

// account resolves a sender reference: a label, a hex address or an account
// name. Account names are remembered for rendering.
func (h *Harness) account(ctx context.Context, ref string) (types.Address, error) {
	switch {
	case strings.Contains(ref, "/"):
		return h.contract(ctx, ref)
	case common.IsHexAddress(ref):
		return types.ParseAddress(ref)
	case ref == "":
		return types.ZeroAddress, fmt.Errorf("empty account reference")
	default:
		addr := types.AccountAddress(ref)
		if _, ok := h.labels[addr]; !ok {
			h.labels[addr] = ref
		}
		return addr, nil
	}
}

// resolve replaces every "@ref" string in v with the address it names.
func (h *Harness) resolve(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, "@") {
			return val, nil
		}
		addr, err := h.account(ctx, val[1:])
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", val, err)
		}
		return strings.ToLower(addr.Hex()), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := h.resolve(ctx, elem)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := h.resolve(ctx, elem)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// label renders addr for traces.
func (h *Harness) label(addr types.Address) string {
	if addr == types.ZeroAddress {
		return "-"
	}
	if l, ok := h.labels[addr]; ok {
		return l
	}
	return addr.Hex()
}

// relabel replaces known addresses in a decoded tree with "@label".
func (h *Harness) relabel(v any) any {
	switch val := v.(type) {
	case string:
		if common.IsHexAddress(val) {
			if l, ok := h.labels[common.HexToAddress(val)]; ok {
				return "@" + l
			}
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = h.relabel(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = h.relabel(elem)
		}
		return out
	default:
		return v
	}
}

// trace renders the recorded units.
func (h *Harness) trace() []TraceEvent {
	events := make([]TraceEvent, 0, len(h.units))
	for _, su := range h.units {
		u := su.unit
		action, args := "instantiate", any(nil)
		tree, err := types.DecodeTree(u.Msg)
		if err == nil {
			args = tree
		}
		if u.Kind != store.UnitInstantiate {
			action = "?"
			if m, ok := tree.(map[string]any); ok && len(m) == 1 {
				for name, body := range m {
					action, args = name, body
				}
			}
		}
		events = append(events, TraceEvent{
			Step:     su.step,
			Unit:     u.Step,
			Depth:    u.Depth,
			Kind:     u.Kind,
			Sender:   h.label(u.Sender),
			Contract: h.label(u.Contract),
			Action:   h.label(u.Contract) + "." + action,
			Args:     h.relabel(args),
			Error:    u.ErrorKind,
			raw:      args,
		})
	}
	return events
}
