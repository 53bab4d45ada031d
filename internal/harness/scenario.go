package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vetogate/internal/types"
)

// Scenario defines a conformance scenario: a topology, setup commands, and a
// flow of commands, queries and clock advances with expected outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifest is the CUE topology to deploy, relative to the scenario file.
	Manifest string `yaml:"manifest"`

	// Deployer is the account name that deploys the manifest. Defaults to
	// "deployer".
	Deployer string `yaml:"deployer,omitempty"`

	// Setup runs before the flow. Setup steps must succeed and are not traced.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the traced part of the scenario.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one exec, query or advance. Exactly one of the three is set.
//
// Contract references are labels ("alpha/timelock") or hex addresses. Sender
// references are account names, labels or hex addresses. Any string in Msg
// or in an expected value that starts with "@" is replaced by the address it
// names: "@alpha/core" is a contract, "@member" an account.
type Step struct {
	Exec    string         `yaml:"exec,omitempty"`
	Query   string         `yaml:"query,omitempty"`
	Advance *AdvanceStep   `yaml:"advance,omitempty"`
	Sender  string         `yaml:"sender,omitempty"`
	Msg     map[string]any `yaml:"msg,omitempty"`

	// Repeat runs the step this many times (default once).
	Repeat int `yaml:"repeat,omitempty"`

	// Expect validates the outcome. Without it the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// AdvanceStep moves the chain clock.
type AdvanceStep struct {
	Seconds uint64 `yaml:"seconds"`
	Blocks  uint64 `yaml:"blocks"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected error kind of the command. Empty means success.
	Error types.ErrorKind `yaml:"error,omitempty"`

	// Result is matched against the command data or query result. Maps match
	// as subsets; scalars compare loosely (7 matches "7").
	Result any `yaml:"result,omitempty"`

	// Failures lists the error kinds of failed sub-units, in order.
	Failures []types.ErrorKind `yaml:"failures,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Action is "<contract label>.<variant>" (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are matched against the unit's message body (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Error is the unit's expected error kind (trace_contains).
	Error types.ErrorKind `yaml:"error,omitempty"`

	// Count is the expected number of units (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Contract and Query are run for final_state; the result is matched
	// against Expect.
	Contract string         `yaml:"contract,omitempty"`
	Query    map[string]any `yaml:"query,omitempty"`
	Expect   any            `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. The manifest path is
// resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict fields catch typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Manifest != "" && !filepath.IsAbs(scenario.Manifest) {
		scenario.Manifest = filepath.Join(filepath.Dir(path), scenario.Manifest)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if _, err := os.Stat(s.Manifest); os.IsNotExist(err) {
		return fmt.Errorf("manifest not found: %s", s.Manifest)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	for _, ok := range []bool{step.Exec != "", step.Query != "", step.Advance != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of exec, query or advance is required")
	}
	if step.Repeat < 0 {
		return fmt.Errorf("repeat must be non-negative")
	}

	switch {
	case step.Exec != "":
		if step.Sender == "" {
			return fmt.Errorf("exec: sender is required")
		}
		if len(step.Msg) != 1 {
			return fmt.Errorf("exec: msg must have exactly one variant")
		}
	case step.Query != "":
		if len(step.Msg) != 1 {
			return fmt.Errorf("query: msg must have exactly one variant")
		}
		if step.Sender != "" {
			return fmt.Errorf("query: sender is not allowed")
		}
		if step.Expect != nil && len(step.Expect.Failures) > 0 {
			return fmt.Errorf("query: failures are not allowed")
		}
	default:
		if step.Advance.Seconds == 0 && step.Advance.Blocks == 0 {
			return fmt.Errorf("advance: seconds or blocks is required")
		}
		if step.Expect != nil {
			return fmt.Errorf("advance: expect is not allowed")
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Contract == "" {
			return fmt.Errorf("assertions[%d]: contract is required for final_state", index)
		}
		if len(a.Query) != 1 {
			return fmt.Errorf("assertions[%d]: query must have exactly one variant for final_state", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
