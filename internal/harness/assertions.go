package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cast"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// assertTraceContains checks that some unit ran the action with matching args
// (subset match) and, when given, the expected error kind.
func assertTraceContains(trace []TraceEvent, assertion Assertion, args any) error {
	for _, event := range trace {
		if event.Action != assertion.Action {
			continue
		}
		if assertion.Error != "" && event.Error != assertion.Error {
			continue
		}
		if args != nil && !matchValue(event.raw, args) {
			continue
		}
		return nil
	}

	expected := fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args)
	if assertion.Error != "" {
		expected += fmt.Sprintf(" failing %s", assertion.Error)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// First position of each expected action, 1-indexed for readability.
	positions := make(map[string]int)
	for i, event := range trace {
		for _, expectedAction := range assertion.Actions {
			if event.Action == expectedAction && positions[expectedAction] == 0 {
				positions[expectedAction] = i + 1
			}
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action == assertion.Action {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState runs the assertion's query and matches the result against
// Expect (subset semantics).
func assertFinalState(ctx context.Context, h *Harness, assertion Assertion) error {
	contract, err := h.contract(ctx, assertion.Contract)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	query, err := h.resolve(ctx, assertion.Query)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	want, err := h.resolve(ctx, assertion.Expect)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	data, err := h.engine.Query(ctx, contract, query)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query %s %v", assertion.Contract, assertion.Query),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	got, err := decodeData(data)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	if !matchValue(got, want) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %v => %v", assertion.Contract, assertion.Query, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// matchValue reports whether actual matches expected. Maps match as subsets
// (extra keys in actual are ignored), slices element-wise, and scalars by
// their string form, with hex addresses compared case-insensitively.
func matchValue(actual, expected any) bool {
	switch exp := expected.(type) {
	case nil:
		return actual == nil
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for key, expectedVal := range exp {
			actualVal, exists := act[key]
			if !exists || !matchValue(actualVal, expectedVal) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !matchValue(act[i], exp[i]) {
				return false
			}
		}
		return true
	default:
		switch actual.(type) {
		case map[string]any, []any, nil:
			return false
		}
		a, err := cast.ToStringE(actual)
		if err != nil {
			return false
		}
		e, err := cast.ToStringE(exp)
		if err != nil {
			return false
		}
		if common.IsHexAddress(a) && common.IsHexAddress(e) {
			return common.HexToAddress(a) == common.HexToAddress(e)
		}
		return a == e
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			var args any
			if assertion.Args != nil {
				args, err = h.resolve(ctx, assertion.Args)
			}
			if err == nil {
				err = assertTraceContains(result.Trace, assertion, args)
			}
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(ctx, h, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
