package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/vetogate/internal/types"
)

// TraceEvent is one engine unit run by a flow step. Addresses are rendered as
// contract labels or account names where known.
type TraceEvent struct {
	// Step is the index of the flow step that ran the unit.
	Step int `json:"step"`
	// Unit is the unit's position within its command.
	Unit     int             `json:"unit"`
	Depth    int             `json:"depth"`
	Kind     string          `json:"kind"`
	Sender   string          `json:"sender"`
	Contract string          `json:"contract"`
	Action   string          `json:"action"`
	Args     any             `json:"args,omitempty"`
	Error    types.ErrorKind `json:"error,omitempty"`

	// raw is Args before relabelling, with addresses as hex.
	raw any
}

// String renders the event on one line, indented by depth.
func (e TraceEvent) String() string {
	line := fmt.Sprintf("%d.%d %s%s %s -> %s", e.Step, e.Unit, strings.Repeat("  ", e.Depth), e.Kind, e.Sender, e.Action)
	if e.Error != "" {
		line += " error=" + string(e.Error)
	}
	return line
}

// FormatTrace renders events one per line.
func FormatTrace(events []TraceEvent) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every unit run by the flow, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
