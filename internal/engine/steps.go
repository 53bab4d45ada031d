package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/vetogate/internal/types"
)

// stepBudget bounds the units one top-level command may run. The command
// itself, each call, each dispatched sub-message and each reply spend a step,
// which is what makes a chain of sub-messages terminate.
type stepBudget struct {
	limit int
	spent int
}

func newStepBudget(limit int) *stepBudget {
	return &stepBudget{limit: limit}
}

// spend takes one step for commandID, failing once the budget is exhausted.
func (b *stepBudget) spend(commandID string) error {
	b.spent++
	if b.spent > b.limit {
		return &StepsExceededError{CommandID: commandID, Steps: b.spent, Limit: b.limit}
	}
	return nil
}

// StepsExceededError reports a command that ran out of steps. Units committed
// before that stay committed; pending sub-messages are dropped.
type StepsExceededError struct {
	CommandID string
	Steps     int
	Limit     int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("command %s exceeded max steps: %d > %d", e.CommandID, e.Steps, e.Limit)
}

// Kind maps step exhaustion onto the shared error taxonomy.
func (e *StepsExceededError) Kind() types.ErrorKind {
	return types.KindInternal
}

// IsStepsExceededError reports whether err wraps a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
