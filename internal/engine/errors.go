package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/vetogate/internal/types"
)

// RuntimeError represents an error detected by the engine itself rather than by
// a contract.
//
// Runtime errors include:
//   - Unknown code: Instantiate names a code that is not registered
//   - Unknown contract: a message targets an address with no instance
//   - Read-only call: a query tried to run a command
//   - Missing reply handler: a ReplyOnError emitter does not implement Replier
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// CommandID identifies the affected command.
	CommandID string

	// Contract identifies the target, when known.
	Contract string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownCode indicates Instantiate named an unregistered code.
	ErrCodeUnknownCode RuntimeErrorCode = "UNKNOWN_CODE"

	// ErrCodeUnknownContract indicates the target address has no instance.
	ErrCodeUnknownContract RuntimeErrorCode = "UNKNOWN_CONTRACT"

	// ErrCodeReadOnly indicates a command was attempted from a query.
	ErrCodeReadOnly RuntimeErrorCode = "READ_ONLY"

	// ErrCodeNoReplyHandler indicates the emitter cannot receive failure callbacks.
	ErrCodeNoReplyHandler RuntimeErrorCode = "NO_REPLY_HANDLER"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.CommandID != "" && e.Contract != "" {
		return fmt.Sprintf("%s: %s (command=%s, contract=%s)", e.Code, e.Message, e.CommandID, e.Contract)
	}
	if e.Contract != "" {
		return fmt.Sprintf("%s: %s (contract=%s)", e.Code, e.Message, e.Contract)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Kind maps runtime errors onto the shared error taxonomy.
func (e *RuntimeError) Kind() types.ErrorKind {
	switch e.Code {
	case ErrCodeUnknownCode, ErrCodeUnknownContract:
		return types.KindNotFound
	default:
		return types.KindInternal
	}
}

// IsUnknownContract returns true if err reports a missing instance.
// Uses errors.As to handle wrapped errors.
func IsUnknownContract(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownContract
	}
	return false
}

// NewUnknownContractError creates a RuntimeError for a missing instance.
func NewUnknownContractError(addr types.Address) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownContract,
		Message:  "no contract at address",
		Contract: addr.Hex(),
	}
}

// NewUnknownCodeError creates a RuntimeError for an unregistered code.
func NewUnknownCodeError(code string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownCode,
		Message: fmt.Sprintf("code %q is not registered", code),
	}
}
