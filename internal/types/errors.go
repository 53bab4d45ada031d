package types

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures across modules.
type ErrorKind string

const (
	KindUnauthorized        ErrorKind = "unauthorized"
	KindWrongStatus         ErrorKind = "wrong_status"
	KindProposalWrongState  ErrorKind = "proposal_wrong_state"
	KindTimeLocked          ErrorKind = "time_locked"
	KindCantCreateOverrule  ErrorKind = "cant_create_overrule"
	KindForbiddenSubdao     ErrorKind = "forbidden_subdao"
	KindSubdaoMisconfigured ErrorKind = "subdao_misconfigured"
	KindAlreadyExists       ErrorKind = "already_exists"
	KindNoSuchProposal      ErrorKind = "no_such_proposal"
	KindMessageUnsupported  ErrorKind = "message_unsupported"
	KindDuplicateProposal   ErrorKind = "duplicate_proposal"
	KindInvalidAddress      ErrorKind = "invalid_address"
	KindInvalidConfig       ErrorKind = "invalid_config"
	KindPaused              ErrorKind = "paused"
	KindUnknownMessage      ErrorKind = "unknown_message"
	KindNotFound            ErrorKind = "not_found"

	// KindInternal is reported for errors that carry no kind (storage, encoding).
	KindInternal ErrorKind = "internal"
)

// kinded is implemented by every error that belongs to the taxonomy.
type kinded interface {
	Kind() ErrorKind
}

// Error is the plain taxonomy error. Modules declare their sentinels with NewError
// and compare with errors.Is.
type Error struct {
	kind ErrorKind
	msg  string
}

// NewError returns a new Error of the given kind.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Errorf formats a new Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.msg
}

// Kind implements the taxonomy interface.
func (e *Error) Kind() ErrorKind {
	return e.kind
}

// KindOf returns the kind of the first error in the chain that has one.
// Returns "" for nil and KindInternal for errors outside the taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// IsKind reports whether err has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
