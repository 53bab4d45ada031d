package overrule

import (
	"errors"
	"fmt"

	"github.com/roach88/vetogate/internal/types"
)

var (
	// ErrSubdaoMisconfigured is returned when a timelock and the subDAO it names
	// disagree about their linkage.
	ErrSubdaoMisconfigured = types.NewError(types.KindSubdaoMisconfigured, "subdao is wrongly configured")

	// ErrForbiddenSubdao is returned when the subDAO is not registered with this
	// module's DAO.
	ErrForbiddenSubdao = types.NewError(types.KindForbiddenSubdao, "subdao is not registered with the dao")

	// ErrProposalWrongState is returned when the subDAO proposal is not timelocked.
	ErrProposalWrongState = types.NewError(types.KindProposalWrongState, "proposal is not timelocked")

	// ErrMessageUnsupported is returned for every command other than propose_overrule.
	ErrMessageUnsupported = types.NewError(types.KindMessageUnsupported, "message unsupported")
)

// AlreadyExistsError is returned when a veto proposal was already created for the
// subDAO proposal. ID is the existing veto proposal id.
type AlreadyExistsError struct {
	ID uint64
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("overrule proposal already exists (id %d)", e.ID)
}

// Kind implements the error taxonomy.
func (e *AlreadyExistsError) Kind() types.ErrorKind {
	return types.KindAlreadyExists
}

// IsAlreadyExists reports whether err is an AlreadyExistsError and returns the
// existing id.
func IsAlreadyExists(err error) (uint64, bool) {
	var ae *AlreadyExistsError
	if errors.As(err, &ae) {
		return ae.ID, true
	}
	return 0, false
}

// linkageError reports a failed linkage lookup as sentinel, keeping the cause in
// the message. Errors outside the taxonomy (storage, decoding) pass through.
func linkageError(sentinel *types.Error, err error, what string) error {
	if types.KindOf(err) == types.KindInternal {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %v", sentinel, what, err)
}
