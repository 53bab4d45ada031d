package overrule

import (
	"context"
	"fmt"

	"github.com/roach88/vetogate/internal/types"
)

// Registry resolves the linkage between timelocks, subDAOs and the parent DAO.
// Every method reads the state of another contract through its query interface.
type Registry interface {
	// TimelockSubdao returns the subDAO a timelock claims to serve.
	TimelockSubdao(ctx context.Context, timelock types.Address) (types.Address, error)
	// SubdaoTimelock returns the timelock a subDAO has recorded as its own.
	SubdaoTimelock(ctx context.Context, subdao types.Address) (types.Address, error)
	// SubdaoParent returns the DAO a subDAO claims as its parent.
	SubdaoParent(ctx context.Context, subdao types.Address) (types.Address, error)
	// IsRegisteredSubdao reports whether parent lists subdao among its subDAOs.
	IsRegisteredSubdao(ctx context.Context, parent, subdao types.Address) (bool, error)
	// SubdaoName returns the display name of a subDAO.
	SubdaoName(ctx context.Context, subdao types.Address) (string, error)
	// TimelockProposalStatus returns the status of a timelock record; found is
	// false when the timelock has no record for id.
	TimelockProposalStatus(ctx context.Context, timelock types.Address, id uint64) (status types.ProposalStatus, found bool, err error)
}

// Ledger holds the veto proposals already created by one admission module.
type Ledger interface {
	OverruleProposalID(ctx context.Context, timelock types.Address, subdaoProposalID uint64) (id uint64, found bool, err error)
}

// Request is a veto proposal request as received by the admission module.
type Request struct {
	// DAO is the parent DAO this admission module serves.
	DAO types.Address
	// Caller is the immediate sender; it becomes the proposer.
	Caller types.Address
	// Timelock is the timelock the request claims to come from.
	Timelock types.Address
	// ProposalID is the subDAO proposal to veto.
	ProposalID uint64
}

// Draft is an admitted veto proposal, ready for the parent proposal module.
type Draft struct {
	Title       string
	Description string
	Msgs        []types.Msg
	Proposer    types.Address
	Subdao      types.Address
	SubdaoName  string
}

// Admit validates a veto proposal request and builds the proposal. Checks run in
// order and the first failure is returned:
//
//  1. the subDAO named by the timelock records that timelock (SubdaoMisconfigured)
//  2. the subDAO's parent is req.DAO and lists the subDAO (ForbiddenSubdao)
//  3. the timelock holds the proposal in the timelocked state (ProposalWrongState)
//  4. no veto proposal exists yet for the pair (AlreadyExists)
//
// Admit has no side effects.
func Admit(ctx context.Context, reg Registry, ledger Ledger, req Request) (Draft, error) {
	subdao, err := reg.TimelockSubdao(ctx, req.Timelock)
	if err != nil {
		return Draft{}, linkageError(ErrSubdaoMisconfigured, err, "resolve subdao of timelock "+req.Timelock.Hex())
	}
	recorded, err := reg.SubdaoTimelock(ctx, subdao)
	if err != nil {
		return Draft{}, linkageError(ErrSubdaoMisconfigured, err, "resolve timelock of subdao "+subdao.Hex())
	}
	if recorded != req.Timelock {
		return Draft{}, fmt.Errorf("%w: subdao %s records timelock %s, not %s",
			ErrSubdaoMisconfigured, subdao.Hex(), recorded.Hex(), req.Timelock.Hex())
	}

	parent, err := reg.SubdaoParent(ctx, subdao)
	if err != nil {
		return Draft{}, linkageError(ErrForbiddenSubdao, err, "resolve parent of subdao "+subdao.Hex())
	}
	if parent != req.DAO {
		return Draft{}, fmt.Errorf("%w: subdao %s claims parent %s", ErrForbiddenSubdao, subdao.Hex(), parent.Hex())
	}
	registered, err := reg.IsRegisteredSubdao(ctx, parent, subdao)
	if err != nil {
		return Draft{}, linkageError(ErrForbiddenSubdao, err, "list subdaos of "+parent.Hex())
	}
	if !registered {
		return Draft{}, fmt.Errorf("%w: %s", ErrForbiddenSubdao, subdao.Hex())
	}

	status, found, err := reg.TimelockProposalStatus(ctx, req.Timelock, req.ProposalID)
	if err != nil {
		return Draft{}, err
	}
	if !found || status != types.StatusTimelocked {
		return Draft{}, fmt.Errorf("%w: proposal %d (status %q)", ErrProposalWrongState, req.ProposalID, status)
	}

	existing, found, err := ledger.OverruleProposalID(ctx, req.Timelock, req.ProposalID)
	if err != nil {
		return Draft{}, err
	}
	if found {
		return Draft{}, &AlreadyExistsError{ID: existing}
	}

	name, err := reg.SubdaoName(ctx, subdao)
	if err != nil {
		return Draft{}, err
	}
	overrule, err := types.NewMsg(req.Timelock, types.Variant("overrule_proposal", map[string]any{
		"proposal_id": req.ProposalID,
	}))
	if err != nil {
		return Draft{}, err
	}

	return Draft{
		Title:       Title(req.ProposalID, name),
		Description: Description(req.ProposalID, name, subdao),
		Msgs:        []types.Msg{overrule},
		Proposer:    req.Caller,
		Subdao:      subdao,
		SubdaoName:  name,
	}, nil
}

// Title is the title of the veto proposal for subDAO proposal id.
func Title(id uint64, subdaoName string) string {
	return fmt.Sprintf("Reject the proposal #%d of the '%s' subdao", id, subdaoName)
}

// Description is the description of the veto proposal for subDAO proposal id.
func Description(id uint64, subdaoName string, subdao types.Address) string {
	return fmt.Sprintf(
		"If this proposal will be accepted, the DAO is going to overrule the proposal #%d of '%s' subdao (address %s)",
		id, subdaoName, subdao.Hex())
}
