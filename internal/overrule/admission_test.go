package overrule

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/types"
)

var (
	parentDAO = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	subdaoA   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	timelockA = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	otherDAO  = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

// fakeRegistry is an in-memory linkage graph.
type fakeRegistry struct {
	timelockSubdao map[types.Address]types.Address
	subdaoTimelock map[types.Address]types.Address
	subdaoParent   map[types.Address]types.Address
	registered     map[types.Address][]types.Address
	names          map[types.Address]string
	statuses       map[uint64]types.ProposalStatus
	err            error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		timelockSubdao: map[types.Address]types.Address{timelockA: subdaoA},
		subdaoTimelock: map[types.Address]types.Address{subdaoA: timelockA},
		subdaoParent:   map[types.Address]types.Address{subdaoA: parentDAO},
		registered:     map[types.Address][]types.Address{parentDAO: {subdaoA}},
		names:          map[types.Address]string{subdaoA: "Alpha"},
		statuses:       map[uint64]types.ProposalStatus{7: types.StatusTimelocked},
	}
}

func (f *fakeRegistry) TimelockSubdao(_ context.Context, timelock types.Address) (types.Address, error) {
	if f.err != nil {
		return types.ZeroAddress, f.err
	}
	s, ok := f.timelockSubdao[timelock]
	if !ok {
		return types.ZeroAddress, types.Errorf(types.KindUnknownMessage, "not a timelock")
	}
	return s, nil
}

func (f *fakeRegistry) SubdaoTimelock(_ context.Context, subdao types.Address) (types.Address, error) {
	t, ok := f.subdaoTimelock[subdao]
	if !ok {
		return types.ZeroAddress, types.Errorf(types.KindNotFound, "no timelock")
	}
	return t, nil
}

func (f *fakeRegistry) SubdaoParent(_ context.Context, subdao types.Address) (types.Address, error) {
	p, ok := f.subdaoParent[subdao]
	if !ok {
		return types.ZeroAddress, types.Errorf(types.KindNotFound, "no main dao")
	}
	return p, nil
}

func (f *fakeRegistry) IsRegisteredSubdao(_ context.Context, parent, subdao types.Address) (bool, error) {
	for _, s := range f.registered[parent] {
		if s == subdao {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRegistry) SubdaoName(_ context.Context, subdao types.Address) (string, error) {
	return f.names[subdao], nil
}

func (f *fakeRegistry) TimelockProposalStatus(_ context.Context, _ types.Address, id uint64) (types.ProposalStatus, bool, error) {
	s, ok := f.statuses[id]
	return s, ok, nil
}

type fakeLedger map[uint64]uint64

func (l fakeLedger) OverruleProposalID(_ context.Context, _ types.Address, id uint64) (uint64, bool, error) {
	v, ok := l[id]
	return v, ok, nil
}

func request(id uint64) Request {
	return Request{DAO: parentDAO, Caller: timelockA, Timelock: timelockA, ProposalID: id}
}

func TestAdmit_BuildsDraft(t *testing.T) {
	draft, err := Admit(context.Background(), newFakeRegistry(), fakeLedger{}, request(7))
	require.NoError(t, err)

	assert.Equal(t, "Reject the proposal #7 of the 'Alpha' subdao", draft.Title)
	assert.Equal(t,
		"If this proposal will be accepted, the DAO is going to overrule the proposal #7 of 'Alpha' subdao (address "+subdaoA.Hex()+")",
		draft.Description)
	assert.Equal(t, timelockA, draft.Proposer)
	assert.Equal(t, subdaoA, draft.Subdao)
	assert.Equal(t, "Alpha", draft.SubdaoName)

	require.Len(t, draft.Msgs, 1)
	assert.Equal(t, timelockA, draft.Msgs[0].Contract)
	assert.JSONEq(t, `{"overrule_proposal":{"proposal_id":7}}`, string(draft.Msgs[0].Msg))
}

func TestAdmit_ProposerIsCaller(t *testing.T) {
	req := request(7)
	req.Caller = otherDAO

	draft, err := Admit(context.Background(), newFakeRegistry(), fakeLedger{}, req)
	require.NoError(t, err)
	assert.Equal(t, otherDAO, draft.Proposer)
}

func TestAdmit_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeRegistry, fakeLedger, *Request)
		want   types.ErrorKind
	}{
		{
			name: "subdao records another timelock",
			mutate: func(r *fakeRegistry, _ fakeLedger, _ *Request) {
				r.subdaoTimelock[subdaoA] = otherDAO
			},
			want: types.KindSubdaoMisconfigured,
		},
		{
			name: "subdao has no timelock",
			mutate: func(r *fakeRegistry, _ fakeLedger, _ *Request) {
				delete(r.subdaoTimelock, subdaoA)
			},
			want: types.KindSubdaoMisconfigured,
		},
		{
			name: "caller claims a contract that is not a timelock",
			mutate: func(_ *fakeRegistry, _ fakeLedger, req *Request) {
				req.Timelock = otherDAO
			},
			want: types.KindSubdaoMisconfigured,
		},
		{
			name: "subdao claims another parent",
			mutate: func(r *fakeRegistry, _ fakeLedger, _ *Request) {
				r.subdaoParent[subdaoA] = otherDAO
			},
			want: types.KindForbiddenSubdao,
		},
		{
			name: "subdao has no parent",
			mutate: func(r *fakeRegistry, _ fakeLedger, _ *Request) {
				delete(r.subdaoParent, subdaoA)
			},
			want: types.KindForbiddenSubdao,
		},
		{
			name: "parent does not list subdao",
			mutate: func(r *fakeRegistry, _ fakeLedger, _ *Request) {
				r.registered[parentDAO] = nil
			},
			want: types.KindForbiddenSubdao,
		},
		{
			name: "proposal not in timelock",
			mutate: func(_ *fakeRegistry, _ fakeLedger, req *Request) {
				req.ProposalID = 8
			},
			want: types.KindProposalWrongState,
		},
		{
			name: "proposal already overruled",
			mutate: func(r *fakeRegistry, _ fakeLedger, _ *Request) {
				r.statuses[7] = types.StatusOverruled
			},
			want: types.KindProposalWrongState,
		},
		{
			name: "proposal already executed",
			mutate: func(r *fakeRegistry, _ fakeLedger, _ *Request) {
				r.statuses[7] = types.StatusExecuted
			},
			want: types.KindProposalWrongState,
		},
		{
			name: "veto proposal exists",
			mutate: func(_ *fakeRegistry, l fakeLedger, _ *Request) {
				l[7] = 3
			},
			want: types.KindAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, ledger, req := newFakeRegistry(), fakeLedger{}, request(7)
			tt.mutate(reg, ledger, &req)

			_, err := Admit(context.Background(), reg, ledger, req)
			require.Error(t, err)
			assert.Equal(t, tt.want, types.KindOf(err), "error: %v", err)
		})
	}
}

func TestAdmit_CheckOrder(t *testing.T) {
	// Every check fails; the first one wins.
	reg := newFakeRegistry()
	reg.subdaoTimelock[subdaoA] = otherDAO
	reg.subdaoParent[subdaoA] = otherDAO
	reg.statuses[7] = types.StatusOverruled

	_, err := Admit(context.Background(), reg, fakeLedger{7: 1}, request(7))
	assert.ErrorIs(t, err, ErrSubdaoMisconfigured)

	reg.subdaoTimelock[subdaoA] = timelockA
	_, err = Admit(context.Background(), reg, fakeLedger{7: 1}, request(7))
	assert.ErrorIs(t, err, ErrForbiddenSubdao)

	reg.subdaoParent[subdaoA] = parentDAO
	_, err = Admit(context.Background(), reg, fakeLedger{7: 1}, request(7))
	assert.ErrorIs(t, err, ErrProposalWrongState)
}

func TestAdmit_AlreadyExistsCarriesID(t *testing.T) {
	_, err := Admit(context.Background(), newFakeRegistry(), fakeLedger{7: 12}, request(7))

	id, ok := IsAlreadyExists(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, uint64(12), id)
	assert.Contains(t, err.Error(), "12")
}

func TestAdmit_InternalLookupErrorPassesThrough(t *testing.T) {
	boom := errors.New("disk on fire")
	reg := newFakeRegistry()
	reg.err = boom

	_, err := Admit(context.Background(), reg, fakeLedger{}, request(7))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.KindInternal, types.KindOf(err))
}

func TestTitleAndDescription(t *testing.T) {
	assert.Equal(t, "Reject the proposal #1 of the 'Beta' subdao", Title(1, "Beta"))
	assert.Equal(t,
		"If this proposal will be accepted, the DAO is going to overrule the proposal #1 of 'Beta' subdao (address "+subdaoA.Hex()+")",
		Description(1, "Beta", subdaoA))
}
