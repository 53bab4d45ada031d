package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/types"
)

func TestTimelockConfigRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tl := testAddr(0x10)
	cfg := types.TimelockConfig{Owner: testAddr(1), OverrulePrePropose: testAddr(2), Subdao: testAddr(3)}

	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.SaveTimelockConfig(ctx, tl, cfg)
	})

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		got, err := tx.TimelockConfig(ctx, tl)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)

		_, err = tx.TimelockConfig(ctx, testAddr(0x11))
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestTimelockConfigRejectsOwnerEqualSubdao(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		return tx.SaveTimelockConfig(ctx, testAddr(0x10), types.TimelockConfig{
			Owner: testAddr(3), OverrulePrePropose: testAddr(2), Subdao: testAddr(3),
		})
	})
	assert.True(t, types.IsKind(err, types.KindInvalidConfig))
}

func TestTimelockProposalLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tl := testAddr(0x10)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		require.NoError(t, tx.InsertTimelockProposal(ctx, tl, testProposal(1, types.StatusTimelocked)))
		err := tx.InsertTimelockProposal(ctx, tl, testProposal(1, types.StatusTimelocked))
		assert.ErrorIs(t, err, ErrConflict)

		// Same id under another timelock is independent.
		return tx.InsertTimelockProposal(ctx, testAddr(0x11), testProposal(1, types.StatusTimelocked))
	})

	update(t, s, func(ctx context.Context, tx *Tx) error {
		require.NoError(t, tx.SetTimelockProposalStatus(ctx, tl, 1, types.StatusExecuted))
		err := tx.SetTimelockProposalStatus(ctx, tl, 2, types.StatusExecuted)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		p, err := tx.TimelockProposal(ctx, tl, 1)
		require.NoError(t, err)
		want := testProposal(1, types.StatusExecuted)
		assert.Equal(t, want.TimelockTS, p.TimelockTS)
		assert.Equal(t, types.StatusExecuted, p.Status)
		require.Len(t, p.Msgs, 1)
		assert.JSONEq(t, `{"noop":{}}`, string(p.Msgs[0].Msg))

		other, err := tx.TimelockProposal(ctx, testAddr(0x11), 1)
		require.NoError(t, err)
		assert.Equal(t, types.StatusTimelocked, other.Status)
		return nil
	}))
}

func TestListTimelockProposalsPagination(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tl := testAddr(0x10)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		for _, id := range []uint64{5, 1, 3, 2, 4} {
			require.NoError(t, tx.InsertTimelockProposal(ctx, tl, testProposal(id, types.StatusTimelocked)))
		}
		return nil
	})

	ids := func(ps []types.TimelockedProposal) []uint64 {
		out := []uint64{}
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		all, err := tx.ListTimelockProposals(ctx, tl, nil, 30)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids(all))

		after := uint64(2)
		page, err := tx.ListTimelockProposals(ctx, tl, &after, 2)
		require.NoError(t, err)
		assert.Equal(t, []uint64{3, 4}, ids(page), "start_after is exclusive")

		last := uint64(5)
		empty, err := tx.ListTimelockProposals(ctx, tl, &last, 30)
		require.NoError(t, err)
		assert.Empty(t, empty)
		return nil
	}))
}
