package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/types"
)

func TestOverruleConfigRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	adm := testAddr(0x20)

	update(t, s, func(ctx context.Context, tx *Tx) error {
		return tx.SaveOverruleConfig(ctx, adm, OverruleConfig{
			DAO: testAddr(1), ProposalModule: testAddr(2), OpenProposalSubmission: true,
		})
	})

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		cfg, err := tx.OverruleConfig(ctx, adm)
		require.NoError(t, err)
		assert.Equal(t, testAddr(1), cfg.DAO)
		assert.Equal(t, testAddr(2), cfg.ProposalModule)
		assert.True(t, cfg.OpenProposalSubmission)
		assert.Equal(t, json.RawMessage("null"), cfg.DepositInfo)
		return nil
	}))
}

func TestOverruleRecordUniqueness(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	adm, tl := testAddr(0x20), testAddr(0x10)

	rec := types.OverruleRecord{
		RecordID: types.RecordID(tl, 7), Timelock: tl, SubdaoProposalID: 7, OverruleProposalID: 1,
	}

	update(t, s, func(ctx context.Context, tx *Tx) error {
		require.NoError(t, tx.InsertOverruleRecord(ctx, adm, rec))

		dup := rec
		dup.OverruleProposalID = 2
		err := tx.InsertOverruleRecord(ctx, adm, dup)
		assert.ErrorIs(t, err, ErrConflict, "one veto proposal per (timelock, proposal id)")
		return nil
	})

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		got, err := tx.OverruleRecord(ctx, adm, tl, 7)
		require.NoError(t, err)
		assert.Equal(t, rec, got)

		_, err = tx.OverruleRecord(ctx, adm, tl, 8)
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := tx.ListOverruleRecords(ctx, adm)
		require.NoError(t, err)
		assert.Equal(t, []types.OverruleRecord{rec}, all)
		return nil
	}))
}
