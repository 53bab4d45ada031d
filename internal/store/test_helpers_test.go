package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/vetogate/internal/types"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// update runs fn in a committed write transaction and fails the test on error.
func update(t *testing.T, s *Store, fn func(ctx context.Context, tx *Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := s.Update(ctx, func(tx *Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
}

func testAddr(b byte) types.Address {
	return common.BytesToAddress([]byte{b})
}

func testProposal(id uint64, status types.ProposalStatus) types.TimelockedProposal {
	return types.TimelockedProposal{
		ID:         id,
		Msgs:       []types.Msg{types.MustMsg(testAddr(0xaa), map[string]any{"noop": map[string]any{}})},
		TimelockTS: time.Unix(1_700_000_000, 0).UTC(),
		Status:     status,
	}
}
