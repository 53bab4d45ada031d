package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
)

// Genesis is the block time every test chain starts at.
var Genesis = time.Unix(1_700_000_000, 0).UTC()

// GenesisHeight is the block height every test chain starts at.
const GenesisHeight = 1

// NewStore opens a fresh SQLite store in a temp directory, closed on cleanup.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// NewEngine returns an engine over a fresh store with sequential command ids
// ("cmd-1", "cmd-2", ...) and the chain at Genesis.
//
// The same sequence of calls against engines built by NewEngine produces
// byte-identical journals.
func NewEngine(t *testing.T, codes map[string]engine.Contract, opts ...engine.EngineOption) *engine.Engine {
	t.Helper()
	opts = append([]engine.EngineOption{engine.WithIDGenerator(engine.NewSequenceGenerator("cmd"))}, opts...)
	e := engine.New(NewStore(t), codes, opts...)
	require.NoError(t, e.Genesis(context.Background(), GenesisHeight, Genesis))
	return e
}
