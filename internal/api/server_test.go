package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/api"
	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/testutil"
	"github.com/roach88/vetogate/internal/types"
)

// newServer deploys the default world and runs its engine loop for the test.
func newServer(t *testing.T) (*testutil.World, http.Handler) {
	t.Helper()
	w := testutil.NewWorld(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, api.New(w.Engine, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorEnvelope struct {
	Error struct {
		Kind    types.ErrorKind `json:"kind"`
		Message string          `json:"message"`
	} `json:"error"`
}

func TestServer_Chain(t *testing.T) {
	_, h := newServer(t)

	rec := do(t, h, http.MethodGet, "/v1/chain", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[store.ChainState](t, rec)
	assert.Equal(t, uint64(testutil.GenesisHeight), st.Height)
	assert.True(t, testutil.Genesis.Equal(st.Time))

	rec = do(t, h, http.MethodPost, "/v1/chain/advance", `{"seconds":60,"blocks":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st = decode[store.ChainState](t, rec)
	assert.Equal(t, uint64(testutil.GenesisHeight+2), st.Height)
	assert.Equal(t, int64(60), st.Time.Unix()-testutil.Genesis.Unix())

	rec = do(t, h, http.MethodPost, "/v1/chain/advance", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Contracts(t *testing.T) {
	w, h := newServer(t)

	rec := do(t, h, http.MethodGet, "/v1/contracts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Contracts []store.ContractRecord `json:"contracts"`
	}](t, rec)
	assert.Len(t, list.Contracts, 6)

	rec = do(t, h, http.MethodGet, "/v1/contracts/alpha%2Ftimelock", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[store.ContractRecord](t, rec)
	assert.Equal(t, w.Sub("alpha").Timelock, got.Address)

	rec = do(t, h, http.MethodGet, "/v1/contracts/"+w.Sub("alpha").Timelock.Hex(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[store.ContractRecord](t, rec)
	assert.Equal(t, "alpha/timelock", got.Label)

	rec = do(t, h, http.MethodGet, "/v1/contracts/0x00000000000000000000000000000000000000ff", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, types.KindNotFound, decode[errorEnvelope](t, rec).Error.Kind)
}

func TestServer_Query(t *testing.T) {
	w, h := newServer(t)
	path := "/v1/contracts/" + w.Sub("alpha").Timelock.Hex() + "/query"

	rec := do(t, h, http.MethodPost, path, `{"config":{}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cfg types.TimelockConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, w.Parent.Core, cfg.Owner)
	assert.Equal(t, w.Sub("alpha").Core, cfg.Subdao)

	rec = do(t, h, http.MethodPost, path, `{"proposal":{"proposal_id":1}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, types.KindNoSuchProposal, decode[errorEnvelope](t, rec).Error.Kind)

	rec = do(t, h, http.MethodPost, path, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Execute(t *testing.T) {
	w, h := newServer(t)
	sc := w.Sub("alpha")

	body := `{"sender":"member","msg":{"propose":{"title":"t","description":"d","msgs":[]}}}`
	rec := do(t, h, http.MethodPost, "/v1/contracts/"+sc.Proposal.Hex()+"/execute", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[struct {
		Outcome engine.Outcome `json:"outcome"`
	}](t, rec)
	assert.JSONEq(t, `1`, string(out.Outcome.Data))
	require.NotEmpty(t, out.Outcome.Units)
	assert.Equal(t, testutil.Account("member"), out.Outcome.Units[0].Sender)

	// A failing command reports its kind together with the outcome.
	body = `{"sender":"member","msg":{"execute_proposal":{"proposal_id":1}}}`
	rec = do(t, h, http.MethodPost, "/v1/contracts/"+sc.Timelock.Hex()+"/execute", body)
	require.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	failed := decode[struct {
		Outcome engine.Outcome `json:"outcome"`
		Error   struct {
			Kind types.ErrorKind `json:"kind"`
		} `json:"error"`
	}](t, rec)
	assert.Equal(t, types.KindNoSuchProposal, failed.Error.Kind)
	require.Len(t, failed.Outcome.Units, 1)
	assert.False(t, failed.Outcome.Units[0].OK())

	rec = do(t, h, http.MethodPost, "/v1/contracts/"+sc.Timelock.Hex()+"/execute", `{"msg":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "sender is required")

	rec = do(t, h, http.MethodPost, "/v1/contracts/"+sc.Timelock.Hex()+"/execute", `{"sender":"0xzz","msg":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, types.KindInvalidAddress, decode[errorEnvelope](t, rec).Error.Kind)
}

func TestServer_Commands(t *testing.T) {
	w, h := newServer(t)

	all, err := w.Engine.Commands(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Greater(t, len(all), 3)

	rec := do(t, h, http.MethodGet, "/v1/commands?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[struct {
		Commands []store.CommandRecord `json:"commands"`
	}](t, rec)
	require.Len(t, page.Commands, 2)
	assert.Equal(t, all[0].Seq, page.Commands[0].Seq)

	rec = do(t, h, http.MethodGet, "/v1/commands?after="+jsonInt(page.Commands[1].Seq), "")
	require.Equal(t, http.StatusOK, rec.Code)
	rest := decode[struct {
		Commands []store.CommandRecord `json:"commands"`
	}](t, rec)
	assert.Len(t, rest.Commands, len(all)-2)

	for _, q := range []string{"limit=0", "limit=x", "after=-1"} {
		rec = do(t, h, http.MethodGet, "/v1/commands?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}
