package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vetogate/internal/store"
	"github.com/roach88/vetogate/internal/types"
)

// probe is a test code exercising every engine feature.
//
// Execute:
//
//	{"incr":{}}                                   count++
//	{"fail":{"kind":"unauthorized"}}              writes, then fails
//	{"emit":{"msgs":[...],"reply":true}}          emits sub-messages (ids 1..n)
//	{"call":{"contract":"0x..","msg":{},"swallow":false,"fail":false}}
//	{"loop":{}}                                   emits {"loop":{}} to itself
//
// Query: {"count":{}} and {"replies":{}}.
type probe struct{}

type probeMsg struct {
	Incr *struct{} `json:"incr"`
	Fail *struct {
		Kind types.ErrorKind `json:"kind"`
	} `json:"fail"`
	Emit *struct {
		Msgs  []types.Msg `json:"msgs"`
		Reply bool        `json:"reply"`
	} `json:"emit"`
	Call *struct {
		Contract types.Address   `json:"contract"`
		Msg      json.RawMessage `json:"msg"`
		Swallow  bool            `json:"swallow"`
		Fail     bool            `json:"fail"`
	} `json:"call"`
	Loop *struct{} `json:"loop"`
}

func (probe) Instantiate(ctx context.Context, deps Deps, env Env, msg json.RawMessage) (Response, error) {
	if err := deps.Tx.SaveJSON(ctx, env.Contract, "count", 0); err != nil {
		return Response{}, err
	}
	return NewResponse("instantiate"), nil
}

func (p probe) Execute(ctx context.Context, deps Deps, env Env, raw json.RawMessage) (Response, error) {
	var msg probeMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Response{}, types.Errorf(types.KindUnknownMessage, "probe: %v", err)
	}
	switch {
	case msg.Incr != nil:
		n, err := p.bump(ctx, deps, env, "count", 1)
		if err != nil {
			return Response{}, err
		}
		if err := deps.Tx.SaveJSON(ctx, env.Contract, "last_sender", env.Sender); err != nil {
			return Response{}, err
		}
		return NewResponse("incr").WithAttr("count", n).WithData(map[string]any{"count": n})
	case msg.Fail != nil:
		if _, err := p.bump(ctx, deps, env, "count", 100); err != nil {
			return Response{}, err
		}
		return Response{}, types.NewError(msg.Fail.Kind, "probe failure")
	case msg.Emit != nil:
		if _, err := p.bump(ctx, deps, env, "count", 1); err != nil {
			return Response{}, err
		}
		resp := NewResponse("emit")
		for i, m := range msg.Emit.Msgs {
			on := ReplyNever
			if msg.Emit.Reply {
				on = ReplyOnError
			}
			resp = resp.WithSubMsg(SubMsg{ID: uint64(i + 1), Msg: m, ReplyOn: on})
		}
		return resp, nil
	case msg.Call != nil:
		if _, err := p.bump(ctx, deps, env, "count", 1); err != nil {
			return Response{}, err
		}
		data, err := deps.Call(ctx, msg.Call.Contract, msg.Call.Msg)
		if err != nil && !msg.Call.Swallow {
			return Response{}, err
		}
		if msg.Call.Fail {
			return Response{}, types.NewError(types.KindUnauthorized, "failed after call")
		}
		return Response{Data: data}, nil
	case msg.Loop != nil:
		return NewResponse("loop").WithMessage(types.MustMsg(env.Contract, map[string]any{"loop": map[string]any{}})), nil
	}
	return Response{}, types.Errorf(types.KindUnknownMessage, "probe: unknown message")
}

func (p probe) Query(ctx context.Context, deps Deps, env Env, raw json.RawMessage) (json.RawMessage, error) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	for key := range msg {
		switch key {
		case "count", "replies":
			v, err := deps.Tx.GetState(ctx, env.Contract, key)
			if errors.Is(err, store.ErrNotFound) {
				return json.RawMessage(`0`), nil
			}
			return v, err
		case "last_reply":
			return deps.Tx.GetState(ctx, env.Contract, key)
		}
	}
	return nil, types.Errorf(types.KindUnknownMessage, "probe: unknown query")
}

func (p probe) Reply(ctx context.Context, deps Deps, env Env, reply Reply) (Response, error) {
	if _, err := p.bump(ctx, deps, env, "replies", 1); err != nil {
		return Response{}, err
	}
	if err := deps.Tx.SaveJSON(ctx, env.Contract, "last_reply", reply); err != nil {
		return Response{}, err
	}
	return NewResponse("reply").WithAttr("id", reply.ID), nil
}

func (probe) bump(ctx context.Context, deps Deps, env Env, key string, by int) (int, error) {
	var n int
	err := deps.Tx.LoadJSON(ctx, env.Contract, key, &n)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	n += by
	return n, deps.Tx.SaveJSON(ctx, env.Contract, key, n)
}

// plain is a code without a Reply handler.
type plain struct{ p probe }

func (c plain) Instantiate(ctx context.Context, deps Deps, env Env, msg json.RawMessage) (Response, error) {
	return c.p.Instantiate(ctx, deps, env, msg)
}

func (c plain) Execute(ctx context.Context, deps Deps, env Env, msg json.RawMessage) (Response, error) {
	return c.p.Execute(ctx, deps, env, msg)
}

func (c plain) Query(ctx context.Context, deps Deps, env Env, msg json.RawMessage) (json.RawMessage, error) {
	return c.p.Query(ctx, deps, env, msg)
}

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	genesis  = time.Unix(1_700_000_000, 0).UTC()
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	opts = append([]EngineOption{WithIDGenerator(NewSequenceGenerator("cmd"))}, opts...)
	e := New(s, map[string]Contract{"probe": probe{}, "plain": plain{}}, opts...)
	require.NoError(t, e.Genesis(context.Background(), 1, genesis))
	return e
}

func instantiate(t *testing.T, e *Engine, code, label string) types.Address {
	t.Helper()
	out, err := e.Instantiate(context.Background(), deployer, code, label, map[string]any{})
	require.NoError(t, err)
	return out.Contract
}

func count(t *testing.T, e *Engine, addr types.Address, key string) int {
	t.Helper()
	var n int
	require.NoError(t, e.QueryInto(context.Background(), addr, map[string]any{key: map[string]any{}}, &n))
	return n
}

func emitMsg(msgs ...types.Msg) map[string]any {
	return map[string]any{"emit": map[string]any{"msgs": msgs}}
}

func msgTo(addr types.Address, body string) types.Msg {
	return types.Msg{Contract: addr, Msg: json.RawMessage(body)}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mustJSON: %v", err))
	}
	return string(b)
}
