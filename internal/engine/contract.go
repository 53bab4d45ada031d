package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/vetogate/internal/types"
)

// Contract is a registered code. One Contract value serves every instance of the
// code; instance state lives in the store and is reached through Deps.
type Contract interface {
	// Instantiate initialises a new instance at env.Contract.
	Instantiate(ctx context.Context, deps Deps, env Env, msg json.RawMessage) (Response, error)

	// Execute handles a command. A returned error rolls back every write made
	// through deps.
	Execute(ctx context.Context, deps Deps, env Env, msg json.RawMessage) (Response, error)

	// Query answers a read-only request. deps.Call is unavailable.
	Query(ctx context.Context, deps Deps, env Env, msg json.RawMessage) (json.RawMessage, error)
}

// Replier is implemented by codes that emit ReplyOnError sub-messages.
type Replier interface {
	// Reply is the failure callback for a sub-message sent with ReplyOnError.
	Reply(ctx context.Context, deps Deps, env Env, reply Reply) (Response, error)
}

// Env describes the unit being executed.
type Env struct {
	// Contract is the instance handling the unit.
	Contract types.Address
	// Sender is the immediate caller. Zero for failure callbacks.
	Sender types.Address
	// Height and Time are the current block height and block time.
	Height uint64
	Time   time.Time
	// CommandID correlates every unit of one top-level command.
	CommandID string
}

// ReplyOn selects when the emitter is called back about a sub-message.
type ReplyOn int

const (
	// ReplyNever makes the sub-message fire-and-forget. A failure is recorded in
	// the Outcome and logged, and never affects the emitter.
	ReplyNever ReplyOn = iota
	// ReplyOnError calls the emitter's Reply when the sub-message fails.
	ReplyOnError
)

func (r ReplyOn) String() string {
	switch r {
	case ReplyNever:
		return "never"
	case ReplyOnError:
		return "error"
	default:
		return fmt.Sprintf("ReplyOn(%d)", int(r))
	}
}

// SubMsg is a message emitted by a contract, dispatched after the emitting unit
// commits. The sender of the dispatched unit is the emitter.
type SubMsg struct {
	ID      uint64
	Msg     types.Msg
	ReplyOn ReplyOn
}

// Reply carries the failure of a ReplyOnError sub-message back to its emitter.
type Reply struct {
	ID    uint64          `json:"id"`
	Kind  types.ErrorKind `json:"kind"`
	Error string          `json:"error"`
}

// Attribute is a key/value event attribute.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the result of a successful Instantiate, Execute or Reply.
type Response struct {
	Messages   []SubMsg
	Attributes []Attribute
	Data       json.RawMessage
}

// NewResponse starts a response with the conventional "action" attribute.
func NewResponse(action string) Response {
	return Response{Attributes: []Attribute{{Key: "action", Value: action}}}
}

// WithAttr appends an attribute. Values are formatted with %v; addresses use
// their checksummed hex form.
func (r Response) WithAttr(key string, value any) Response {
	var s string
	switch v := value.(type) {
	case types.Address:
		s = v.Hex()
	case string:
		s = v
	default:
		s = fmt.Sprintf("%v", v)
	}
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: s})
	return r
}

// WithMessage appends a fire-and-forget sub-message.
func (r Response) WithMessage(msg types.Msg) Response {
	r.Messages = append(r.Messages, SubMsg{Msg: msg, ReplyOn: ReplyNever})
	return r
}

// WithSubMsg appends a sub-message with the given reply mode.
func (r Response) WithSubMsg(sm SubMsg) Response {
	r.Messages = append(r.Messages, sm)
	return r
}

// WithData sets the response data to the JSON encoding of v.
func (r Response) WithData(v any) (Response, error) {
	raw, err := types.MarshalCanonical(v)
	if err != nil {
		return r, fmt.Errorf("encode response data: %w", err)
	}
	r.Data = raw
	return r, nil
}
