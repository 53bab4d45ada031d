package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Msg is an opaque command addressed to a contract. The body is whatever the target
// contract accepts; nothing in this package interprets it.
type Msg struct {
	Contract Address         `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
}

// NewMsg encodes body canonically and addresses it to contract.
func NewMsg(contract Address, body any) (Msg, error) {
	raw, err := MarshalCanonical(body)
	if err != nil {
		return Msg{}, fmt.Errorf("encode msg for %s: %w", contract.Hex(), err)
	}
	return Msg{Contract: contract, Msg: raw}, nil
}

// MustMsg is like NewMsg but panics on error. Use only with bodies known to encode.
func MustMsg(contract Address, body any) Msg {
	m, err := NewMsg(contract, body)
	if err != nil {
		panic(err)
	}
	return m
}

// DecodeVariant splits a command or query of the form {"name": body} into its
// single key and body. Anything else fails KindUnknownMessage.
func DecodeVariant(raw json.RawMessage) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", nil, Errorf(KindUnknownMessage, "malformed message: %v", err)
	}
	if len(m) != 1 {
		return "", nil, Errorf(KindUnknownMessage, "message must have exactly one variant, got %d", len(m))
	}
	for name, body := range m {
		return name, body, nil
	}
	panic("unreachable")
}

// DecodeStrict decodes body into v, rejecting unknown fields and trailing data.
// An empty or null body leaves v untouched.
func DecodeStrict(body json.RawMessage, v any) error {
	if len(bytes.TrimSpace(body)) == 0 || string(bytes.TrimSpace(body)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Errorf(KindUnknownMessage, "decode %T: %v", v, err)
	}
	if dec.More() {
		return Errorf(KindUnknownMessage, "decode %T: trailing data", v)
	}
	return nil
}

// Variant builds the one-key message {"name": body}. A nil body encodes as {}.
func Variant(name string, body any) map[string]any {
	if body == nil {
		body = map[string]any{}
	}
	return map[string]any{name: body}
}
