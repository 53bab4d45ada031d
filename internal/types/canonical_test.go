package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalScalars(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", nil, "null"},
		{"string", "hello", `"hello"`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"uint64 max", uint64(18446744073709551615), "18446744073709551615"},
		{"json number", json.Number("7"), "7"},
		{"bool", true, "true"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting 0xD800, which sorts before 0xE000.
	obj := map[string]any{
		"": 1,
		"𐀀":      2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"𐀀":2,"`+""+`":1}`, string(result))
}

func TestMarshalCanonicalStructs(t *testing.T) {
	type body struct {
		ProposalID uint64 `json:"proposal_id"`
		Note       string `json:"note,omitempty"`
	}
	msg := map[string]any{"overrule_proposal": body{ProposalID: 3}}

	result, err := MarshalCanonical(msg)
	require.NoError(t, err)
	assert.Equal(t, `{"overrule_proposal":{"proposal_id":3}}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical("<a & b> ")
	require.NoError(t, err)
	assert.Equal(t, "\"<a & b> \"", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalises to U+00E9.
	result, err := MarshalCanonical("é")
	require.NoError(t, err)
	assert.Equal(t, "\"é\"", string(result))
}

func TestMarshalCanonicalControlChars(t *testing.T) {
	result, err := MarshalCanonical("a\nb\x01")
	require.NoError(t, err)
	assert.Equal(t, `"a\nb\u0001"`, string(result))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(1.5)
	require.Error(t, err)

	_, err = CanonicalizeJSON([]byte(`{"a":1e3}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestCanonicalizeJSON(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(` { "b" : [1, 2, {"y":null,"x":true}], "a":"s" } `))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"s","b":[1,2,{"x":true,"y":null}]}`, string(got))
}

func TestCanonicalizeJSONNegativeZero(t *testing.T) {
	got, err := CanonicalizeJSON([]byte(`[-0]`))
	require.NoError(t, err)
	assert.Equal(t, `[0]`, string(got))
}

func TestCanonicalizeJSONTrailingData(t *testing.T) {
	_, err := CanonicalizeJSON([]byte(`{} {}`))
	require.Error(t, err)
}

func TestMsgEncodesAddressLowercase(t *testing.T) {
	addr, err := ParseAddress("0x00000000000000000000000000000000000000Ab")
	require.NoError(t, err)

	msg := MustMsg(addr, map[string]any{"execute": map[string]any{"proposal_id": 1}})
	raw, err := MarshalCanonical([]Msg{msg})
	require.NoError(t, err)
	assert.Equal(t,
		`[{"contract":"0x00000000000000000000000000000000000000ab","msg":{"execute":{"proposal_id":1}}}]`,
		string(raw))
}
