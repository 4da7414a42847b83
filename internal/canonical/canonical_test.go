package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_SortsObjectKeys(t *testing.T) {
	out, err := Canonicalize(json.RawMessage(`{"b":2,"a":1,"c":3}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, string(out))
}

func TestCanonicalize_SortsNestedKeys(t *testing.T) {
	out, err := Canonicalize(json.RawMessage(`{"outer":{"z":true,"a":{"y":1,"x":2}},"arr":[{"b":1,"a":2}]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"arr":[{"a":2,"b":1}],"outer":{"a":{"x":2,"y":1},"z":true}}`, string(out))
}

func TestCanonicalize_PreservesArrayOrder(t *testing.T) {
	out, err := Canonicalize(json.RawMessage(`[3,1,2]`))
	require.NoError(t, err)
	assert.Equal(t, `[3,1,2]`, string(out))
}

func TestCanonicalize_PreservesNumberLiterals(t *testing.T) {
	out, err := Canonicalize(json.RawMessage(`{"big":12345678901234567890,"dec":1.50}`))
	require.NoError(t, err)
	assert.Equal(t, `{"big":12345678901234567890,"dec":1.50}`, string(out))
}

func TestHash_IndependentOfKeyOrder(t *testing.T) {
	h1, err := Hash(json.RawMessage(`{"name":"Abebe","age":30,"tags":["a","b"]}`))
	require.NoError(t, err)
	h2, err := Hash(json.RawMessage(`{"tags":["a","b"],"age":30,"name":"Abebe"}`))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHash_MapAndRawMessageAgree(t *testing.T) {
	h1, err := Hash(map[string]any{"a": 1, "b": "x"})
	require.NoError(t, err)
	h2, err := Hash(json.RawMessage(`{"b":"x","a":1}`))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHash_SemanticDifferenceChangesDigest(t *testing.T) {
	h1, err := Hash(json.RawMessage(`{"name":"Abebe"}`))
	require.NoError(t, err)
	h2, err := Hash(json.RawMessage(`{"name":"Abeba"}`))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	h3, err := Hash(json.RawMessage(`["a","b"]`))
	require.NoError(t, err)
	h4, err := Hash(json.RawMessage(`["b","a"]`))
	require.NoError(t, err)
	assert.NotEqual(t, h3, h4, "array order is semantic")
}

func TestHash_NullAndAbsentDiffer(t *testing.T) {
	h1, err := Hash(map[string]any{"data": nil})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
