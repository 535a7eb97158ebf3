package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_DecodeArray(t *testing.T) {
	codec := NewJSONCodec(JSONOptions{})
	rows, err := codec.Decode([]byte(`[{"name":"Alice"},{"name":"Bob"}]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alice", rows[0]["name"])
}

func TestJSONCodec_DecodeNDJSON(t *testing.T) {
	codec := NewJSONCodec(JSONOptions{NDJSON: true})
	rows, err := codec.Decode([]byte("{\"name\":\"Alice\"}\n{\"name\":\"Bob\"}\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bob", rows[1]["name"])
}

func TestJSONCodec_DecodeNDJSON_SkipsBlankLines(t *testing.T) {
	codec := NewJSONCodec(JSONOptions{NDJSON: true})
	rows, err := codec.Decode([]byte("{\"name\":\"Alice\"}\n\n{\"name\":\"Bob\"}\n"))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestJSONCodec_ArrayNDJSONRoundTrip(t *testing.T) {
	codec := NewJSONCodec(JSONOptions{NDJSON: true})
	raw := []byte("{\"name\":\"Alice\"}\n{\"name\":\"Bob\"}")

	rows, err := codec.Decode(raw)
	require.NoError(t, err)

	encoded, err := codec.Encode(rows, false)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(encoded))
}

func TestJSONCodec_EncodeAsArray(t *testing.T) {
	codec := NewJSONCodec(JSONOptions{})
	encoded, err := codec.Encode([]map[string]any{{"name": "Alice"}}, true)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Alice"}]`, string(encoded))
}
