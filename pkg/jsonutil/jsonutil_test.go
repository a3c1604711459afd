package jsonutil

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name    string        `json:"name"`
	Elapsed time.Duration `json:"elapsed_ns,format:nano"`
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := Marshal(record{Name: "a", Elapsed: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","elapsed_ns":1500000000}`, string(data))

	var got record
	require.NoError(t, Unmarshal(data, &got))
	assert.Equal(t, 1500*time.Millisecond, got.Elapsed)
}

func TestUnmarshal_IgnoresUnknownFields(t *testing.T) {
	var got record
	require.NoError(t, Unmarshal([]byte(`{"name":"a","extra":true}`), &got))
	assert.Equal(t, "a", got.Name)
}

func TestUnmarshal_Invalid(t *testing.T) {
	var got record
	assert.Error(t, Unmarshal([]byte(`{invalid}`), &got))
	assert.False(t, Valid([]byte(`{invalid}`)))
	assert.True(t, Valid([]byte(`{"ok":1}`)))
}

func TestMarshalIndent(t *testing.T) {
	data, err := MarshalIndent(map[string]int{"a": 1}, "  ")
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"a\"")
}

func TestStreamEncoder_OneValuePerLine(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(&buf)
	require.NoError(t, enc.Encode(record{Name: "a"}))
	require.NoError(t, enc.Encode(record{Name: "b"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, Valid([]byte(lines[0])))
	assert.Contains(t, lines[1], `"b"`)
}
