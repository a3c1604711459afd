package iohelper

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBody_NilReader(t *testing.T) {
	body, err := ReadBody(nil, DefaultMaxBodySize)
	if err != nil {
		t.Errorf("Expected no error for nil reader, got %v", err)
	}
	if len(body) != 0 {
		t.Errorf("Expected empty body for nil reader, got %d bytes", len(body))
	}
}

func TestReadBody_RespectsLimit(t *testing.T) {
	data := strings.Repeat("x", 1000)

	body, err := ReadBody(strings.NewReader(data), 100)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if len(body) != 100 {
		t.Errorf("Expected 100 bytes (limit), got %d", len(body))
	}
}

func TestReadBody_ReadsAllWhenUnderLimit(t *testing.T) {
	data := "small data"

	body, err := ReadBody(strings.NewReader(data), 1024)
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if string(body) != data {
		t.Errorf("Expected '%s', got '%s'", data, string(body))
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestReadBodyOrLog_SwallowsError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	data := ReadBodyOrLog(errReader{}, logger)
	assert.Empty(t, data)
	assert.Contains(t, buf.String(), "body read failed")
}

type trackingCloser struct {
	io.Reader
	closed bool
}

func (c *trackingCloser) Close() error {
	c.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	rc := &trackingCloser{Reader: strings.NewReader(strings.Repeat("a", 10))}
	assert.NoError(t, DrainAndClose(rc))
	assert.True(t, rc.closed)
	assert.NoError(t, DrainAndClose(nil))
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        string
	}{
		{"empty", nil, "text/html", ""},
		{"utf8 no charset", []byte("root:x:0:0"), "text/plain", "root:x:0:0"},
		{"utf8 declared", []byte("héllo"), "text/html; charset=UTF-8", "héllo"},
		{"latin1 declared", []byte{'c', 'a', 'f', 0xe9}, "text/html; charset=iso-8859-1", "café"},
		{"no content type", []byte("plain"), "", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBody(tt.body, tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeBody_UnknownCharset(t *testing.T) {
	_, err := DecodeBody([]byte("x"), "text/html; charset=klingon-8")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCharset)
}

func TestDecodeBody_SniffsNonUTF8(t *testing.T) {
	got, err := DecodeBody([]byte{'c', 'a', 'f', 0xe9}, "text/html")
	require.NoError(t, err)
	assert.Equal(t, "café", got)
}
