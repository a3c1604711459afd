package httpclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostsec/lostsec/pkg/defaults"
)

func TestNew_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.google.com/", http.StatusFound)
	}))
	defer srv.Close()

	client, err := New(DefaultConfig())
	require.NoError(t, err)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://www.google.com/", resp.Header.Get("Location"))
}

func TestNew_InvalidProxy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proxy = "::not a url"
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidProxy)
}

func TestNew_ZeroValuesGetDefaults(t *testing.T) {
	client, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, client.Timeout)
}

func TestRandomUserAgent(t *testing.T) {
	for i := 0; i < 20; i++ {
		assert.Contains(t, defaults.UserAgents, RandomUserAgent(nil))
	}
	assert.Equal(t, "only", RandomUserAgent([]string{"only"}))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"dns", &net.DNSError{Err: "no such host", Name: "nx.test", IsNotFound: true}, ErrDNS},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"refused message", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), ErrRefused},
		{"tls message", errors.New("remote error: tls: handshake failure"), ErrTLS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err)
			assert.ErrorIs(t, err, ErrTransport)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.err)

			// idempotent
			assert.Equal(t, err, Classify(err))
		})
	}
}

func TestClassify_RealRefusedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	client, err := New(DefaultConfig())
	require.NoError(t, err)
	_, err = client.Get("http://" + addr)
	require.Error(t, err)

	classified := Classify(err)
	assert.ErrorIs(t, classified, ErrTransport)
	assert.ErrorIs(t, classified, ErrRefused)
}
