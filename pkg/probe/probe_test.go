package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostsec/lostsec/pkg/httpclient"
	"github.com/lostsec/lostsec/pkg/task"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func newClient(t *testing.T) *http.Client {
	t.Helper()
	c, err := httpclient.New(httpclient.DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestExecute_CapturesResponse(t *testing.T) {
	var gotQuery, gotUA, gotCookie, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotUA = r.UserAgent()
		gotCookie = r.Header.Get("Cookie")
		gotHeader = r.Header.Get("X-Scan")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("root:x:0:0:root:/root:/bin/bash"))
	}))
	defer srv.Close()

	exec := NewExecutor(newClient(t), Config{
		Headers:    map[string]string{"X-Scan": "1"},
		Cookie:     "session=abc",
		UserAgents: []string{"test-agent"},
	})
	out := exec.Execute(context.Background(), task.ProbeTask{
		Target:  srv.URL + "/?q=1",
		Payload: "root:x:0:",
		Point:   task.InjectionPoint{Kind: task.KindQuery, Key: "q"},
	})

	require.NoError(t, out.Err)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Contains(t, out.Body, "root:x:0:")
	assert.Equal(t, "q=root%3Ax%3A0%3A", gotQuery)
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "session=abc", gotCookie)
	assert.Equal(t, "1", gotHeader)
}

func TestExecute_RedirectNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.google.com/", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	out := NewExecutor(newClient(t), Config{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, out.Err)
	assert.Equal(t, http.StatusMovedPermanently, out.StatusCode)
	assert.Equal(t, "https://www.google.com/", out.Location)
}

func TestExecute_BodyBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	defer srv.Close()

	out := NewExecutor(newClient(t), Config{MaxBody: 100}).Fetch(context.Background(), srv.URL)
	require.NoError(t, out.Err)
	assert.Len(t, out.Body, 100)
}

func TestExecute_TransportErrorIsOutcome(t *testing.T) {
	exec := NewExecutor(doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp 10.0.0.1:80: connect: connection refused")
	}), Config{})

	out := exec.Fetch(context.Background(), "http://10.0.0.1/")
	require.True(t, out.Failed())
	assert.ErrorIs(t, out.Err, httpclient.ErrTransport)
	assert.ErrorIs(t, out.Err, httpclient.ErrRefused)
}

func TestExecute_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	out := NewExecutor(newClient(t), Config{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	require.True(t, out.Failed())
	assert.ErrorIs(t, out.Err, httpclient.ErrTimeout)
}

func TestExecute_BuildError(t *testing.T) {
	exec := NewExecutor(newClient(t), Config{})
	out := exec.Execute(context.Background(), task.ProbeTask{Target: "http://x/"})
	assert.ErrorIs(t, out.Err, ErrBuild)
}

func TestExecute_UndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=no-such-charset")
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	out := NewExecutor(newClient(t), Config{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, out.Err)
	assert.Error(t, out.DecodeErr)
	assert.Empty(t, out.Body)
}

func TestExecute_ConcurrentSafe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Query().Get("q")))
	}))
	defer srv.Close()

	exec := NewExecutor(newClient(t), Config{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := exec.Execute(context.Background(), task.ProbeTask{
				Target: srv.URL + "/?q=1", Payload: "marker",
				Point: task.InjectionPoint{Kind: task.KindQuery, Key: "q"},
			})
			assert.Equal(t, "marker", out.Body)
		}()
	}
	wg.Wait()
}
