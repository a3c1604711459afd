package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Unlimited(t *testing.T) {
	assert.Nil(t, New(nil))
	assert.Nil(t, New(&Config{}))

	var l *Limiter
	assert.NoError(t, l.Wait(context.Background(), "http://a"))
	assert.Zero(t, l.Hosts())
}

func TestLimiter_Global(t *testing.T) {
	l := New(&Config{RequestsPerSecond: 20, Burst: 1})
	require.NotNil(t, l)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), "http://a.test/"))
	}
	// burst 1 at 20/s: two waits of ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_PerHost(t *testing.T) {
	l := New(&Config{RequestsPerSecond: 1, Burst: 1, PerHost: true})
	require.NotNil(t, l)

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "http://a.test/x"))
	require.NoError(t, l.Wait(ctx, "http://b.test/y"))
	require.NoError(t, l.Wait(ctx, "http://c.test/z"))

	// separate buckets: no waiting
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 3, l.Hosts())
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := New(&Config{RequestsPerSecond: 0.1, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Wait(ctx, ""))
	cancel()
	assert.Error(t, l.Wait(ctx, ""))
}
