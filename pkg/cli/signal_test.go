package cli

import (
	"bytes"
	"context"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled")
	}
}

func TestSignalContext_CancelOnInterrupt(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	out := &syncBuffer{}
	ctx, cancel := signalContextWithNotifier(context.Background(), 5*time.Second, out, sigChan, func(int) {})
	defer cancel()

	sigChan <- os.Interrupt
	waitDone(t, ctx)

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Contains(t, context.Cause(ctx).Error(), "interrupt")
	assert.Eventually(t, func() bool { return out.String() != "" }, time.Second, 10*time.Millisecond)
}

func TestSignalContext_ManualCancel(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	ctx, cancel := signalContextWithNotifier(context.Background(), 5*time.Second, nil, sigChan, nil)
	cancel()
	waitDone(t, ctx)
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
}

func TestSignalContext_ParentCancel(t *testing.T) {
	parent, stop := context.WithCancel(context.Background())
	ctx, cancel := signalContextWithNotifier(parent, time.Second, nil, make(chan os.Signal, 1), nil)
	defer cancel()

	stop()
	waitDone(t, ctx)
}

func TestSignalContext_SecondSignalExits(t *testing.T) {
	sigChan := make(chan os.Signal, 2)
	var exitCode atomic.Int32
	exitCode.Store(-1)

	ctx, cancel := signalContextWithNotifier(context.Background(), 5*time.Second, nil, sigChan,
		func(code int) { exitCode.Store(int32(code)) })
	defer cancel()

	sigChan <- os.Interrupt
	waitDone(t, ctx)
	sigChan <- syscall.SIGTERM

	require.Eventually(t, func() bool { return exitCode.Load() == 130 }, 2*time.Second, 10*time.Millisecond)
}

func TestSignalContext_GracePeriodExpires(t *testing.T) {
	sigChan := make(chan os.Signal, 2)
	var exited atomic.Bool

	ctx, cancel := signalContextWithNotifier(context.Background(), 50*time.Millisecond, nil, sigChan,
		func(int) { exited.Store(true) })
	defer cancel()

	sigChan <- os.Interrupt
	waitDone(t, ctx)

	time.Sleep(150 * time.Millisecond)
	sigChan <- os.Interrupt
	time.Sleep(50 * time.Millisecond)
	assert.False(t, exited.Load())
}
