package browser_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lostsec/lostsec/pkg/browser"
	"github.com/lostsec/lostsec/pkg/browser/browsertest"
	"github.com/lostsec/lostsec/pkg/testutil"
)

func newPool(t *testing.T, size int, f *browsertest.Factory, opts ...browser.PoolOption) *browser.Pool {
	t.Helper()
	p, err := browser.NewPool(context.Background(), size, f.New, opts...)
	require.NoError(t, err)
	return p
}

func TestNewPool_ConstructsAllSessions(t *testing.T) {
	f := &browsertest.Factory{}
	p := newPool(t, 3, f)

	st := p.Stats()
	assert.Equal(t, 3, st.Size)
	assert.Equal(t, 3, st.Live)
	assert.Equal(t, 3, st.Free)
	assert.Len(t, f.Sessions(), 3)

	require.NoError(t, p.Close())
	assert.True(t, f.AllClosedOnce())
}

func TestNewPool_FailureTearsDownBuiltSessions(t *testing.T) {
	f := &browsertest.Factory{FailAt: 2}
	_, err := browser.NewPool(context.Background(), 3, f.New)

	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrResourceAcquisition)
	assert.ErrorIs(t, err, browsertest.ErrConstruct)
	assert.Len(t, f.Sessions(), 2)
	assert.True(t, f.AllClosedOnce())
}

func TestNewPool_InvalidSize(t *testing.T) {
	f := &browsertest.Factory{}
	_, err := browser.NewPool(context.Background(), 0, f.New)
	assert.ErrorIs(t, err, browser.ErrResourceAcquisition)
}

func TestPool_NoSessionLeasedTwice(t *testing.T) {
	f := &browsertest.Factory{Visit: func(ctx context.Context, url string, _ time.Duration) (browser.Observation, error) {
		time.Sleep(time.Millisecond)
		return browser.Observation{FinalURL: url}, nil
	}}
	p := newPool(t, 2, f)

	var maxLeased int32
	var current int32
	testutil.RunConcurrently(20, func(int) {
		for j := 0; j < 5; j++ {
			err := p.With(context.Background(), func(s browser.Session) error {
				n := atomic.AddInt32(&current, 1)
				defer atomic.AddInt32(&current, -1)
				for {
					old := atomic.LoadInt32(&maxLeased)
					if n <= old || atomic.CompareAndSwapInt32(&maxLeased, old, n) {
						break
					}
				}
				_, err := s.Visit(context.Background(), "http://x/", 0)
				return err
			})
			assert.NoError(t, err)
		}
	})

	assert.Zero(t, f.Overlaps())
	assert.LessOrEqual(t, maxLeased, int32(2))
	require.NoError(t, p.Close())
	assert.True(t, f.AllClosedOnce())
}

func TestPool_LeaseBlocksUntilRelease(t *testing.T) {
	p := newPool(t, 1, &browsertest.Factory{})
	defer p.Close()

	l, err := p.Lease(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Lease(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *browser.Lease, 1)
	go func() {
		l2, err := p.Lease(context.Background())
		if err == nil {
			got <- l2
		}
	}()

	l.Release()
	l.Release() // idempotent

	select {
	case l2 := <-got:
		assert.Equal(t, l.Session().ID(), l2.Session().ID())
		l2.Release()
	case <-time.After(time.Second):
		t.Fatal("lease not handed over after release")
	}
}

func TestPool_WithPoisonedDiscards(t *testing.T) {
	f := &browsertest.Factory{}
	p := newPool(t, 2, f)

	err := p.With(context.Background(), func(browser.Session) error {
		return errors.Join(browser.ErrSessionPoisoned, errors.New("crashed"))
	})
	assert.ErrorIs(t, err, browser.ErrSessionPoisoned)

	st := p.Stats()
	assert.Equal(t, 1, st.Live)
	assert.Equal(t, int64(1), st.Discarded)
	assert.Equal(t, 0, st.Leased)

	require.NoError(t, p.Close())
	assert.True(t, f.AllClosedOnce())
}

func TestPool_WithPanicDiscards(t *testing.T) {
	f := &browsertest.Factory{}
	p := newPool(t, 1, f)

	assert.Panics(t, func() {
		_ = p.With(context.Background(), func(browser.Session) error { panic("boom") })
	})
	assert.Equal(t, int64(1), p.Stats().Discarded)

	_, err := p.Lease(context.Background())
	assert.ErrorIs(t, err, browser.ErrPoolExhausted)
	require.NoError(t, p.Close())
}

func TestPool_ExhaustedWakesWaiters(t *testing.T) {
	p := newPool(t, 1, &browsertest.Factory{})
	defer p.Close()

	l, err := p.Lease(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := p.Lease(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	l.Discard(errors.New("bad"))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, browser.ErrPoolExhausted)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}
}

func TestPool_Replenish(t *testing.T) {
	f := &browsertest.Factory{}
	p := newPool(t, 2, f, browser.WithReplenish())

	l, err := p.Lease(context.Background())
	require.NoError(t, err)
	l.Discard(browser.ErrSessionPoisoned)

	st := p.Stats()
	assert.Equal(t, 2, st.Live)
	assert.Equal(t, 2, st.Free)
	assert.Equal(t, int64(1), st.Replaced)
	assert.Len(t, f.Sessions(), 3)

	require.NoError(t, p.Close())
	assert.True(t, f.AllClosedOnce())
}

func TestPool_ReplenishFailureShrinks(t *testing.T) {
	f := &browsertest.Factory{FailAt: 3}
	p := newPool(t, 2, f, browser.WithReplenish())

	l, err := p.Lease(context.Background())
	require.NoError(t, err)
	l.Discard(nil)

	assert.Equal(t, 1, p.Stats().Live)
	require.NoError(t, p.Close())
}

func TestPool_CloseWaitsForLeases(t *testing.T) {
	f := &browsertest.Factory{}
	p := newPool(t, 2, f)

	l, err := p.Lease(context.Background())
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a lease was outstanding")
	case <-time.After(30 * time.Millisecond):
	}

	_, err = p.Lease(context.Background())
	assert.ErrorIs(t, err, browser.ErrPoolClosed)

	l.Release()
	testutil.AssertTimeout(t, "Close after release", time.Second, func() { <-closed })

	assert.True(t, f.AllClosedOnce())
	assert.NoError(t, p.Close())
	assert.True(t, f.AllClosedOnce())
}

func TestPool_CloseWakesBlockedLease(t *testing.T) {
	p := newPool(t, 1, &browsertest.Factory{})
	l, err := p.Lease(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var leaseErr error
	go func() {
		defer wg.Done()
		_, leaseErr = p.Lease(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Release()
	}()
	require.NoError(t, p.Close())
	wg.Wait()
	assert.ErrorIs(t, leaseErr, browser.ErrPoolClosed)
}
