package runner

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func count(n int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := 0; i < n; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

func TestRunner_ProcessesEverything(t *testing.T) {
	for _, tc := range []struct{ conc, batch, n int }{
		{1, 1, 7}, {3, 5, 23}, {8, 80, 80}, {50, 500, 1}, {4, 10, 0},
	} {
		r := &Runner[int]{Concurrency: tc.conc, BatchSize: tc.batch}
		var mu sync.Mutex
		seen := make(map[int]bool)

		err := r.Run(context.Background(), count(tc.n), func(i int) {
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		})
		require.NoError(t, err)
		assert.Len(t, seen, tc.n)
		assert.Equal(t, int64(tc.n), r.Stats.Completed)
		assert.Zero(t, r.Stats.Skipped)
	}
}

func TestRunner_BatchBoundaries(t *testing.T) {
	r := &Runner[int]{Concurrency: 2, BatchSize: 4}

	var inFlight, maxInFlight int64
	var batches []BatchInfo
	r.OnBatch = func(b BatchInfo) {
		// all items of the batch are done before the callback
		assert.Zero(t, atomic.LoadInt64(&inFlight))
		batches = append(batches, b)
	}

	err := r.Run(context.Background(), count(10), func(int) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&maxInFlight)
			if n <= old || atomic.CompareAndSwapInt64(&maxInFlight, old, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
	})
	require.NoError(t, err)

	require.Len(t, batches, 3)
	assert.Equal(t, []int{4, 4, 2}, []int{batches[0].Size, batches[1].Size, batches[2].Size})
	assert.LessOrEqual(t, maxInFlight, int64(2))
}

func TestRunner_PullsLazily(t *testing.T) {
	var pulled int64
	seq := func(yield func(int) bool) {
		for i := 0; ; i++ {
			atomic.AddInt64(&pulled, 1)
			if !yield(i) {
				return
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner[int]{Concurrency: 2, BatchSize: 5}
	r.OnBatch = func(b BatchInfo) {
		if b.Index == 2 {
			cancel()
		}
	}

	err := r.Run(ctx, seq, func(int) {})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(10), atomic.LoadInt64(&pulled))
	assert.Equal(t, int64(10), r.Stats.Completed)
}

func TestRunner_CancelMidBatchSkipsUnstarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner[int]{Concurrency: 1, BatchSize: 10}

	var ran int64
	err := r.Run(ctx, count(100), func(i int) {
		atomic.AddInt64(&ran, 1)
		if i == 2 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(3), atomic.LoadInt64(&ran))
	assert.Equal(t, int64(3), r.Stats.Completed)
	assert.Equal(t, int64(7), r.Stats.Skipped)
	assert.Equal(t, int64(1), r.Stats.Batches)
}

func TestRunner_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner[int](4)
	err := r.Run(ctx, count(10), func(int) { t.Error("should not run") })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.Stats.Dispatched)
}

func TestRunner_PanickingItemIsCounted(t *testing.T) {
	r := &Runner[int]{Concurrency: 2, BatchSize: 4}
	var infos []BatchInfo
	r.OnBatch = func(info BatchInfo) { infos = append(infos, info) }

	err := r.Run(context.Background(), count(4), func(i int) {
		if i == 2 {
			panic("boom")
		}
	})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].Panicked)
	assert.Equal(t, int64(3), infos[0].Completed)
}

func TestNewRunner_Defaults(t *testing.T) {
	r := NewRunner[string](0)
	assert.Equal(t, 50, r.Concurrency)
	assert.Equal(t, 500, r.BatchSize)
}
