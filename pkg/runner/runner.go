// Package runner dispatches a lazy sequence of work items in bounded
// batches. Each batch is handed to a worker pool and awaited in full before
// the next batch is pulled, so memory stays proportional to the batch size.
package runner

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/workerpool"
)

// Stats tracks execution statistics
type Stats struct {
	Batches    int64
	Dispatched int64
	Completed  int64
	Skipped    int64
	StartTime  time.Time
}

// RPS returns the current completion rate per second
func (s *Stats) RPS() float64 {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&s.Completed)) / elapsed
}

// BatchInfo describes a finished batch.
type BatchInfo struct {
	Index     int64
	Size      int
	Completed int64
	Skipped   int64

	// Panicked counts items whose TaskFunc panicked.
	Panicked int64
	Duration time.Duration
}

// Runner executes items with at most Concurrency running at once.
type Runner[T any] struct {
	// Concurrency is the number of parallel workers (default 50)
	Concurrency int

	// BatchSize is how many items are pulled per batch
	// (default Concurrency * BatchMultiplier)
	BatchSize int

	// Stats tracks execution statistics
	Stats Stats

	// OnBatch is called after each batch has been fully awaited
	OnBatch func(BatchInfo)
}

// NewRunner creates a runner with the given concurrency and the default
// batch multiplier.
func NewRunner[T any](concurrency int) *Runner[T] {
	if concurrency <= 0 {
		concurrency = defaults.ConcurrencyProbe
	}
	return &Runner[T]{
		Concurrency: concurrency,
		BatchSize:   concurrency * defaults.BatchMultiplier,
	}
}

// TaskFunc processes one item. It is only called for items that started
// before cancellation.
type TaskFunc[T any] func(item T)

// Run pulls items from seq batch by batch until seq is exhausted or ctx is
// done. Cancellation is observed between batches and before each item
// starts: items already running finish, queued items are skipped. Run
// returns ctx.Err() if it stopped early.
func (r *Runner[T]) Run(ctx context.Context, seq iter.Seq[T], fn TaskFunc[T]) error {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = defaults.ConcurrencyProbe
	}
	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = concurrency * defaults.BatchMultiplier
	}

	r.Stats = Stats{StartTime: time.Now()}

	pool := workerpool.New(concurrency)
	defer pool.Close()

	next, stop := iter.Pull(seq)
	defer stop()

	batch := make([]T, 0, batchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch = batch[:0]
		for len(batch) < batchSize {
			item, ok := next()
			if !ok {
				break
			}
			batch = append(batch, item)
		}
		if len(batch) == 0 {
			return nil
		}

		info := r.runBatch(ctx, pool, batch, fn)
		if r.OnBatch != nil {
			r.OnBatch(info)
		}
		if len(batch) < batchSize {
			return ctx.Err()
		}
	}
}

func (r *Runner[T]) runBatch(ctx context.Context, pool *workerpool.Pool, batch []T, fn TaskFunc[T]) BatchInfo {
	start := time.Now()
	idx := atomic.AddInt64(&r.Stats.Batches, 1)
	panics := pool.Panics()

	var completed, skipped atomic.Int64
	var wg sync.WaitGroup
	for _, item := range batch {
		wg.Add(1)
		atomic.AddInt64(&r.Stats.Dispatched, 1)
		submitted := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				skipped.Add(1)
				return
			}
			fn(item)
			completed.Add(1)
		})
		if !submitted {
			wg.Done()
			skipped.Add(1)
		}
	}
	wg.Wait()

	atomic.AddInt64(&r.Stats.Completed, completed.Load())
	atomic.AddInt64(&r.Stats.Skipped, skipped.Load())
	return BatchInfo{
		Index:     idx,
		Size:      len(batch),
		Completed: completed.Load(),
		Skipped:   skipped.Load(),
		Panicked:  pool.Panics() - panics,
		Duration:  time.Since(start),
	}
}
