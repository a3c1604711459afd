// Package workerpool provides a bounded goroutine pool. The scanner uses one
// pool per phase so that at most the configured number of probes or confirmations run at once.
package workerpool

import (
	"sync"
	"sync/atomic"
)

// Pool runs submitted tasks on a bounded number of goroutines.
type Pool struct {
	workers int32
	running atomic.Int32
	panics  atomic.Int64

	// mu guards closed and the send side of tasks.
	mu     sync.RWMutex
	closed bool
	tasks  chan func()

	wg sync.WaitGroup
}

// New creates a pool with the given number of workers. Workers are started
// lazily as tasks arrive. Non-positive sizes are clamped to 1.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		workers: int32(workers),
		tasks:   make(chan func(), workers*16),
	}
}

// Submit queues a task. It blocks while the queue is full and returns false
// if the pool is closed.
func (p *Pool) Submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	for {
		running := p.running.Load()
		if running >= p.workers {
			break
		}
		if p.running.CompareAndSwap(running, running+1) {
			p.wg.Add(1)
			go p.worker()
			break
		}
	}

	p.tasks <- task
	return true
}

// worker drains the queue until Close. A panicking task is counted and the
// worker keeps going.
func (p *Pool) worker() {
	defer func() {
		p.running.Add(-1)
		p.wg.Done()
	}()

	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
		}
	}()
	if task != nil {
		task()
	}
}

// Running returns the current number of running workers.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Panics returns how many tasks panicked.
func (p *Pool) Panics() int64 {
	return p.panics.Load()
}

// Close stops accepting tasks, runs everything already queued and waits for
// the workers to exit. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
