package utils

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs submitted jobs on a fixed set of goroutines.
type WorkerPool struct {
	jobs    chan func()
	wg      sync.WaitGroup
	workers int
	closed  atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWorkerPool creates and starts a pool with the given number of workers.
// A non-positive count defaults to GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		jobs:    make(chan func(), workers*2),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	pool.start()
	return pool
}

func (p *WorkerPool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-p.ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					job()
				}
			}
		}()
	}
}

// Submit queues a job. It returns false if the pool has been stopped.
func (p *WorkerPool) Submit(job func()) bool {
	if p.closed.Load() {
		return false
	}

	select {
	case p.jobs <- job:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// ForEach runs fn for every index in [0, n) on the pool and waits for all of
// them. Each invocation writes only to its own index, so results land in a
// fixed order regardless of scheduling; callers commit them sequentially.
func (p *WorkerPool) ForEach(n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		ok := p.Submit(func() {
			defer wg.Done()
			fn(i)
		})
		if !ok {
			// Pool stopped; run inline so the caller is never left waiting.
			fn(i)
			wg.Done()
		}
	}
	wg.Wait()
}

// Stop shuts the pool down and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	if p.closed.Swap(true) {
		return
	}

	p.cancel()
	close(p.jobs)
	p.wg.Wait()
}
