package server

import (
	"context"
	"sync"
)

// job is a unit of work for the pool. abandon releases its resources when
// the pool shuts down before the job runs.
type job struct {
	run     func(ctx context.Context)
	abandon func()
}

// workerPool runs jobs on a fixed number of goroutines with a bounded
// queue. Submit never blocks.
type workerPool struct {
	jobs    chan job
	size    int
	wg      sync.WaitGroup
	started bool
}

func newWorkerPool(size, queue int) *workerPool {
	if size < 1 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}
	return &workerPool{
		jobs: make(chan job, queue),
		size: size,
	}
}

// Start launches the workers. They exit when ctx is done.
func (p *workerPool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-p.jobs:
					if ctx.Err() != nil {
						j.abandon()
						return
					}
					j.run(ctx)
				}
			}
		}()
	}
}

// Submit queues j and reports false when the queue is full.
func (p *workerPool) Submit(j job) bool {
	select {
	case p.jobs <- j:
		return true
	default:
		return false
	}
}

// Wait blocks until all workers have exited, then abandons whatever is
// still queued.
func (p *workerPool) Wait() {
	p.wg.Wait()
	for {
		select {
		case j := <-p.jobs:
			j.abandon()
		default:
			return
		}
	}
}
