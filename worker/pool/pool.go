package pool

import (
	"context"
	"sync"
)

// WorkerPool runs submitted tasks with at most maxWorkers in flight.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		sem: make(chan struct{}, maxWorkers),
	}
}

// Submit schedules task. If ctx is cancelled before a slot frees up the task
// is skipped and onSkip, when non-nil, is called instead.
func (p *WorkerPool) Submit(ctx context.Context, task func(context.Context), onSkip func(error)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			task(ctx)
		case <-ctx.Done():
			if onSkip != nil {
				onSkip(ctx.Err())
			}
		}
	}()
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
