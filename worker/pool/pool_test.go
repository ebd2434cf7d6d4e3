package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	p := NewWorkerPool(3)

	var inFlight, peak, done atomic.Int32
	for i := 0; i < 20; i++ {
		p.Submit(context.Background(), func(ctx context.Context) {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			done.Add(1)
		}, nil)
	}
	p.Wait()

	if done.Load() != 20 {
		t.Errorf("Expected 20 tasks to run, got %d", done.Load())
	}
	if peak.Load() > 3 {
		t.Errorf("Expected at most 3 tasks in flight, saw %d", peak.Load())
	}
}

func TestWorkerPool_SkipsWhenContextCancelled(t *testing.T) {
	p := NewWorkerPool(1)

	started := make(chan struct{})
	release := make(chan struct{})
	p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}, nil)
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran, skipped atomic.Bool
	p.Submit(ctx, func(ctx context.Context) { ran.Store(true) }, func(err error) { skipped.Store(true) })

	cancel()
	time.Sleep(10 * time.Millisecond)
	close(release)
	p.Wait()

	if ran.Load() {
		t.Error("Expected cancelled task not to run")
	}
	if !skipped.Load() {
		t.Error("Expected onSkip to be called")
	}
}

func TestNewWorkerPool_MinimumOneWorker(t *testing.T) {
	p := NewWorkerPool(0)
	if cap(p.sem) != 1 {
		t.Errorf("Expected capacity 1, got %d", cap(p.sem))
	}
}
