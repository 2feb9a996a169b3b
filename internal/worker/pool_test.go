package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// slowChecker simulates pipeline work and optionally fails.
type slowChecker struct {
	duration  time.Duration
	shouldErr bool
	calls     int32
	start     func()
	end       func()
}

func (c *slowChecker) Check(ctx context.Context, claimText, identity string) (*model.Verdict, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.start != nil {
		c.start()
	}
	if c.duration > 0 {
		select {
		case <-time.After(c.duration):
		case <-ctx.Done():
			if c.end != nil {
				c.end()
			}
			return nil, ctx.Err()
		}
	}
	if c.end != nil {
		c.end()
	}
	if c.shouldErr {
		return nil, errors.New("check error")
	}
	return &model.Verdict{Category: model.VerdictTrue, Summary: "checked: " + claimText}, nil
}

func job(claim string, c Checker) *CheckJob {
	return &CheckJob{Claim: claim, Identity: "pool-test", Checker: c}
}

func TestNewPool(t *testing.T) {
	if p := NewPool(context.Background(), 5); p.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p.workers)
	}
	if p := NewPool(context.Background(), 0); p.workers != 1 {
		t.Errorf("expected 1 worker for 0, got %d", p.workers)
	}
	if p := NewPool(context.Background(), -1); p.workers != 1 {
		t.Errorf("expected 1 worker for negative input, got %d", p.workers)
	}
}

func TestPool_Execution(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	checker := &slowChecker{}
	count := 10
	for i := 0; i < count; i++ {
		pool.Submit(job("The Moon orbits the Earth", checker))
	}

	results := pool.Wait()

	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}
	if got := atomic.LoadInt32(&checker.calls); got != int32(count) {
		t.Errorf("expected %d checks, got %d", count, got)
	}
	for _, res := range results {
		if res.Error != nil {
			t.Errorf("unexpected error: %v", res.Error)
		}
		if res.Verdict == nil {
			t.Error("expected verdict")
		}
	}
}

func TestPool_Concurrency(t *testing.T) {
	workers := 10
	pool := NewPool(context.Background(), workers)
	pool.Start()

	var current, maxConcurrent, completed int32
	var mu sync.Mutex

	checker := &slowChecker{
		duration: 10 * time.Millisecond,
		start: func() {
			curr := atomic.AddInt32(&current, 1)
			mu.Lock()
			if curr > maxConcurrent {
				maxConcurrent = curr
			}
			mu.Unlock()
		},
		end: func() {
			atomic.AddInt32(&current, -1)
			atomic.AddInt32(&completed, 1)
		},
	}

	totalJobs := 50
	for i := 0; i < totalJobs; i++ {
		pool.Submit(job("Water boils at 100 degrees Celsius", checker))
	}

	pool.Wait()

	if atomic.LoadInt32(&completed) != int32(totalJobs) {
		t.Errorf("expected %d completed checks, got %d", totalJobs, completed)
	}

	mu.Lock()
	max := maxConcurrent
	mu.Unlock()

	if max > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", max, workers)
	}
	if max <= 1 {
		t.Logf("warning: max concurrency was %d, expected > 1", max)
	}
}

func TestPool_ErrorsSurfaceInResults(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	pool.Submit(job("The Earth is flat", &slowChecker{shouldErr: true}))
	pool.Submit(job("The Moon orbits the Earth", &slowChecker{}))

	results := pool.Wait()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	failed := 0
	for _, res := range results {
		if res.Error != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failed check, got %d", failed)
	}
}

func TestPool_CallerContextCancels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	pool := NewPool(ctx, 2)
	pool.Start()

	for i := 0; i < 4; i++ {
		pool.Submit(job("claim that would block forever", &slowChecker{duration: time.Hour}))
	}

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after caller context expired")
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()
	pool.Shutdown()

	done := make(chan struct{})
	go func() {
		pool.Submit(job("dropped", &slowChecker{}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
}

func TestPool_Shutdown(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	started := make(chan struct{})
	pool.Submit(job("slow claim under check", &slowChecker{
		duration: 200 * time.Millisecond,
		start:    func() { close(started) },
	}))

	<-started
	pool.Shutdown()

	done := make(chan struct{})
	go func() {
		for range pool.results {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Shutdown timed out")
	}
}
