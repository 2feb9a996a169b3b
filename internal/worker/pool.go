package worker

import (
	"context"
	"sync"
)

// Pool runs claim checks concurrently with a fixed number of workers.
// Jobs submitted after Shutdown are dropped.
type Pool struct {
	workers   int
	jobs      chan *CheckJob
	results   chan *CheckResult
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPool creates a pool with the given number of workers (minimum 1).
// Jobs run on a context derived from ctx, so cancelling it stops the
// batch; a nil ctx means Background.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers: workers,
		jobs:    make(chan *CheckJob, workers*2),
		results: make(chan *CheckResult, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			res := job.Execute(p.ctx)
			select {
			case p.results <- res:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a claim check. Returns immediately if the pool has been
// shut down.
func (p *Pool) Submit(job *CheckJob) {
	select {
	case <-p.ctx.Done():
	case p.jobs <- job:
	}
}

// Wait closes the queue, waits for in-flight checks, and returns every
// result. Call at most once.
func (p *Pool) Wait() []*CheckResult {
	close(p.jobs)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []*CheckResult
	for res := range p.results {
		results = append(results, res)
	}
	return results
}

// Shutdown cancels in-flight checks and waits for workers to exit.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
