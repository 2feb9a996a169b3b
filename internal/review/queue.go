package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// Queue collects human review input for in-flight runs. The pipeline
// opens a slot when it enters the review stage and waits until the
// reviewer finishes or the review window expires; overrides submitted
// after the window are rejected.
type Queue struct {
	mu   sync.Mutex
	runs map[string]*pending
}

type pending struct {
	overrides map[int]*model.ReviewOverride
	finished  chan struct{}
	closed    bool
}

// NewQueue creates an empty review queue.
func NewQueue() *Queue {
	return &Queue{runs: make(map[string]*pending)}
}

// Open registers a run as awaiting review.
func (q *Queue) Open(runID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runs[runID] = &pending{
		overrides: make(map[int]*model.ReviewOverride),
		finished:  make(chan struct{}),
	}
}

// Submit records one override for a run awaiting review. Later submits
// for the same SubClaim replace earlier ones.
func (q *Queue) Submit(runID string, override model.ReviewOverride) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.runs[runID]
	if !ok || p.closed {
		return fmt.Errorf("run %s is not awaiting review", runID)
	}

	o := override
	p.overrides[override.SubClaimIndex] = &o
	return nil
}

// Finish signals that the reviewer is done, unblocking the waiting run
// before its window expires.
func (q *Queue) Finish(runID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.runs[runID]
	if !ok {
		return fmt.Errorf("run %s is not awaiting review", runID)
	}
	if !p.closed {
		p.closed = true
		close(p.finished)
	}
	return nil
}

// Wait blocks until Finish is called, the review window expires, or the
// context is cancelled. It returns whatever overrides were collected and
// removes the run from the queue.
func (q *Queue) Wait(ctx context.Context, runID string, window time.Duration) map[int]*model.ReviewOverride {
	q.mu.Lock()
	p, ok := q.runs[runID]
	q.mu.Unlock()
	if !ok {
		return nil
	}

	timer := time.NewTimer(window)
	defer timer.Stop()

	select {
	case <-p.finished:
	case <-timer.C:
	case <-ctx.Done():
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	p.closed = true
	delete(q.runs, runID)
	return p.overrides
}

// Awaiting reports whether a run is currently accepting review input.
func (q *Queue) Awaiting(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.runs[runID]
	return ok && !p.closed
}
