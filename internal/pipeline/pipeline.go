// Package pipeline orchestrates a fact check end to end: admission,
// history lookup, decomposition, evidence retrieval, evaluation,
// optional human review, and synthesis, with progress events streamed
// to the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/decompose"
	"github.com/ppiankov/veracity/internal/evaluate"
	"github.com/ppiankov/veracity/internal/history"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/ratelimit"
	"github.com/ppiankov/veracity/internal/retrieve"
	"github.com/ppiankov/veracity/internal/review"
	"github.com/ppiankov/veracity/internal/search"
	"github.com/ppiankov/veracity/internal/structured"
	"github.com/ppiankov/veracity/internal/synthesize"
)

// completedRunRetention is how long a finished run stays addressable
// for state and graph queries.
const completedRunRetention = time.Hour

// Checker owns all pipeline stages and runs fact checks.
type Checker struct {
	cfg *model.Config
	log *slog.Logger

	decomposer  *decompose.Decomposer
	retriever   *retrieve.Retriever
	evaluator   *evaluate.Evaluator
	merger      review.Merger
	reviews     *review.Queue
	synthesizer *synthesize.Synthesizer
	admitter    *ratelimit.Admitter
	store       *history.Store

	mu   sync.RWMutex
	runs map[string]*model.PipelineRun

	// stateMu guards run field writes so state snapshots taken from
	// other goroutines never observe a partial write.
	stateMu sync.RWMutex
}

// New wires a Checker from config. The history store is optional: an
// empty path disables persistence and short-circuiting.
func New(cfg *model.Config, log *slog.Logger) (*Checker, error) {
	if log == nil {
		log = slog.Default()
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	validator := structured.New(provider, cfg.LLM.MaxAttempts)

	searcher, err := search.NewProvider(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("init search provider: %w", err)
	}
	var sp search.Provider = searcher
	if cfg.Cache.Enabled {
		layered := cache.NewLayeredCache(cfg.Cache.TTL, cfg.Cache.Dir, cfg.Cache.TTL)
		sp = search.NewCachedProvider(sp, layered, cfg.Cache.TTL)
	}

	var fetcher *retrieve.PageFetcher
	if cfg.Retrieve.FetchPages {
		fetcher = retrieve.NewPageFetcher(cfg.HTTP)
	}

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
	}

	return &Checker{
		cfg:         cfg,
		log:         log,
		decomposer:  decompose.New(validator),
		retriever:   retrieve.New(sp, fetcher, cfg.Search, cfg.Retrieve),
		evaluator:   evaluate.New(validator, cfg.Evaluate),
		merger:      review.NewMerger(cfg.Review.HumanWeight),
		reviews:     review.NewQueue(),
		synthesizer: synthesize.New(validator, cfg.Evaluate.ForceFalseConfidence),
		admitter:    ratelimit.New(cfg.RateLimit),
		store:       store,
		runs:        make(map[string]*model.PipelineRun),
	}, nil
}

// Close releases the history store.
func (c *Checker) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// Reviews exposes the review queue for override submission.
func (c *Checker) Reviews() *review.Queue { return c.reviews }

// History exposes the historical store, nil when persistence is off.
func (c *Checker) History() *history.Store { return c.store }

// Run returns a point-in-time snapshot of a known run's state. The
// orchestrator goroutine keeps mutating the live run, so callers only
// ever get a copy.
func (c *Checker) Run(id string) (*model.PipelineRun, bool) {
	c.mu.RLock()
	run, ok := c.runs[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return run.Snapshot(), true
}

// setState applies a run mutation under the state lock.
func (c *Checker) setState(fn func()) {
	c.stateMu.Lock()
	fn()
	c.stateMu.Unlock()
}

// PruneIdentities drops rate limiters that have refilled to a full
// burst, bounding per-identity state on long-running servers.
func (c *Checker) PruneIdentities() int {
	return c.admitter.Prune()
}

// Submit validates and admits a claim, then starts its check in the
// background. The returned channel is an ordered, finite event stream
// ending with exactly one done or failed event, after which it closes.
func (c *Checker) Submit(ctx context.Context, claimText, identity string) (string, <-chan model.ProgressEvent, error) {
	if err := c.admitter.ValidateClaim(claimText); err != nil {
		return "", nil, err
	}
	if err := c.admitter.Admit(identity); err != nil {
		return "", nil, err
	}

	claim := model.NewClaim(claimText)
	run := &model.PipelineRun{
		ID:       claim.ID,
		Identity: identity,
		Claim:    claim,
		Stage:    model.StageReceived,
	}

	c.mu.Lock()
	c.runs[run.ID] = run
	c.mu.Unlock()

	events := make(chan model.ProgressEvent, c.eventBuf())
	go c.run(ctx, run, events)
	return run.ID, events, nil
}

// Check runs a claim synchronously, draining progress events, and
// returns the final verdict.
func (c *Checker) Check(ctx context.Context, claimText, identity string) (*model.Verdict, error) {
	_, events, err := c.Submit(ctx, claimText, identity)
	if err != nil {
		return nil, err
	}
	var last model.ProgressEvent
	for ev := range events {
		last = ev
	}
	switch last.Kind {
	case model.EventDone:
		return last.Verdict, nil
	case model.EventFailed:
		return nil, fmt.Errorf("check failed at %s: %s", last.FailureStage, last.Error)
	default:
		return nil, errors.New("event stream ended without a terminal event")
	}
}

func (c *Checker) eventBuf() int {
	if c.cfg.Pipeline.EventBuf > 0 {
		return c.cfg.Pipeline.EventBuf
	}
	return 32
}

func (c *Checker) run(ctx context.Context, run *model.PipelineRun, events chan<- model.ProgressEvent) {
	defer close(events)
	defer c.scheduleEviction(run.ID)

	if c.cfg.Pipeline.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Pipeline.RunTimeout)
		defer cancel()
	}

	if c.serveFromHistory(ctx, run, events) {
		return
	}

	// Decompose
	if !c.transition(ctx, run, model.StageDecomposing, events) {
		return
	}
	decomp, attempts, err := c.decomposer.Decompose(ctx, run.Claim)
	if err != nil {
		c.fail(ctx, run, events, err)
		return
	}
	c.setState(func() { run.Decomposition = decomp })
	c.log.Info("claim decomposed",
		"run", run.ID, "sub_claims", len(decomp.SubClaims), "attempts", attempts, "type", decomp.ClaimType)
	for i := range decomp.SubClaims {
		sc := decomp.SubClaims[i]
		c.emit(ctx, events, model.ProgressEvent{
			Kind: model.EventSubClaimReady, RunID: run.ID, Stage: run.Stage, SubClaim: &sc,
		})
	}

	// Retrieve
	if !c.transition(ctx, run, model.StageRetrieving, events) {
		return
	}
	c.setState(func() { run.Evidence = make([][]model.Evidence, len(decomp.SubClaims)) })
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i := range decomp.SubClaims {
		sub := decomp.SubClaims[i]
		g.Go(func() error {
			evidence, err := c.retriever.Retrieve(gctx, sub)
			if err != nil {
				// Degraded, not fatal: the sub-claim proceeds with
				// whatever was found (possibly nothing).
				c.log.Warn("retrieval failed", "run", run.ID, "sub_claim", sub.Index, "error", err)
			}
			c.setState(func() { run.Evidence[sub.Index] = evidence })
			c.emit(gctx, events, model.ProgressEvent{
				Kind: model.EventEvidenceReady, RunID: run.ID, Stage: model.StageRetrieving,
				SubClaim: &sub, Evidence: evidence,
			})
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		c.fail(ctx, run, events, ctx.Err())
		return
	}

	// Evaluate
	if !c.transition(ctx, run, model.StageEvaluating, events) {
		return
	}
	c.setState(func() {
		run.Evaluations = make([][]model.SourceEvaluation, len(decomp.SubClaims))
		run.SubVerdicts = make([]model.SubVerdict, len(decomp.SubClaims))
	})
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i := range decomp.SubClaims {
		sub := decomp.SubClaims[i]
		g.Go(func() error {
			evals, sv := c.evaluator.Evaluate(gctx, sub, run.Evidence[sub.Index])
			c.setState(func() {
				run.Evaluations[sub.Index] = evals
				run.SubVerdicts[sub.Index] = sv
			})
			c.emit(gctx, events, model.ProgressEvent{
				Kind: model.EventSubVerdictReady, RunID: run.ID, Stage: model.StageEvaluating,
				SubVerdict: &sv,
			})
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		c.fail(ctx, run, events, ctx.Err())
		return
	}

	// Human review window
	humanReviewed := false
	if c.cfg.Review.Enabled {
		if !c.transition(ctx, run, model.StageAwaitingReview, events) {
			return
		}
		c.reviews.Open(run.ID)
		c.emit(ctx, events, model.ProgressEvent{
			Kind: model.EventReviewRequested, RunID: run.ID, Stage: run.Stage,
		})
		overrides := c.reviews.Wait(ctx, run.ID, c.cfg.Review.WaitTimeout)
		if ctx.Err() != nil {
			c.fail(ctx, run, events, ctx.Err())
			return
		}
		if len(overrides) > 0 {
			merged := c.merger.MergeAll(run.SubVerdicts, overrides)
			c.setState(func() { run.SubVerdicts = merged })
			humanReviewed = true
			c.log.Info("review overrides merged", "run", run.ID, "overrides", len(overrides))
		}
	}

	// Synthesize
	if !c.transition(ctx, run, model.StageSynthesizing, events) {
		return
	}
	verdict, err := c.synthesizer.Synthesize(ctx, run)
	if err != nil {
		c.fail(ctx, run, events, err)
		return
	}
	c.setState(func() { run.Verdict = verdict })

	if c.store != nil {
		if err := c.store.Save(ctx, run.Claim, verdict, humanReviewed); err != nil {
			c.log.Warn("history save failed", "run", run.ID, "error", err)
		}
	}

	c.setState(func() { run.Stage = model.StageDone })
	c.log.Info("check complete",
		"run", run.ID, "category", verdict.Category, "confidence", verdict.Confidence)
	c.emit(ctx, events, model.ProgressEvent{
		Kind: model.EventDone, RunID: run.ID, Stage: model.StageDone, Verdict: verdict,
	})
}

// serveFromHistory short-circuits the pipeline when the claim was
// checked before. Exact normalized matches always hit; full-text
// similar matches hit only when short-circuiting is enabled.
func (c *Checker) serveFromHistory(ctx context.Context, run *model.PipelineRun, events chan<- model.ProgressEvent) bool {
	if c.store == nil {
		return false
	}
	rec, err := c.store.FindExact(ctx, run.Claim.Normalized)
	if err != nil {
		c.log.Warn("history lookup failed", "run", run.ID, "error", err)
		return false
	}
	if rec == nil && c.cfg.History.ShortCircuit {
		similar, err := c.store.FindSimilar(ctx, run.Claim.Text)
		if err != nil {
			c.log.Warn("history lookup failed", "run", run.ID, "error", err)
			return false
		}
		if len(similar) > 0 {
			rec = similar[0]
		}
	}
	if rec == nil {
		return false
	}

	verdict := rec.Verdict
	verdict.FromHistory = true
	c.setState(func() {
		run.Verdict = &verdict
		run.Stage = model.StageDone
	})
	c.log.Info("served from history", "run", run.ID, "record", rec.ID, "category", verdict.Category)
	c.emit(ctx, events, model.ProgressEvent{
		Kind: model.EventDone, RunID: run.ID, Stage: model.StageDone, Verdict: &verdict,
	})
	return true
}

// transition advances the run stage, emitting a stage event. Returns
// false when the context is already dead, in which case the run fails.
func (c *Checker) transition(ctx context.Context, run *model.PipelineRun, to model.Stage, events chan<- model.ProgressEvent) bool {
	if ctx.Err() != nil {
		c.fail(ctx, run, events, ctx.Err())
		return false
	}
	if !run.Stage.CanTransition(to) {
		c.fail(ctx, run, events, fmt.Errorf("illegal transition %s -> %s", run.Stage, to))
		return false
	}
	c.log.Debug("stage transition", "run", run.ID, "from", run.Stage, "to", to)
	c.setState(func() { run.Stage = to })
	c.emit(ctx, events, model.ProgressEvent{Kind: model.EventStageStarted, RunID: run.ID, Stage: to})
	return true
}

func (c *Checker) fail(ctx context.Context, run *model.PipelineRun, events chan<- model.ProgressEvent, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = model.ErrRunTimeout
	case errors.Is(err, context.Canceled):
		err = model.ErrRunCancelled
	}
	c.setState(func() {
		run.LastStage = run.Stage
		run.Stage = model.StageFailed
		run.Err = err.Error()
	})
	c.log.Error("check failed", "run", run.ID, "stage", run.LastStage, "error", err)

	// The terminal event must go out even when the run context is
	// dead, so the send only gives up if the caller stopped draining.
	ev := model.ProgressEvent{
		Kind: model.EventFailed, RunID: run.ID,
		FailureStage: run.LastStage, Error: run.Err,
	}
	select {
	case events <- ev:
	case <-time.After(time.Second):
	}
}

func (c *Checker) emit(ctx context.Context, events chan<- model.ProgressEvent, ev model.ProgressEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func (c *Checker) workers() int {
	if c.cfg.Pipeline.Workers > 0 {
		return c.cfg.Pipeline.Workers
	}
	return 4
}

func (c *Checker) scheduleEviction(runID string) {
	time.AfterFunc(completedRunRetention, func() {
		c.mu.Lock()
		delete(c.runs, runID)
		c.mu.Unlock()
	})
}
