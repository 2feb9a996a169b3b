package retrieve

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/search"
)

// sleepFunc is the sleep used between retry attempts (injectable for tests)
var sleepFunc = sleepCtx

// Retriever is the Retrieve stage: it runs a SubClaim's search queries,
// deduplicates results by content fingerprint, ranks them, and caps the
// evidence list to bound downstream evaluation cost.
type Retriever struct {
	provider  search.Provider
	authority *AuthorityClassifier
	fetcher   *PageFetcher // nil when page enrichment is disabled

	maxEvidence int
	retries     int
	backoffBase time.Duration
}

// New creates a Retriever. fetcher may be nil to skip page enrichment.
func New(provider search.Provider, fetcher *PageFetcher, searchCfg model.SearchConfig, retrieveCfg model.RetrieveConfig) *Retriever {
	maxEvidence := retrieveCfg.MaxEvidencePerSubClaim
	if maxEvidence <= 0 {
		maxEvidence = 8
	}
	retries := searchCfg.Retries
	if retries <= 0 {
		retries = 3
	}
	backoff := searchCfg.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Retriever{
		provider:    provider,
		authority:   NewAuthorityClassifier(),
		fetcher:     fetcher,
		maxEvidence: maxEvidence,
		retries:     retries,
		backoffBase: backoff,
	}
}

// Retrieve collects evidence for one SubClaim. Empty results are not an
// error: the evaluator reports unverifiable for evidence-less SubClaims.
// A RetrievalError is returned only when every query exhausted its
// retries; it is scoped to this SubClaim and must not abort siblings.
func (r *Retriever) Retrieve(ctx context.Context, sub model.SubClaim) ([]model.Evidence, error) {
	var collected []model.Evidence
	seen := make(map[string]bool) // fingerprint -> first-seen (dedup scoped per SubClaim)
	var lastErr error
	failures := 0

	for _, query := range sub.SearchQueries {
		results, err := r.searchWithRetry(ctx, query)
		if err != nil {
			slog.Warn("search failed", "sub_claim", sub.Index, "query", query, "error", err)
			failures++
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		for _, res := range results {
			fp := model.Fingerprint(res.URL, res.Content)
			if seen[fp] {
				continue // first-seen wins
			}
			seen[fp] = true
			collected = append(collected, model.Evidence{
				URL:         res.URL,
				Title:       res.Title,
				Snippet:     res.Content,
				SearchScore: res.Score,
				Query:       query,
				Fingerprint: fp,
				Authority:   r.authority.Classify(res.URL),
			})
		}
	}

	if failures == len(sub.SearchQueries) && failures > 0 {
		return nil, &model.RetrievalError{SubClaimIndex: sub.Index, Query: sub.SearchQueries[0], Err: lastErr}
	}

	// Rank by provider score, stable so equal scores keep first-seen order
	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].SearchScore > collected[j].SearchScore
	})

	if len(collected) > r.maxEvidence {
		collected = collected[:r.maxEvidence]
	}
	for i := range collected {
		collected[i].Rank = i
	}

	if r.fetcher != nil {
		r.fetcher.Enrich(ctx, collected)
	}

	return collected, nil
}

// searchWithRetry retries transient search failures with exponential
// backoff: base delay, doubling per attempt.
func (r *Retriever) searchWithRetry(ctx context.Context, query string) ([]search.Result, error) {
	delay := r.backoffBase
	var lastErr error

	for attempt := 1; attempt <= r.retries; attempt++ {
		results, err := r.provider.Search(ctx, query)
		if err == nil {
			return results, nil
		}
		lastErr = err

		if !search.Transient(err) || attempt == r.retries {
			break
		}
		if err := sleepFunc(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}

	return nil, lastErr
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
