package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/structured"
)

const systemPrompt = `You are a source analyst for a fact-checking service. Your task is to score one retrieved source against one sub-claim.

## Rules:
1. relevance (0.0-1.0): how directly the source addresses the sub-claim.
2. credibility (0.0-1.0): how trustworthy the source is.
   - High (0.8-1.0): official statistics offices, government sites, peer-reviewed studies, established fact-check organizations
   - Medium (0.4-0.7): established news media, Wikipedia, trade publications
   - Low (0.0-0.3): blogs, social media, opinion portals, unknown websites
3. stance: does the source support, contradict, or stay neutral on the sub-claim?
4. rationale: justify your scores in 1-2 sentences.

Respond ONLY with a JSON object of this shape:
{"relevance": 0.0, "credibility": 0.0, "stance": "supports|contradicts|neutral", "rationale": "..."}`

const userTemplate = `Score the following source against the sub-claim.

## Sub-claim:
%q

## Source:
- URL: %s
- Title: %s
- Authority tier (domain heuristic, advisory): %s
- Content:
%s`

// Evaluator is the Evaluate stage: it scores each (SubClaim, Evidence)
// pair through the structured validator and aggregates the scores into a
// SubVerdict with a deterministic, reproducible rule.
type Evaluator struct {
	validator *structured.Validator
	agg       Aggregator
}

// New creates an Evaluator.
func New(v *structured.Validator, cfg model.EvaluateConfig) *Evaluator {
	return &Evaluator{validator: v, agg: NewAggregator(cfg)}
}

// Evaluate scores all evidence for one SubClaim and derives its
// SubVerdict. A single evaluation failure (after validator retries)
// excludes that evidence item from the aggregate instead of failing the
// SubClaim. Zero evidence yields unverifiable with confidence 0.
func (e *Evaluator) Evaluate(ctx context.Context, sub model.SubClaim, evidence []model.Evidence) ([]model.SourceEvaluation, model.SubVerdict) {
	evals := make([]model.SourceEvaluation, 0, len(evidence))

	for _, ev := range evidence {
		if ctx.Err() != nil {
			break
		}

		content := ev.Snippet
		if ev.Text != "" {
			content = ev.Text
		}

		var eval model.SourceEvaluation
		prompt := fmt.Sprintf(userTemplate, sub.Text, ev.URL, ev.Title, ev.Authority, content)
		_, err := e.validator.Call(ctx, systemPrompt, prompt, &eval)
		if err != nil {
			slog.Warn("source evaluation excluded", "sub_claim", sub.Index, "url", ev.URL, "error", err)
			continue
		}

		eval.Fingerprint = ev.Fingerprint
		evals = append(evals, eval)
	}

	verdict := e.agg.Aggregate(sub, evals)
	return evals, verdict
}

// summarizeRationales picks the rationale of the strongest evaluation
// for the SubVerdict, keeping it short.
func summarizeRationales(evals []model.SourceEvaluation) string {
	if len(evals) == 0 {
		return ""
	}
	best := evals[0]
	for _, e := range evals[1:] {
		if e.Weight() > best.Weight() {
			best = e
		}
	}
	return strings.TrimSpace(best.Rationale)
}
