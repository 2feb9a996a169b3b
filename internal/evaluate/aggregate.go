package evaluate

import (
	"math"

	"github.com/ppiankov/veracity/internal/model"
)

// Aggregator maps a SubClaim's source evaluations to a SubVerdict using
// a fixed, reproducible rule. No model call is involved: re-running with
// identical evaluations always produces the same verdict.
//
// Rule: weighted stance score
//
//	s = Σ(relevance_i × credibility_i × sign(stance_i)) / Σ(relevance_i × credibility_i)
//
// mapped to a category by configurable thresholds:
//
//	s >= TrueThreshold            -> true
//	s <= FalseThreshold           -> false
//	|s| < NeutralBand             -> unverifiable (signal too weak)
//	NeutralBand <= s < TrueThr.   -> partially_true
//	FalseThr. < s <= -NeutralBand -> misleading
//
// Confidence is the normalized magnitude |s|, clamped to [0,1].
type Aggregator struct {
	cfg model.EvaluateConfig
}

// NewAggregator creates an Aggregator, falling back to default
// thresholds for zero-valued config fields.
func NewAggregator(cfg model.EvaluateConfig) Aggregator {
	if cfg.TrueThreshold == 0 {
		cfg.TrueThreshold = 0.5
	}
	if cfg.FalseThreshold == 0 {
		cfg.FalseThreshold = -0.5
	}
	if cfg.NeutralBand == 0 {
		cfg.NeutralBand = 0.15
	}
	return Aggregator{cfg: cfg}
}

// Aggregate derives the SubVerdict for one SubClaim.
func (a Aggregator) Aggregate(sub model.SubClaim, evals []model.SourceEvaluation) model.SubVerdict {
	verdict := model.SubVerdict{
		SubClaimIndex: sub.Index,
		Claim:         sub.Text,
		EvidenceCount: len(evals),
	}

	if len(evals) == 0 {
		verdict.Category = model.VerdictUnverifiable
		verdict.Confidence = 0
		verdict.Rationale = "No evidence available for this sub-claim."
		return verdict
	}

	var signed, total float64
	for _, e := range evals {
		w := e.Weight()
		signed += w * e.Stance.Sign()
		total += w
	}

	if total == 0 {
		// Evidence exists but carries no usable weight
		verdict.Category = model.VerdictUnverifiable
		verdict.Confidence = 0
		verdict.Rationale = "Retrieved sources were not relevant or credible enough to judge this sub-claim."
		return verdict
	}

	score := signed / total
	verdict.StanceScore = score
	verdict.Confidence = math.Min(math.Abs(score), 1)
	verdict.Rationale = summarizeRationales(evals)

	switch {
	case score >= a.cfg.TrueThreshold:
		verdict.Category = model.VerdictTrue
	case score <= a.cfg.FalseThreshold:
		verdict.Category = model.VerdictFalse
	case math.Abs(score) < a.cfg.NeutralBand:
		verdict.Category = model.VerdictUnverifiable
	case score > 0:
		verdict.Category = model.VerdictPartiallyTrue
	default:
		verdict.Category = model.VerdictMisleading
	}

	return verdict
}
