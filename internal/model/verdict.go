package model

import "time"

// VerdictCategory is the categorical judgment for a claim or sub-claim.
type VerdictCategory string

const (
	VerdictTrue          VerdictCategory = "true"
	VerdictFalse         VerdictCategory = "false"
	VerdictPartiallyTrue VerdictCategory = "partially_true"
	VerdictMisleading    VerdictCategory = "misleading"
	VerdictUnverifiable  VerdictCategory = "unverifiable"
)

// Valid reports whether c is one of the known categories.
func (c VerdictCategory) Valid() bool {
	switch c {
	case VerdictTrue, VerdictFalse, VerdictPartiallyTrue, VerdictMisleading, VerdictUnverifiable:
		return true
	}
	return false
}

// SubVerdict is the judgment for a single SubClaim, derived
// deterministically from its SourceEvaluations. It is mutated at most
// once, if a human override is merged in.
type SubVerdict struct {
	SubClaimIndex int             `json:"sub_claim_index"`
	Claim         string          `json:"claim"`
	Category      VerdictCategory `json:"category"`
	Confidence    float64         `json:"confidence"`             // [0,1]
	StanceScore   float64         `json:"stance_score"`           // Signed weighted stance score, normalized
	EvidenceCount int             `json:"evidence_count"`         // Evidence items that entered the aggregate
	Rationale     string          `json:"rationale,omitempty"`    // Aggregated from the strongest evaluations
	HumanAdjusted bool            `json:"human_adjusted"`         // True once a review override was merged
	HumanComment  string          `json:"human_comment,omitempty"`
}

// ReviewOverride is a human correction for one SubClaim: a replacement
// category, a confidence assertion, or both.
type ReviewOverride struct {
	SubClaimIndex int              `json:"sub_claim_index"`
	Category      *VerdictCategory `json:"category,omitempty"`
	Confidence    *float64         `json:"confidence,omitempty"`
	Comment       string           `json:"comment,omitempty"`
}

// Citation references one evidence item from the final verdict.
type Citation struct {
	Fingerprint string `json:"fingerprint"`
	URL         string `json:"url"`
	Title       string `json:"title"`
}

// Verdict is the final aggregate for a whole Claim. Created once by the
// Synthesize stage; terminal and immutable.
type Verdict struct {
	Category    VerdictCategory `json:"category"`
	Confidence  float64         `json:"confidence"` // [0,1]
	Summary     string          `json:"summary"`
	Citations   []Citation      `json:"citations"`
	SubVerdicts []SubVerdict    `json:"sub_verdicts"`
	ClaimType   ClaimType       `json:"claim_type,omitempty"`
	Language    string          `json:"language,omitempty"`
	FromHistory bool            `json:"from_history"` // True when served from the historical store
	CheckedAt   time.Time       `json:"checked_at"`
}

// SummaryOutput is the structured output of the synthesis summary call.
// CitedFingerprints must reference fingerprints present in the run; any
// others are stripped before the verdict is returned.
type SummaryOutput struct {
	Summary           string   `json:"summary" validate:"required"`
	CitedFingerprints []string `json:"cited_fingerprints"`
}

// HistoricalRecord is a persisted (Claim, Verdict) pair used for
// dedup/caching of completed checks.
type HistoricalRecord struct {
	ID            int64     `json:"id"`
	Claim         string    `json:"claim"`
	Normalized    string    `json:"normalized"`
	Verdict       Verdict   `json:"verdict"`
	HumanReviewed bool      `json:"human_reviewed"`
	Rank          float64   `json:"rank,omitempty"` // BM25 rank from full-text lookup (more negative = better)
	CreatedAt     time.Time `json:"created_at"`
}
