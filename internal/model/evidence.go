package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// Evidence is one retrieved document/snippet supporting or contradicting
// a SubClaim. Owned by the SubClaim whose queries retrieved it; the same
// fingerprint may appear under multiple SubClaims.
type Evidence struct {
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Snippet     string        `json:"snippet"`                // Short excerpt from the search result
	Text        string        `json:"text,omitempty"`         // Fuller extracted page text, if fetched
	Rank        int           `json:"rank"`                   // Position after dedup and ranking (0-based)
	SearchScore float64       `json:"search_score,omitempty"` // Provider relevance score
	Query       string        `json:"query,omitempty"`        // Query that retrieved this result
	Fingerprint string        `json:"fingerprint"`            // Stable content hash used for dedup and citations
	Authority   AuthorityTier `json:"authority,omitempty"`    // Domain-based credibility tier
}

// Fingerprint computes the stable content fingerprint for evidence text.
// Normalization keeps the hash stable across whitespace/punctuation noise.
func Fingerprint(url, text string) string {
	h := sha256.Sum256([]byte(url + "\x00" + NormalizeClaim(text)))
	return hex.EncodeToString(h[:8])
}

// AuthorityTier classifies source authority by domain.
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not classified
	TierPrimary   AuthorityTier = 1 // Statistics offices, government, peer-reviewed publishers
	TierSecondary AuthorityTier = 2 // Encyclopedias, established media
	TierTertiary  AuthorityTier = 3 // Blogs, social media, unknown sites
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// Stance is the direction an evidence item takes on a sub-claim.
type Stance string

const (
	StanceSupports    Stance = "supports"
	StanceContradicts Stance = "contradicts"
	StanceNeutral     Stance = "neutral"
)

// Sign maps a stance to its contribution sign in the weighted stance score.
func (s Stance) Sign() float64 {
	switch s {
	case StanceSupports:
		return 1
	case StanceContradicts:
		return -1
	default:
		return 0
	}
}

// SourceEvaluation is the scored assessment of one Evidence item against
// one SubClaim. Relevance, Credibility, Stance and Rationale come from
// the model; Fingerprint ties the evaluation back to the evidence item.
type SourceEvaluation struct {
	Fingerprint string  `json:"fingerprint,omitempty"`
	Relevance   float64 `json:"relevance" validate:"gte=0,lte=1"`
	Credibility float64 `json:"credibility" validate:"gte=0,lte=1"`
	Stance      Stance  `json:"stance" validate:"required,oneof=supports contradicts neutral"`
	Rationale   string  `json:"rationale" validate:"required"`
}

// Weight is the evaluation's contribution magnitude to the stance score.
func (e SourceEvaluation) Weight() float64 {
	return e.Relevance * e.Credibility
}
