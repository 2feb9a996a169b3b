package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Claim is the user-submitted statement to be checked.
// Immutable once created.
type Claim struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`       // Raw input text
	Normalized string    `json:"normalized"` // Lowercased, whitespace-collapsed form used for history lookup
	CreatedAt  time.Time `json:"created_at"`
}

// NewClaim creates a Claim from raw input text.
func NewClaim(text string) Claim {
	return Claim{
		ID:         uuid.NewString(),
		Text:       text,
		Normalized: NormalizeClaim(text),
		CreatedAt:  time.Now().UTC(),
	}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeClaim normalizes claim text for comparison and full-text lookup:
// lowercase, collapsed whitespace, trailing punctuation stripped.
func NormalizeClaim(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = whitespaceRe.ReplaceAllString(t, " ")
	return strings.TrimRight(t, ".!?;:")
}

// ClaimType categorizes the nature of a claim and determines how the
// pipeline treats it. Opinions are still decomposed and checked, but the
// final summary flags them.
type ClaimType string

const (
	ClaimTypeFactual    ClaimType = "factual"    // Verifiable statement of fact
	ClaimTypeOpinion    ClaimType = "opinion"    // Expression of opinion (limited checkability)
	ClaimTypeMixed      ClaimType = "mixed"      // Contains both facts and opinion
	ClaimTypePrediction ClaimType = "prediction" // Statement about the future
)

// SubClaim is one atomic assertion extracted from a Claim, together with
// the search queries generated to verify it. Created by the Decompose
// stage and never mutated afterward.
type SubClaim struct {
	Index         int      `json:"index"`
	Text          string   `json:"text" validate:"required"`
	SearchQueries []string `json:"search_queries" validate:"required,min=1,max=3,dive,required"`
}

// Decomposition is the structured output of the Decompose stage.
type Decomposition struct {
	OriginalClaim string     `json:"original_claim" validate:"required"`
	ClaimType     ClaimType  `json:"claim_type" validate:"required,oneof=factual opinion mixed prediction"`
	Language      string     `json:"language"` // ISO code detected from the claim, e.g. "en", "de"
	SubClaims     []SubClaim `json:"sub_claims" validate:"required,min=1,max=5,dive"`
}
