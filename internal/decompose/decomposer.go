package decompose

import (
	"context"
	"fmt"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/structured"
)

const systemPrompt = `You are a fact-checking analyst. Your task is to break a claim down into verifiable sub-claims.

## Rules:
1. Decompose the claim into 1-5 individual, verifiable factual assertions.
2. Each sub-claim must contain ONE concrete, measurable statement.
3. Formulate 1-3 targeted search queries per sub-claim.
   - Queries must be neutrally phrased (do not presuppose the answer).
   - At least one query should be in English for broader coverage.
4. Classify the claim type:
   - "factual": verifiable statement of fact
   - "opinion": expression of opinion (decompose anyway, but mark it)
   - "mixed": contains both facts and opinion
   - "prediction": statement about the future
5. Detect the language of the claim (ISO code, e.g. "en", "de").

Respond ONLY with a JSON object of this shape:
{
  "original_claim": "...",
  "claim_type": "factual|opinion|mixed|prediction",
  "language": "en",
  "sub_claims": [
    {"text": "...", "search_queries": ["...", "..."]}
  ]
}`

const userTemplate = `Decompose the following claim into verifiable sub-claims:

Claim: %q`

// Decomposer is the Decompose stage: one structured language-model call
// turning a Claim into 1-5 SubClaims with search queries.
type Decomposer struct {
	validator *structured.Validator
}

// New creates a Decomposer.
func New(v *structured.Validator) *Decomposer {
	return &Decomposer{validator: v}
}

// Decompose breaks the claim into sub-claims. This is a pipeline-wide
// single-call stage: failure here (after the validator's own repair
// attempts) aborts the run.
func (d *Decomposer) Decompose(ctx context.Context, claim model.Claim) (*model.Decomposition, int, error) {
	var decomp model.Decomposition
	res, err := d.validator.Call(ctx, systemPrompt, fmt.Sprintf(userTemplate, claim.Text), &decomp)
	attempts := 0
	if res != nil {
		attempts = res.Attempts
	}
	if err != nil {
		return nil, attempts, fmt.Errorf("decompose claim: %w", err)
	}

	// Ordinal indexes are assigned here, not trusted from the model.
	for i := range decomp.SubClaims {
		decomp.SubClaims[i].Index = i
	}

	return &decomp, attempts, nil
}
