package decompose

import (
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/structured"
)

type fakeProvider struct {
	response string
	err      error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *fakeProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.GenerateResponse{Text: p.response}, nil
}

func TestDecompose(t *testing.T) {
	p := &fakeProvider{response: `{
		"original_claim": "Germany phased out nuclear power in 2023 and emissions rose",
		"claim_type": "factual",
		"language": "en",
		"sub_claims": [
			{"index": 7, "text": "Germany shut down its last nuclear power plants in 2023", "search_queries": ["germany nuclear phase out 2023"]},
			{"index": 7, "text": "German CO2 emissions rose after the nuclear phase-out", "search_queries": ["germany emissions after nuclear exit", "german co2 2023 2024"]}
		]
	}`}
	d := New(structured.New(p, 3))

	decomp, attempts, err := d.Decompose(context.Background(), model.NewClaim("Germany phased out nuclear power in 2023 and emissions rose"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if len(decomp.SubClaims) != 2 {
		t.Fatalf("expected 2 sub-claims, got %d", len(decomp.SubClaims))
	}
	if decomp.ClaimType != model.ClaimTypeFactual {
		t.Errorf("expected factual, got %s", decomp.ClaimType)
	}
	if decomp.Language != "en" {
		t.Errorf("expected language en, got %s", decomp.Language)
	}

	// Ordinal indexes come from position, not from the model
	for i, sc := range decomp.SubClaims {
		if sc.Index != i {
			t.Errorf("sub-claim %d has index %d", i, sc.Index)
		}
	}
}

func TestDecompose_RejectsEmptySubClaims(t *testing.T) {
	p := &fakeProvider{response: `{
		"original_claim": "x",
		"claim_type": "factual",
		"language": "en",
		"sub_claims": []
	}`}
	d := New(structured.New(p, 1))

	_, _, err := d.Decompose(context.Background(), model.NewClaim("a claim with nothing to check"))
	var soe *model.StructuredOutputError
	if !errors.As(err, &soe) {
		t.Fatalf("expected StructuredOutputError for empty decomposition, got %v", err)
	}
}

func TestDecompose_ProviderFailureAborts(t *testing.T) {
	pe := &model.ProviderError{Provider: "fake", Kind: model.FailureTimeout, Err: errors.New("deadline")}
	d := New(structured.New(&fakeProvider{err: pe}, 3))

	_, attempts, err := d.Decompose(context.Background(), model.NewClaim("some claim worth checking"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, pe) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt for a capability failure, got %d", attempts)
	}
}
