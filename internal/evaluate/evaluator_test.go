package evaluate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/structured"
)

// scriptedProvider returns canned responses keyed by prompt substring.
type scriptedProvider struct {
	responses map[string]string // prompt substring -> response
	failOn    string            // prompt substring that always errors
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *scriptedProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if p.failOn != "" && strings.Contains(req.Prompt, p.failOn) {
		return nil, &model.ProviderError{Provider: "scripted", Kind: model.FailureProvider, Status: 400, Err: errors.New("bad request")}
	}
	for key, resp := range p.responses {
		if strings.Contains(req.Prompt, key) {
			return &llm.GenerateResponse{Text: resp, Model: "scripted"}, nil
		}
	}
	return &llm.GenerateResponse{Text: `{"relevance": 0.9, "credibility": 0.8, "stance": "supports", "rationale": "matches official figures"}`, Model: "scripted"}, nil
}

func TestEvaluate(t *testing.T) {
	provider := &scriptedProvider{
		responses: map[string]string{
			"skeptic.example": `{"relevance": 0.8, "credibility": 0.5, "stance": "contradicts", "rationale": "disputes the figure"}`,
		},
	}
	e := New(structured.New(provider, 3), model.EvaluateConfig{})

	sub := model.SubClaim{Index: 0, Text: "the tower is 330 metres tall"}
	evidence := []model.Evidence{
		{URL: "https://stats.example/a", Title: "Official data", Snippet: "330m", Fingerprint: "aaaa"},
		{URL: "https://skeptic.example/b", Title: "Doubt", Snippet: "not 330m", Fingerprint: "bbbb"},
	}

	evals, verdict := e.Evaluate(context.Background(), sub, evidence)

	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(evals))
	}
	// Evaluations keep evidence order and carry the fingerprints back
	if evals[0].Fingerprint != "aaaa" || evals[1].Fingerprint != "bbbb" {
		t.Errorf("fingerprints not mapped: %s, %s", evals[0].Fingerprint, evals[1].Fingerprint)
	}
	if evals[1].Stance != model.StanceContradicts {
		t.Errorf("expected contradicts for second source, got %s", evals[1].Stance)
	}

	// 0.72 support vs 0.40 contradiction -> positive but short of true
	if verdict.Category != model.VerdictPartiallyTrue {
		t.Errorf("expected partially_true, got %s (score %v)", verdict.Category, verdict.StanceScore)
	}
}

func TestEvaluate_FailedEvaluationExcluded(t *testing.T) {
	provider := &scriptedProvider{failOn: "broken.example"}
	e := New(structured.New(provider, 2), model.EvaluateConfig{})

	sub := model.SubClaim{Index: 1, Text: "x"}
	evidence := []model.Evidence{
		{URL: "https://ok.example", Fingerprint: "aaaa"},
		{URL: "https://broken.example", Fingerprint: "bbbb"},
		{URL: "https://ok2.example", Fingerprint: "cccc"},
	}

	evals, verdict := e.Evaluate(context.Background(), sub, evidence)

	if len(evals) != 2 {
		t.Fatalf("expected failing source to be excluded, got %d evaluations", len(evals))
	}
	for _, ev := range evals {
		if ev.Fingerprint == "bbbb" {
			t.Error("failed evaluation leaked into the aggregate")
		}
	}
	if verdict.Category != model.VerdictTrue {
		t.Errorf("expected true from the surviving supporters, got %s", verdict.Category)
	}
	if verdict.EvidenceCount != 2 {
		t.Errorf("evidence count must reflect aggregated items, got %d", verdict.EvidenceCount)
	}
}

func TestEvaluate_NoEvidence(t *testing.T) {
	e := New(structured.New(&scriptedProvider{}, 1), model.EvaluateConfig{})

	evals, verdict := e.Evaluate(context.Background(), model.SubClaim{Index: 3, Text: "x"}, nil)
	if len(evals) != 0 {
		t.Errorf("expected no evaluations, got %d", len(evals))
	}
	if verdict.Category != model.VerdictUnverifiable || verdict.Confidence != 0 {
		t.Errorf("expected unverifiable/0, got %s/%v", verdict.Category, verdict.Confidence)
	}
}
