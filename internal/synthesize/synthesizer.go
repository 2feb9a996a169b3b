// Package synthesize folds per-sub-claim verdicts into one overall
// verdict with a cited summary.
package synthesize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/structured"
)

const systemPrompt = `You are a fact-checking editor. You receive a claim, the verdicts for its individual sub-claims, and the evidence sources those verdicts rest on. Write a short, neutral summary (2-4 sentences) of the overall finding.

## Rules:
1. The summary must reflect the sub-claim verdicts; do not introduce new conclusions.
2. Name the strongest evidence; cite sources by their fingerprint.
3. Only cite fingerprints from the provided source list.
4. Write in the language of the original claim.

Respond ONLY with a JSON object of this shape:
{
  "summary": "...",
  "cited_fingerprints": ["...", "..."]
}`

// Synthesizer is the final pipeline stage: deterministic category and
// confidence aggregation plus one structured call for the summary.
type Synthesizer struct {
	validator *structured.Validator

	forceFalse float64 // any false sub-verdict at/above this confidence wins
}

// New creates a Synthesizer. forceFalse <= 0 falls back to the default.
func New(v *structured.Validator, forceFalse float64) *Synthesizer {
	if forceFalse <= 0 {
		forceFalse = 0.6
	}
	return &Synthesizer{validator: v, forceFalse: forceFalse}
}

// Synthesize builds the final Verdict for a completed run. The category
// and confidence are computed deterministically from the sub-verdicts;
// only the prose summary comes from the model. This is a pipeline-wide
// stage: a summary failure aborts the run.
func (s *Synthesizer) Synthesize(ctx context.Context, run *model.PipelineRun) (*model.Verdict, error) {
	if len(run.SubVerdicts) == 0 {
		return nil, fmt.Errorf("synthesize: run %s has no sub-verdicts", run.ID)
	}

	subs := make([]model.SubVerdict, len(run.SubVerdicts))
	copy(subs, run.SubVerdicts)
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].SubClaimIndex < subs[j].SubClaimIndex
	})

	category := overallCategory(subs, s.forceFalse)
	confidence := overallConfidence(subs)

	out, err := s.summarize(ctx, run, subs)
	if err != nil {
		return nil, fmt.Errorf("synthesize summary: %w", err)
	}

	verdict := &model.Verdict{
		Category:    category,
		Confidence:  confidence,
		Summary:     out.Summary,
		Citations:   citations(run, out.CitedFingerprints),
		SubVerdicts: subs,
		CheckedAt:   time.Now().UTC(),
	}
	if run.Decomposition != nil {
		verdict.ClaimType = run.Decomposition.ClaimType
		verdict.Language = run.Decomposition.Language
	}
	return verdict, nil
}

// overallCategory resolves the final category:
//
//  1. unanimous sub-verdicts pass their category through;
//  2. any false sub-verdict at or above the force threshold makes the
//     whole claim false;
//  3. all-unverifiable stays unverifiable;
//  4. otherwise a mix containing misleading or confident-false leanings
//     becomes misleading, and a mix of true with weaker categories
//     becomes partially_true.
func overallCategory(subs []model.SubVerdict, forceFalse float64) model.VerdictCategory {
	first := subs[0].Category
	unanimous := true
	allUnverifiable := true
	hasMisleading := false
	hasFalse := false
	for _, sv := range subs {
		if sv.Category != first {
			unanimous = false
		}
		if sv.Category != model.VerdictUnverifiable {
			allUnverifiable = false
		}
		switch sv.Category {
		case model.VerdictMisleading:
			hasMisleading = true
		case model.VerdictFalse:
			hasFalse = true
			if sv.Confidence >= forceFalse {
				return model.VerdictFalse
			}
		}
	}
	if unanimous {
		return first
	}
	if allUnverifiable {
		return model.VerdictUnverifiable
	}
	if hasMisleading || hasFalse {
		return model.VerdictMisleading
	}
	return model.VerdictPartiallyTrue
}

// overallConfidence is the evidence-count-weighted mean of sub-verdict
// confidences. Sub-claims with no evidence carry weight only when no
// sub-claim has any, in which case the plain mean is used.
func overallConfidence(subs []model.SubVerdict) float64 {
	var weighted, totalWeight, plain float64
	for _, sv := range subs {
		w := float64(sv.EvidenceCount)
		weighted += sv.Confidence * w
		totalWeight += w
		plain += sv.Confidence
	}
	var c float64
	if totalWeight > 0 {
		c = weighted / totalWeight
	} else {
		c = plain / float64(len(subs))
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

func (s *Synthesizer) summarize(ctx context.Context, run *model.PipelineRun, subs []model.SubVerdict) (*model.SummaryOutput, error) {
	prompt, err := buildPrompt(run, subs)
	if err != nil {
		return nil, err
	}
	var out model.SummaryOutput
	if _, err := s.validator.Call(ctx, systemPrompt, prompt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func buildPrompt(run *model.PipelineRun, subs []model.SubVerdict) (string, error) {
	type subView struct {
		Claim      string  `json:"claim"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale,omitempty"`
	}
	views := make([]subView, 0, len(subs))
	for _, sv := range subs {
		views = append(views, subView{
			Claim:      sv.Claim,
			Category:   string(sv.Category),
			Confidence: sv.Confidence,
			Rationale:  sv.Rationale,
		})
	}
	verdictsJSON, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sub-verdicts: %w", err)
	}

	var sources strings.Builder
	for _, evs := range run.Evidence {
		for _, ev := range evs {
			fmt.Fprintf(&sources, "- [%s] %s (%s, %s)\n", ev.Fingerprint, ev.Title, ev.URL, ev.Authority)
		}
	}
	if sources.Len() == 0 {
		sources.WriteString("(no sources retrieved)\n")
	}

	return fmt.Sprintf(`Claim: %q

Sub-claim verdicts:
%s

Available sources:
%s`, run.Claim.Text, verdictsJSON, sources.String()), nil
}

// citations maps cited fingerprints to evidence, in citation order,
// dropping anything the model invented and any duplicates. When the
// model cited nothing valid, the top-ranked sources stand in.
func citations(run *model.PipelineRun, cited []string) []model.Citation {
	seen := make(map[string]bool, len(cited))
	out := make([]model.Citation, 0, len(cited))
	for _, fp := range cited {
		if seen[fp] {
			continue
		}
		ev, ok := run.FindEvidence(fp)
		if !ok {
			continue
		}
		seen[fp] = true
		out = append(out, model.Citation{Fingerprint: ev.Fingerprint, URL: ev.URL, Title: ev.Title})
	}
	if len(out) > 0 {
		return out
	}
	return fallbackCitations(run, 3)
}

func fallbackCitations(run *model.PipelineRun, max int) []model.Citation {
	var all []model.Evidence
	for _, evs := range run.Evidence {
		all = append(all, evs...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].SearchScore > all[j].SearchScore })

	seen := make(map[string]bool, max)
	out := make([]model.Citation, 0, max)
	for _, ev := range all {
		if seen[ev.Fingerprint] {
			continue
		}
		seen[ev.Fingerprint] = true
		out = append(out, model.Citation{Fingerprint: ev.Fingerprint, URL: ev.URL, Title: ev.Title})
		if len(out) == max {
			break
		}
	}
	return out
}
