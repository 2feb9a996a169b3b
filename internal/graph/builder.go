// Package graph exports a completed run as a source graph: the claim,
// its sub-claims, and the evidence behind each verdict, as plain data
// suitable for JSON export or rendering.
package graph

import (
	"fmt"

	"github.com/ppiankov/veracity/internal/model"
)

// Node kinds.
const (
	NodeClaim    = "claim"
	NodeSubClaim = "sub_claim"
	NodeEvidence = "evidence"
)

// Edge kinds.
const (
	EdgeDecomposes  = "decomposes" // claim -> sub-claim
	EdgeSupports    = "supports"   // evidence -> sub-claim
	EdgeContradicts = "contradicts"
	EdgeNeutral     = "neutral"
)

// categoryColors follows a traffic-light scheme for rendering.
var categoryColors = map[model.VerdictCategory]string{
	model.VerdictTrue:          "#2e7d32",
	model.VerdictPartiallyTrue: "#9e9d24",
	model.VerdictMisleading:    "#ef6c00",
	model.VerdictFalse:         "#c62828",
	model.VerdictUnverifiable:  "#757575",
}

// Node is one vertex of the source graph.
type Node struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Label     string  `json:"label"`
	Category  string  `json:"category,omitempty"` // verdict category for claim/sub-claim nodes
	Color     string  `json:"color,omitempty"`
	URL       string  `json:"url,omitempty"`       // evidence nodes
	Authority string  `json:"authority,omitempty"` // evidence nodes
	Weight    float64 `json:"weight,omitempty"`
}

// Edge connects two nodes. Weight is relevance x credibility for
// evidence edges.
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight,omitempty"`
}

// Graph is the exported source graph for one completed check.
type Graph struct {
	RunID string `json:"run_id"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Build assembles the graph from a run and its verdict. Evidence nodes
// are deduplicated by fingerprint; an evidence item shared by several
// sub-claims gets one node and several edges.
func Build(run *model.PipelineRun, verdict *model.Verdict) *Graph {
	g := &Graph{RunID: run.ID}

	claimID := "claim"
	claimNode := Node{ID: claimID, Kind: NodeClaim, Label: run.Claim.Text}
	if verdict != nil {
		claimNode.Category = string(verdict.Category)
		claimNode.Color = categoryColors[verdict.Category]
		claimNode.Weight = verdict.Confidence
	}
	g.Nodes = append(g.Nodes, claimNode)

	subVerdicts := make(map[int]model.SubVerdict)
	if verdict != nil {
		for _, sv := range verdict.SubVerdicts {
			subVerdicts[sv.SubClaimIndex] = sv
		}
	}

	evidenceNodes := make(map[string]bool)

	if run.Decomposition != nil {
		for _, sc := range run.Decomposition.SubClaims {
			subID := fmt.Sprintf("sub-%d", sc.Index)
			node := Node{ID: subID, Kind: NodeSubClaim, Label: sc.Text}
			if sv, ok := subVerdicts[sc.Index]; ok {
				node.Category = string(sv.Category)
				node.Color = categoryColors[sv.Category]
				node.Weight = sv.Confidence
			}
			g.Nodes = append(g.Nodes, node)
			g.Edges = append(g.Edges, Edge{From: claimID, To: subID, Kind: EdgeDecomposes})

			if sc.Index >= len(run.Evidence) {
				continue
			}
			evals := evaluationsByFingerprint(run, sc.Index)
			for _, ev := range run.Evidence[sc.Index] {
				evID := "ev-" + ev.Fingerprint
				if !evidenceNodes[evID] {
					evidenceNodes[evID] = true
					g.Nodes = append(g.Nodes, Node{
						ID:        evID,
						Kind:      NodeEvidence,
						Label:     ev.Title,
						URL:       ev.URL,
						Authority: ev.Authority.String(),
					})
				}
				edge := Edge{From: evID, To: subID, Kind: EdgeNeutral}
				if eval, ok := evals[ev.Fingerprint]; ok {
					edge.Kind = stanceEdge(eval.Stance)
					edge.Weight = eval.Weight()
				}
				g.Edges = append(g.Edges, edge)
			}
		}
	}

	return g
}

func evaluationsByFingerprint(run *model.PipelineRun, idx int) map[string]model.SourceEvaluation {
	out := make(map[string]model.SourceEvaluation)
	if idx >= len(run.Evaluations) {
		return out
	}
	for _, eval := range run.Evaluations[idx] {
		out[eval.Fingerprint] = eval
	}
	return out
}

func stanceEdge(s model.Stance) string {
	switch s {
	case model.StanceSupports:
		return EdgeSupports
	case model.StanceContradicts:
		return EdgeContradicts
	default:
		return EdgeNeutral
	}
}
