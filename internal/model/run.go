package model

// Stage is a named state of the pipeline state machine. Transitions are
// strictly forward; FAILED is terminal and reachable from any state.
type Stage string

const (
	StageReceived       Stage = "received"
	StageDecomposing    Stage = "decomposing"
	StageRetrieving     Stage = "retrieving"
	StageEvaluating     Stage = "evaluating"
	StageAwaitingReview Stage = "awaiting_review"
	StageSynthesizing   Stage = "synthesizing"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

// next defines the forward transition order for the happy path.
var stageOrder = map[Stage]int{
	StageReceived:       0,
	StageDecomposing:    1,
	StageRetrieving:     2,
	StageEvaluating:     3,
	StageAwaitingReview: 4,
	StageSynthesizing:   5,
	StageDone:           6,
}

// CanTransition reports whether moving from s to to is a legal forward
// transition. FAILED is always reachable; AWAITING_REVIEW may loop on
// itself while review input is pending.
func (s Stage) CanTransition(to Stage) bool {
	if to == StageFailed {
		return true
	}
	if s == StageAwaitingReview && to == StageAwaitingReview {
		return true
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	dest, ok := stageOrder[to]
	if !ok {
		return false
	}
	return dest > from
}

// Terminal reports whether the stage ends the run.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// PipelineRun is the transient per-invocation state of one fact check.
// It is owned by a single orchestrator goroutine; other goroutines see
// its contents only through progress events or Snapshot copies.
type PipelineRun struct {
	ID            string               `json:"id"`
	Identity      string               `json:"identity,omitempty"`
	Claim         Claim                `json:"claim"`
	Stage         Stage                `json:"stage"`
	Decomposition *Decomposition       `json:"decomposition,omitempty"`
	Evidence      [][]Evidence         `json:"evidence,omitempty"`    // Indexed by SubClaim ordinal
	Evaluations   [][]SourceEvaluation `json:"evaluations,omitempty"` // Indexed by SubClaim ordinal
	SubVerdicts   []SubVerdict         `json:"sub_verdicts,omitempty"`
	Verdict       *Verdict             `json:"verdict,omitempty"`
	LastStage     Stage                `json:"last_stage,omitempty"` // Last completed stage before failure
	Err           string               `json:"error,omitempty"`
}

// Snapshot returns a copy of the run that stays valid while the
// orchestrator keeps mutating the original. Slices are copied one level
// deep; their elements are value types.
func (r *PipelineRun) Snapshot() *PipelineRun {
	cp := *r
	if r.Decomposition != nil {
		d := *r.Decomposition
		d.SubClaims = append([]SubClaim(nil), r.Decomposition.SubClaims...)
		cp.Decomposition = &d
	}
	if r.Evidence != nil {
		cp.Evidence = make([][]Evidence, len(r.Evidence))
		for i, evs := range r.Evidence {
			cp.Evidence[i] = append([]Evidence(nil), evs...)
		}
	}
	if r.Evaluations != nil {
		cp.Evaluations = make([][]SourceEvaluation, len(r.Evaluations))
		for i, es := range r.Evaluations {
			cp.Evaluations[i] = append([]SourceEvaluation(nil), es...)
		}
	}
	cp.SubVerdicts = append([]SubVerdict(nil), r.SubVerdicts...)
	if r.Verdict != nil {
		v := *r.Verdict
		v.SubVerdicts = append([]SubVerdict(nil), r.Verdict.SubVerdicts...)
		v.Citations = append([]Citation(nil), r.Verdict.Citations...)
		cp.Verdict = &v
	}
	return &cp
}

// FindEvidence returns the first evidence item with the given
// fingerprint, or false when the run never retrieved it.
func (r *PipelineRun) FindEvidence(fp string) (Evidence, bool) {
	for _, evs := range r.Evidence {
		for _, ev := range evs {
			if ev.Fingerprint == fp {
				return ev, true
			}
		}
	}
	return Evidence{}, false
}
