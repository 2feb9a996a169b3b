package model

// EventKind identifies a progress event emitted by the orchestrator.
type EventKind string

const (
	EventStageStarted    EventKind = "stage_started"
	EventSubClaimReady   EventKind = "sub_claim_ready"
	EventEvidenceReady   EventKind = "evidence_ready"
	EventSubVerdictReady EventKind = "sub_verdict_ready"
	EventReviewRequested EventKind = "review_requested"
	EventDone            EventKind = "done"
	EventFailed          EventKind = "failed"
)

// ProgressEvent is one element of the ordered, finite event stream a
// caller receives while a check runs. The stream terminates with exactly
// one Done or Failed event.
type ProgressEvent struct {
	Kind          EventKind          `json:"kind"`
	RunID         string             `json:"run_id"`
	Stage         Stage              `json:"stage,omitempty"`
	SubClaim      *SubClaim          `json:"sub_claim,omitempty"`
	Evidence      []Evidence         `json:"evidence,omitempty"`
	SubVerdict    *SubVerdict        `json:"sub_verdict,omitempty"`
	Verdict       *Verdict           `json:"verdict,omitempty"`
	FailureStage  Stage              `json:"failure_stage,omitempty"` // Last completed stage before failure
	Error         string             `json:"error,omitempty"`
}
