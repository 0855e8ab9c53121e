package models

import "time"

// ProcessingState is the externally visible stage of a run.
type ProcessingState string

const (
	StatePending      ProcessingState = "pending"
	StateParsing      ProcessingState = "parsing"
	StateMasking      ProcessingState = "masking"
	StateFastCheck    ProcessingState = "fast-check"
	StatePDFHighlight ProcessingState = "pdf-highlight"
	StateDeepReason   ProcessingState = "deep-reason"
	StateComplete     ProcessingState = "complete"
	StateError        ProcessingState = "error"
)

var stateProgress = map[ProcessingState]int{
	StatePending:      0,
	StateParsing:      10,
	StateMasking:      30,
	StateFastCheck:    45,
	StatePDFHighlight: 60,
	StateDeepReason:   75,
	StateComplete:     100,
}

// Progress returns the percentage shown for a state. Error has no fixed
// value; callers keep the last one they reported.
func (s ProcessingState) Progress() (int, bool) {
	p, ok := stateProgress[s]
	return p, ok
}

// StatusUpdate is what the orchestrator hands to the status callback.
type StatusUpdate struct {
	State    ProcessingState `json:"state"`
	Progress int             `json:"progress"`
	Message  string          `json:"message,omitempty"`
	At       time.Time       `json:"at"`
}

// PipelineResult aggregates every stage's output for one run.
type PipelineResult struct {
	RunID                 string                 `json:"runId"`
	Parse                 *ParseResult           `json:"parse,omitempty"`
	Redaction             RedactionResult        `json:"redaction"`
	ScreeningFindings     []ScreeningFinding     `json:"screeningFindings"`
	Highlights            []Highlight            `json:"highlights"`
	NotFound              []string               `json:"notFound"`
	LegalIssues           []LegalIssue           `json:"legalIssues"`
	Verdict               *ClassificationVerdict `json:"verdict,omitempty"`
	Rewrites              []Rewrite              `json:"rewrites"`
	ExplanatorySummary    string                 `json:"explanatorySummary"`
	Summary               string                 `json:"summary"`
	ReasoningUndetermined bool                   `json:"reasoningUndetermined"`
	TotalProcessingTimeMs int64                  `json:"totalProcessingTimeMs"`
}
