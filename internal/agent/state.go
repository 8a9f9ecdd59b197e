// Package agent implements the guarded answer pipeline: an input guard, a
// tool-calling research loop, a weighted critique revision loop, and an
// output guard. Every stage reads and appends to a shared RunState; stages
// never mutate earlier entries.
package agent

import (
	"time"

	"cortexre/internal/config"
)

// Step is one observability entry appended by a pipeline stage.
type Step struct {
	Node    string                 `json:"node"`
	Type    string                 `json:"type"` // "info", "warning", "tool"
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ToolLogEntry records one tool invocation during research. The critique
// stage reads the log to verify every figure in the draft.
type ToolLogEntry struct {
	ToolName string                 `json:"tool_name"`
	Args     map[string]interface{} `json:"args"`
	Result   string                 `json:"result"`
	IsError  bool                   `json:"is_error,omitempty"`
}

// ScoreBreakdown is the deterministic weighted critique score for a draft.
// Raw dimension scores come from the critique LLM on a 0-10 scale; the
// weighting and the approval decision are computed in code, never trusted
// from the model.
type ScoreBreakdown struct {
	Accuracy     float64 `json:"accuracy"`     // raw 0-10
	Completeness float64 `json:"completeness"` // raw 0-10
	Clarity      float64 `json:"clarity"`      // raw 0-10
	Format       float64 `json:"format"`       // raw 0-10
	Total        int     `json:"weighted_total"`
}

// ComputeTotal derives the weighted total on the 0-100 scale: accuracy
// weighs 4, completeness 3, clarity 2, format 1.
func (s *ScoreBreakdown) ComputeTotal() {
	s.Total = int(s.Accuracy*config.WeightAccuracy +
		s.Completeness*config.WeightCompleteness +
		s.Clarity*config.WeightClarity +
		s.Format*config.WeightFormat)
}

// DraftRecord is one scored draft in the revision history.
type DraftRecord struct {
	Draft  string         `json:"draft"`
	Scores ScoreBreakdown `json:"scores"`
}

// RunState is the shared context threaded through every pipeline stage for
// one query. Slices are append-only.
type RunState struct {
	// Query is the raw natural-language question from the user.
	Query string `json:"query"`

	// ThreadID identifies the conversation thread for persistence.
	ThreadID string `json:"thread_id"`

	// Blocked is true when the input guard rejected the query.
	Blocked bool `json:"blocked"`

	// BlockReason explains a rejection.
	BlockReason string `json:"block_reason,omitempty"`

	// DraftAnswer is the research agent's current unreviewed answer.
	DraftAnswer string `json:"draft_answer,omitempty"`

	// ToolLog records every tool invocation across all research cycles.
	ToolLog []ToolLogEntry `json:"tool_log,omitempty"`

	// Critique holds rejection feedback for the next research cycle,
	// empty once the draft is approved or the cap is reached.
	Critique string `json:"critique,omitempty"`

	// RevisionCount is the number of completed critique rejections.
	// Invariant: RevisionCount == len(DraftHistory) - 1 once at least
	// one draft has been scored.
	RevisionCount int `json:"revision_count"`

	// DraftHistory holds every scored draft, in production order. Used
	// to pick the best draft when the revision cap is reached.
	DraftHistory []DraftRecord `json:"draft_history,omitempty"`

	// FinalAnswer is the validated answer the caller returns to the user.
	FinalAnswer string `json:"final_answer,omitempty"`

	// Steps is the ordered observability trail across all stages.
	Steps []Step `json:"steps,omitempty"`

	// StartedAt marks when the run began.
	StartedAt time.Time `json:"started_at"`
}

// NewRunState initializes a run for one query.
func NewRunState(query, threadID string) *RunState {
	return &RunState{
		Query:     query,
		ThreadID:  threadID,
		StartedAt: time.Now(),
	}
}

// AddStep appends an observability entry.
func (s *RunState) AddStep(node, stepType, message string, data map[string]interface{}) {
	s.Steps = append(s.Steps, Step{Node: node, Type: stepType, Message: message, Data: data})
}

// RecordDraft appends a scored draft to the history.
func (s *RunState) RecordDraft(draft string, scores ScoreBreakdown) {
	s.DraftHistory = append(s.DraftHistory, DraftRecord{Draft: draft, Scores: scores})
}

// BestDraft returns the highest-scoring draft recorded so far. Ties go to
// the earliest draft. Returns the current DraftAnswer when no draft has
// been scored.
func (s *RunState) BestDraft() string {
	if len(s.DraftHistory) == 0 {
		return s.DraftAnswer
	}
	best := 0
	for i := 1; i < len(s.DraftHistory); i++ {
		if s.DraftHistory[i].Scores.Total > s.DraftHistory[best].Scores.Total {
			best = i
		}
	}
	return s.DraftHistory[best].Draft
}
