package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cortexre/internal/logging"
	"cortexre/internal/perception"
	"cortexre/internal/types"
)

// InputGuardResult is the input guard's verdict.
type InputGuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// CritiqueResult carries the critique stage's raw output. Approved is
// computed deterministically from the weighted scores, never taken from
// the model.
type CritiqueResult struct {
	Approved       bool
	Scores         ScoreBreakdown
	Issues         []string
	RevisedAnswer  string
	FormattingOnly bool
}

// OutputGuardResult is the output guard's verdict.
type OutputGuardResult struct {
	Valid           bool
	CorrectedAnswer string
}

// StageLLM owns every non-research LLM interaction in the pipeline: the
// two guards and the critique reviewer. Each method degrades to a safe
// default when the model misbehaves rather than failing the run:
// guards fail open, critique fails to approve.
type StageLLM struct {
	client    types.LLMClient
	threshold int
}

// NewStageLLM wraps a client with the critique approval threshold.
func NewStageLLM(client types.LLMClient, threshold int) *StageLLM {
	return &StageLLM{client: client, threshold: threshold}
}

// CheckInput decides whether a query should reach the research agent.
// A malformed verdict defaults to allow; the output guard still bounds
// what can leave the pipeline.
func (s *StageLLM) CheckInput(ctx context.Context, query string) InputGuardResult {
	raw, err := s.client.CompleteWithSystem(ctx, loadPrompt("input_guard"), query)
	if err != nil {
		logging.GuardWarn("input guard failed, defaulting to allow: %v", err)
		return InputGuardResult{Allowed: true}
	}

	var verdict InputGuardResult
	if err := perception.DecodeValidated(raw, perception.InputGuardSchema, &verdict); err != nil {
		logging.GuardWarn("input guard returned malformed verdict, defaulting to allow: %v", err)
		return InputGuardResult{Allowed: true}
	}
	logging.Guard("input guard verdict: allowed=%v reason=%q", verdict.Allowed, verdict.Reason)
	return verdict
}

// critiqueWire is the critique stage's JSON response shape.
type critiqueWire struct {
	Scores struct {
		Accuracy     float64 `json:"accuracy"`
		Completeness float64 `json:"completeness"`
		Clarity      float64 `json:"clarity"`
		Format       float64 `json:"format"`
	} `json:"scores"`
	Issues         []string `json:"issues"`
	RevisedAnswer  string   `json:"revised_answer"`
	FormattingOnly bool     `json:"formatting_only"`
}

// Critique reviews a draft against the question and the tool log. The
// model supplies raw 0-10 dimension scores; the weighted total and the
// approval decision are computed here. A malformed response approves the
// draft so a flaky reviewer cannot wedge the pipeline.
func (s *StageLLM) Critique(ctx context.Context, query string, toolLog []ToolLogEntry, draft string) CritiqueResult {
	logJSON, err := json.MarshalIndent(toolLog, "", "  ")
	if err != nil {
		logJSON = []byte("[]")
	}
	userContent := fmt.Sprintf(
		"User question: %s\n\nTool call log:\n%s\n\nDraft answer: %s",
		query, logJSON, draft)

	raw, err := s.client.CompleteWithSystem(ctx, loadPrompt("critique_agent"), userContent)
	if err != nil {
		logging.CritiqueWarn("critique failed, defaulting to approve: %v", err)
		return approvedByDefault()
	}

	var wire critiqueWire
	if err := perception.DecodeValidated(raw, perception.CritiqueSchema, &wire); err != nil {
		logging.CritiqueWarn("critique returned malformed response, defaulting to approve: %v", err)
		return approvedByDefault()
	}

	result := CritiqueResult{
		Scores: ScoreBreakdown{
			Accuracy:     clampScore(wire.Scores.Accuracy),
			Completeness: clampScore(wire.Scores.Completeness),
			Clarity:      clampScore(wire.Scores.Clarity),
			Format:       clampScore(wire.Scores.Format),
		},
		Issues:         wire.Issues,
		RevisedAnswer:  strings.TrimSpace(wire.RevisedAnswer),
		FormattingOnly: wire.FormattingOnly,
	}
	result.Scores.ComputeTotal()
	result.Approved = result.Scores.Total >= s.threshold

	logging.Critique("critique: total=%d threshold=%d approved=%v issues=%d formatting_only=%v",
		result.Scores.Total, s.threshold, result.Approved, len(result.Issues), result.FormattingOnly)
	return result
}

func approvedByDefault() CritiqueResult {
	r := CritiqueResult{Approved: true, Scores: ScoreBreakdown{
		Accuracy: 10, Completeness: 10, Clarity: 10, Format: 10,
	}}
	r.Scores.ComputeTotal()
	return r
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// CheckOutput validates the approved draft before release. Currency
// symbols are stripped before the LLM sees the answer; a malformed
// verdict passes the answer through unchanged.
func (s *StageLLM) CheckOutput(ctx context.Context, query string, knownProperties []string, answer string) OutputGuardResult {
	for _, sym := range []string{"$", "€", "£"} {
		answer = strings.ReplaceAll(answer, sym, "")
	}

	userContent := fmt.Sprintf(
		"User question: %s\n\nKnown property names: %s\n\nCandidate answer: %s",
		query, strings.Join(knownProperties, ", "), answer)

	raw, err := s.client.CompleteWithSystem(ctx, loadPrompt("output_guard"), userContent)
	if err != nil {
		logging.GuardWarn("output guard failed, returning answer as-is: %v", err)
		return OutputGuardResult{Valid: true, CorrectedAnswer: answer}
	}

	var wire struct {
		Valid           bool   `json:"valid"`
		CorrectedAnswer string `json:"corrected_answer"`
		Reason          string `json:"reason"`
	}
	if err := perception.DecodeValidated(raw, perception.OutputGuardSchema, &wire); err != nil {
		logging.GuardWarn("output guard returned malformed verdict, returning answer as-is: %v", err)
		return OutputGuardResult{Valid: true, CorrectedAnswer: answer}
	}

	logging.Guard("output guard verdict: valid=%v reason=%q", wire.Valid, wire.Reason)
	if wire.Valid {
		return OutputGuardResult{Valid: true, CorrectedAnswer: answer}
	}
	return OutputGuardResult{Valid: false, CorrectedAnswer: strings.TrimSpace(wire.CorrectedAnswer)}
}
