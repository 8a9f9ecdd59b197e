package agent

import (
	"context"
	"strings"

	"cortexre/internal/logging"
)

// Canned user-facing messages for terminal outcomes. Internal detail
// never reaches these strings.
const (
	emptyQueryMessage = "Your message appears to be empty. Please enter a question " +
		"about your real-estate portfolio."

	blockedMessage = "I can only help with real-estate asset management questions. " +
		"Please ask something related to your portfolio, properties, financials, " +
		"or asset performance."

	fallbackMessage = "I was unable to generate a reliable answer for your question. " +
		"Please try rephrasing or provide more details about the property or metric " +
		"you are interested in."

	leakApologyMessage = "I apologise, but I was unable to present the answer in a " +
		"suitable form. Please try asking your question again."
)

// WorkflowEngine routes one query through the guarded pipeline:
// input guard, bounded research/critique revision loop, output guard.
// All routing decisions are made here in code; the LLM stages only
// supply verdicts and text.
type WorkflowEngine struct {
	stage    *StageLLM
	research *ResearchLoop
	critique *CritiqueEngine

	// properties returns the current known property names for the
	// output guard's hallucination check.
	properties func() []string

	// leakMarkers are internal identifiers that must never appear in
	// user-visible text, tool names included.
	leakMarkers []string
}

// NewWorkflowEngine assembles the pipeline. properties should return a
// fresh snapshot on each call so dataset reloads are picked up.
func NewWorkflowEngine(stage *StageLLM, research *ResearchLoop, critique *CritiqueEngine, properties func() []string) *WorkflowEngine {
	markers := append([]string{"tool_call_log", "traceback", "goroutine "},
		research.registry.Names()...)
	return &WorkflowEngine{
		stage:       stage,
		research:    research,
		critique:    critique,
		properties:  properties,
		leakMarkers: markers,
	}
}

// Run executes the full pipeline for one query and returns the final
// state. The returned state always has FinalAnswer set; errors from the
// LLM layer degrade to the fixed fallback answer rather than surfacing.
func (w *WorkflowEngine) Run(ctx context.Context, query, threadID string) *RunState {
	state := NewRunState(strings.TrimSpace(query), threadID)

	if state.Query == "" {
		state.Blocked = true
		state.BlockReason = "empty query"
		state.FinalAnswer = emptyQueryMessage
		state.AddStep("input_guard", "warning", "empty query rejected", nil)
		return state
	}

	verdict := w.stage.CheckInput(ctx, state.Query)
	if !verdict.Allowed {
		state.Blocked = true
		state.BlockReason = verdict.Reason
		state.FinalAnswer = blockedMessage
		state.AddStep("input_guard", "warning", "query blocked", map[string]interface{}{
			"reason": verdict.Reason,
		})
		return state
	}
	state.AddStep("input_guard", "info", "query allowed", nil)

	for {
		draft, err := w.research.Run(ctx, state, state.Critique)
		if err != nil {
			logging.WorkflowWarn("research failed: %v", err)
			state.FinalAnswer = fallbackMessage
			state.AddStep("workflow", "warning", "research failed, fallback answer returned", nil)
			return state
		}
		state.DraftAnswer = draft

		if w.critique.Review(ctx, state) {
			break
		}
		logging.Workflow("draft rejected, starting revision %d", state.RevisionCount)
	}

	w.guardOutput(ctx, state)
	logging.Workflow("run complete: blocked=%v revisions=%d tool_calls=%d",
		state.Blocked, state.RevisionCount, len(state.ToolLog))
	return state
}

// guardOutput validates the approved draft and sets FinalAnswer.
func (w *WorkflowEngine) guardOutput(ctx context.Context, state *RunState) {
	result := w.stage.CheckOutput(ctx, state.Query, w.properties(), state.DraftAnswer)

	answer := result.CorrectedAnswer
	if !result.Valid && answer == "" {
		state.AddStep("output_guard", "warning", "answer rejected without correction", nil)
		state.FinalAnswer = fallbackMessage
		return
	}
	if !result.Valid {
		state.AddStep("output_guard", "info", "answer corrected", nil)
	} else {
		state.AddStep("output_guard", "info", "answer validated", nil)
	}

	if w.leaksInternals(answer) {
		logging.GuardWarn("answer leaked internal identifiers, scrubbed")
		state.AddStep("output_guard", "warning", "internal detail scrubbed from answer", nil)
		state.FinalAnswer = leakApologyMessage
		return
	}
	state.FinalAnswer = answer
}

// leaksInternals reports whether text mentions execution internals such
// as tool names or log structures.
func (w *WorkflowEngine) leaksInternals(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range w.leakMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
