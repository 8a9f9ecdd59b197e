package agent

import (
	"context"
	"strings"

	"cortexre/internal/logging"
)

// CritiqueEngine runs the revision loop's review step. It scores the
// current draft, records it in the history, and decides whether the
// pipeline should release the draft, substitute a formatting fix, or
// send the reviewer's objections back to research.
type CritiqueEngine struct {
	stage        *StageLLM
	maxRevisions int
}

// NewCritiqueEngine wraps a stage client with the revision cap.
func NewCritiqueEngine(stage *StageLLM, maxRevisions int) *CritiqueEngine {
	if maxRevisions < 0 {
		maxRevisions = 0
	}
	return &CritiqueEngine{stage: stage, maxRevisions: maxRevisions}
}

// Review critiques state.DraftAnswer and updates state. It returns true
// when the draft (possibly substituted) is final and the pipeline should
// move to the output guard; false when state.Critique carries feedback
// for another research cycle.
func (c *CritiqueEngine) Review(ctx context.Context, state *RunState) bool {
	result := c.stage.Critique(ctx, state.Query, state.ToolLog, state.DraftAnswer)
	state.RecordDraft(state.DraftAnswer, result.Scores)
	state.AddStep("critique", "info", "draft scored", map[string]interface{}{
		"total":    result.Scores.Total,
		"approved": result.Approved,
	})

	if result.Approved {
		state.Critique = ""
		return true
	}

	// A formatting-only rejection with a usable rewrite skips the
	// research cycle: the numbers are right, only the presentation
	// changes. No revision is consumed because no research happens.
	if result.FormattingOnly && result.RevisedAnswer != "" {
		logging.Critique("formatting-only rejection, substituting revised answer")
		state.DraftAnswer = result.RevisedAnswer
		state.Critique = ""
		state.AddStep("critique", "info", "formatting fix applied", nil)
		return true
	}

	if state.RevisionCount >= c.maxRevisions {
		logging.CritiqueWarn("revision cap (%d) reached, releasing best draft", c.maxRevisions)
		state.DraftAnswer = state.BestDraft()
		state.Critique = ""
		state.AddStep("critique", "warning", "revision cap reached, best draft selected", nil)
		return true
	}

	state.Critique = renderCritique(result)
	state.RevisionCount++
	state.AddStep("critique", "info", "draft rejected, requesting revision", map[string]interface{}{
		"revision": state.RevisionCount,
	})
	return false
}

// renderCritique formats the reviewer's objections as feedback text for
// the next research cycle.
func renderCritique(result CritiqueResult) string {
	var b strings.Builder
	b.WriteString("The previous answer had these issues:\n")
	for _, issue := range result.Issues {
		b.WriteString("- ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	if result.RevisedAnswer != "" {
		b.WriteString("Suggested correction: ")
		b.WriteString(result.RevisedAnswer)
	}
	return strings.TrimSpace(b.String())
}
