package agent

import (
	"context"
	"fmt"
	"strings"

	"cortexre/internal/logging"
	"cortexre/internal/tools"
	"cortexre/internal/types"
)

const forcedToolReminder = "You must call at least one tool before answering. " +
	"Start with get_schema_info to discover the available data, then query it."

const partialDataCaveat = "Note: this answer is based on partial data. " +
	"The research ran out of steps before it could finish gathering evidence."

// ResearchLoop drives the tool-calling conversation that produces a
// draft answer. The loop is bounded: after maxIterations round trips it
// falls back to the best text it has seen rather than spinning forever.
type ResearchLoop struct {
	client        types.LLMClient
	registry      *tools.Registry
	maxIterations int
}

// NewResearchLoop builds a loop over the given client and tool registry.
func NewResearchLoop(client types.LLMClient, registry *tools.Registry, maxIterations int) *ResearchLoop {
	if maxIterations <= 0 {
		maxIterations = 8
	}
	return &ResearchLoop{client: client, registry: registry, maxIterations: maxIterations}
}

// Run produces a draft answer for the query in state. On revision passes
// critiqueFeedback carries the reviewer's objections and is folded into
// the opening user turn. Tool calls and observations are appended to
// state.ToolLog as they happen; tool failures become error observations
// the model can react to, not run failures.
func (r *ResearchLoop) Run(ctx context.Context, state *RunState, critiqueFeedback string) (string, error) {
	userContent := state.Query
	if critiqueFeedback != "" {
		userContent = fmt.Sprintf("%s\n\n[Previous answer was rejected. Critique feedback:]\n%s",
			state.Query, critiqueFeedback)
	}

	messages := []types.Message{{Role: types.RoleUser, Content: userContent}}
	defs := r.registry.Definitions()

	toolCalled := false
	lastText := ""
	lastResult := ""

	for i := 0; i < r.maxIterations; i++ {
		resp, err := r.client.CompleteConversation(ctx, loadPrompt("research_agent"), messages, defs)
		if err != nil {
			return "", fmt.Errorf("research turn %d: %w", i+1, err)
		}
		if resp.Text != "" {
			lastText = resp.Text
		}

		if len(resp.ToolCalls) == 0 {
			if !toolCalled {
				// The model tried to answer from memory. Push it back to
				// the tools once; a grounded answer needs at least one call.
				logging.ResearchWarn("model answered without tool calls on turn %d, forcing tool use", i+1)
				messages = append(messages,
					types.Message{Role: types.RoleAssistant, Content: resp.Text},
					types.Message{Role: types.RoleUser, Content: forcedToolReminder},
				)
				continue
			}
			logging.Research("research complete after %d turns, %d tool calls", i+1, len(state.ToolLog))
			state.AddStep("research", "draft", "draft answer produced", map[string]interface{}{
				"turns": i + 1,
			})
			return strings.TrimSpace(resp.Text), nil
		}

		outcomes := make([]types.ToolOutcome, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			content, isErr := r.executeCall(ctx, call)
			if !isErr {
				lastResult = content
			}
			toolCalled = true

			state.ToolLog = append(state.ToolLog, ToolLogEntry{
				ToolName: call.Name,
				Args:     call.Input,
				Result:   content,
				IsError:  isErr,
			})
			outcomes = append(outcomes, types.ToolOutcome{
				ToolUseID: call.ID,
				Content:   content,
				IsError:   isErr,
			})
		}

		messages = append(messages,
			types.Message{Role: types.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls},
			types.Message{Role: types.RoleUser, ToolOutcomes: outcomes},
		)
	}

	logging.ResearchWarn("research hit iteration cap (%d), falling back to last output", r.maxIterations)
	state.AddStep("research", "fallback", "iteration cap reached", nil)
	if strings.TrimSpace(lastText) != "" {
		return strings.TrimSpace(lastText) + "\n\n" + partialDataCaveat, nil
	}
	return "I retrieved the following data but was unable to synthesise a final answer. " +
		"Here is the raw result: " + lastResult, nil
}

// executeCall runs one tool call and renders its observation. Unknown
// tools and tool errors are observations for the model, not failures.
func (r *ResearchLoop) executeCall(ctx context.Context, call types.ToolCall) (content string, isError bool) {
	result, err := r.registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		logging.ResearchDebug("tool %s returned error: %v", call.Name, err)
		return err.Error(), true
	}
	return result.Result, false
}
