package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"cortexre/internal/logging"
	"cortexre/internal/types"
)

// OpenAIClient implements LLMClient for any OpenAI-compatible chat
// completions API. ZAI and OpenRouter reuse this client with their own
// base URLs and default models.
type OpenAIClient struct {
	provider    Provider
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// DefaultOpenAIConfig returns sensible defaults for the given provider.
func DefaultOpenAIConfig(provider Provider, apiKey string) OpenAIConfig {
	cfg := OpenAIConfig{
		APIKey:      apiKey,
		Timeout:     2 * time.Minute,
		Temperature: 0.1,
	}
	switch provider {
	case ProviderZAI:
		cfg.BaseURL = "https://api.z.ai/api/paas/v4"
		cfg.Model = "glm-4.6"
	case ProviderOpenRouter:
		cfg.BaseURL = "https://openrouter.ai/api/v1"
		cfg.Model = "anthropic/claude-sonnet-4.5"
	default:
		cfg.BaseURL = "https://api.openai.com/v1"
		cfg.Model = "gpt-4o"
	}
	return cfg
}

// NewOpenAIClient creates a client for the given OpenAI-compatible provider.
func NewOpenAIClient(provider Provider, apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(provider, DefaultOpenAIConfig(provider, apiKey))
}

// NewOpenAIClientWithConfig creates a client with custom config.
func NewOpenAIClientWithConfig(provider Provider, config OpenAIConfig) *OpenAIClient {
	defaults := DefaultOpenAIConfig(provider, config.APIKey)
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	return &OpenAIClient{
		provider:    provider,
		apiKey:      config.APIKey,
		baseURL:     config.BaseURL,
		model:       config.Model,
		temperature: config.Temperature,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// SetModel changes the model used for completions.
func (c *OpenAIClient) SetModel(model string) { c.model = model }

// GetModel returns the current model.
func (c *OpenAIClient) GetModel() string { return c.model }

// Complete sends a prompt and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.send(ctx, systemPrompt, []OpenAIMessage{{Role: "user", Content: userPrompt}}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CompleteWithTools sends a prompt with tool definitions.
func (c *OpenAIClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	resp, err := c.send(ctx, systemPrompt, []OpenAIMessage{{Role: "user", Content: userPrompt}}, tools)
	if err != nil {
		return nil, err
	}
	return parseOpenAIResponse(resp)
}

// CompleteConversation continues a multi-turn exchange that may include
// earlier tool calls and their results.
func (c *OpenAIClient) CompleteConversation(ctx context.Context, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	wire := make([]OpenAIMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, openAIMessages(m)...)
	}
	resp, err := c.send(ctx, systemPrompt, wire, tools)
	if err != nil {
		return nil, err
	}
	return parseOpenAIResponse(resp)
}

// openAIMessages converts one provider-neutral message to wire form. A user
// message carrying tool outcomes fans out into role "tool" messages.
func openAIMessages(m types.Message) []OpenAIMessage {
	if len(m.ToolOutcomes) > 0 {
		out := make([]OpenAIMessage, 0, len(m.ToolOutcomes))
		for _, outcome := range m.ToolOutcomes {
			out = append(out, OpenAIMessage{
				Role:       "tool",
				Content:    outcome.Content,
				ToolCallID: outcome.ToolUseID,
			})
		}
		return out
	}

	msg := OpenAIMessage{Role: string(m.Role), Content: m.Content}
	for _, call := range m.ToolCalls {
		args, err := json.Marshal(call.Input)
		if err != nil {
			args = []byte("{}")
		}
		tc := OpenAIToolCall{ID: call.ID, Type: "function"}
		tc.Function.Name = call.Name
		tc.Function.Arguments = string(args)
		msg.ToolCalls = append(msg.ToolCalls, tc)
	}
	return []OpenAIMessage{msg}
}

func parseOpenAIResponse(resp *OpenAIResponse) (*types.LLMToolResponse, error) {
	choice := resp.Choices[0]
	result := &types.LLMToolResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: choice.FinishReason,
		Usage: types.UsageMetadata{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		input := map[string]interface{}{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		result.ToolCalls = append(result.ToolCalls, types.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	return result, nil
}

// send posts one chat completions request with retry on rate limits and
// transient errors.
func (c *OpenAIClient) send(ctx context.Context, systemPrompt string, messages []OpenAIMessage, tools []types.ToolDefinition) (*OpenAIResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	if c.apiKey == "" {
		logging.LLMError("[%s] API key not configured", c.provider)
		return nil, fmt.Errorf("API key not configured")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	wireMessages := append([]OpenAIMessage{{Role: "system", Content: systemPrompt}}, messages...)

	var wireTools []OpenAITool
	for _, t := range tools {
		wt := OpenAITool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.InputSchema
		wireTools = append(wireTools, wt)
	}

	reqBody := OpenAIRequest{
		Model:       c.model,
		Messages:    wireMessages,
		MaxTokens:   8192,
		Temperature: c.temperature,
		Tools:       wireTools,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	maxRetries := 3
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("API request failed with status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			logging.LLMError("[%s] API returned status %d: %s", c.provider, resp.StatusCode, string(body))
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var openAIResp OpenAIResponse
		if err := json.Unmarshal(body, &openAIResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if openAIResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", openAIResp.Error.Message)
		}
		if len(openAIResp.Choices) == 0 {
			return nil, fmt.Errorf("no completion returned")
		}

		logging.LLM("[%s] completed in %v model=%s tokens=%d/%d",
			c.provider, time.Since(startTime), c.model,
			openAIResp.Usage.PromptTokens, openAIResp.Usage.CompletionTokens)
		return &openAIResp, nil
	}

	logging.LLMError("[%s] max retries exceeded after %v: %v", c.provider, time.Since(startTime), lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
