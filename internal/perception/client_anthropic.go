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

// AnthropicClient implements LLMClient for the direct Anthropic API.
type AnthropicClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:      apiKey,
		BaseURL:     "https://api.anthropic.com/v1",
		Model:       "claude-sonnet-4-5",
		Timeout:     2 * time.Minute,
		Temperature: 0.1,
	}
}

// NewAnthropicClient creates a new Anthropic client with default config.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return NewAnthropicClientWithConfig(DefaultAnthropicConfig(apiKey))
}

// NewAnthropicClientWithConfig creates a new Anthropic client with custom config.
func NewAnthropicClientWithConfig(config AnthropicConfig) *AnthropicClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	return &AnthropicClient{
		apiKey:      config.APIKey,
		baseURL:     config.BaseURL,
		model:       config.Model,
		temperature: config.Temperature,
		httpClient:  &http.Client{Timeout: config.Timeout},
	}
}

// SetModel changes the model used for completions.
func (c *AnthropicClient) SetModel(model string) { c.model = model }

// GetModel returns the current model.
func (c *AnthropicClient) GetModel() string { return c.model }

// Complete sends a prompt and returns the completion.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.send(ctx, systemPrompt, []AnthropicMessage{{Role: "user", Content: userPrompt}}, nil)
	if err != nil {
		return "", err
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(text.String()), nil
}

// CompleteWithTools sends a prompt with tool definitions and returns the
// response with any requested tool calls.
func (c *AnthropicClient) CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	resp, err := c.send(ctx, systemPrompt, []AnthropicMessage{{Role: "user", Content: userPrompt}}, tools)
	if err != nil {
		return nil, err
	}
	return parseAnthropicResponse(resp), nil
}

// CompleteConversation continues a multi-turn exchange that may include
// earlier tool calls and their results. The research loop drives this.
func (c *AnthropicClient) CompleteConversation(ctx context.Context, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (*types.LLMToolResponse, error) {
	wire := make([]AnthropicMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, anthropicMessage(m))
	}
	resp, err := c.send(ctx, systemPrompt, wire, tools)
	if err != nil {
		return nil, err
	}
	return parseAnthropicResponse(resp), nil
}

// anthropicMessage converts a provider-neutral message to wire form.
func anthropicMessage(m types.Message) AnthropicMessage {
	if len(m.ToolCalls) == 0 && len(m.ToolOutcomes) == 0 {
		return AnthropicMessage{Role: string(m.Role), Content: m.Content}
	}
	var blocks []AnthropicContentBlock
	if m.Content != "" {
		blocks = append(blocks, AnthropicContentBlock{Type: "text", Text: m.Content})
	}
	for _, call := range m.ToolCalls {
		blocks = append(blocks, AnthropicContentBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Name,
			Input: call.Input,
		})
	}
	for _, outcome := range m.ToolOutcomes {
		blocks = append(blocks, AnthropicContentBlock{
			Type:      "tool_result",
			ToolUseID: outcome.ToolUseID,
			Content:   outcome.Content,
			IsError:   outcome.IsError,
		})
	}
	return AnthropicMessage{Role: string(m.Role), Content: blocks}
}

func parseAnthropicResponse(resp *AnthropicResponse) *types.LLMToolResponse {
	result := &types.LLMToolResponse{
		StopReason: resp.StopReason,
		Usage: types.UsageMetadata{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, types.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	result.Text = strings.TrimSpace(text.String())
	return result
}

// send posts one messages request with retry on rate limits and transient
// network errors.
func (c *AnthropicClient) send(ctx context.Context, systemPrompt string, messages []AnthropicMessage, tools []types.ToolDefinition) (*AnthropicResponse, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	if c.apiKey == "" {
		logging.LLMError("[Anthropic] API key not configured")
		return nil, fmt.Errorf("API key not configured")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	var anthropicTools []AnthropicTool
	for _, t := range tools {
		anthropicTools = append(anthropicTools, AnthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	reqBody := AnthropicRequest{
		Model:       c.model,
		MaxTokens:   8192,
		System:      systemPrompt,
		Messages:    messages,
		Tools:       anthropicTools,
		Temperature: c.temperature,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Rate limiting: keep a minimum gap between requests.
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

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

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
			logging.LLMError("[Anthropic] API returned status %d: %s", resp.StatusCode, string(body))
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var anthropicResp AnthropicResponse
		if err := json.Unmarshal(body, &anthropicResp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if anthropicResp.Error != nil {
			return nil, fmt.Errorf("API error: %s", anthropicResp.Error.Message)
		}
		if len(anthropicResp.Content) == 0 {
			return nil, fmt.Errorf("no completion returned")
		}

		logging.LLM("[Anthropic] completed in %v model=%s tokens=%d/%d",
			time.Since(startTime), c.model,
			anthropicResp.Usage.InputTokens, anthropicResp.Usage.OutputTokens)
		return &anthropicResp, nil
	}

	logging.LLMError("[Anthropic] max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
