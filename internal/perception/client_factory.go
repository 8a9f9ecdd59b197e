package perception

import (
	"fmt"
	"os"
	"time"

	"cortexre/internal/config"
	"cortexre/internal/types"
)

// ProviderConfig holds the resolved provider and API key.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string // optional model override
	BaseURL  string // optional base URL override
	Timeout  time.Duration
	Temp     float64
}

// envProviders lists the API key environment variables in detection
// priority order.
var envProviders = []struct {
	envVar   string
	provider Provider
}{
	{"ANTHROPIC_API_KEY", ProviderAnthropic},
	{"OPENAI_API_KEY", ProviderOpenAI},
	{"ZAI_API_KEY", ProviderZAI},
	{"OPENROUTER_API_KEY", ProviderOpenRouter},
}

// DetectProvider resolves the provider from config first, then falls back
// to environment variables in priority order.
func DetectProvider(cfg *config.Config) (*ProviderConfig, error) {
	pc := &ProviderConfig{
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLMTimeout(),
		Temp:    cfg.LLM.Temperature,
	}

	if cfg.LLM.Provider != "" && cfg.LLM.APIKey != "" {
		pc.Provider = Provider(cfg.LLM.Provider)
		pc.APIKey = cfg.LLM.APIKey
		return pc, nil
	}

	for _, p := range envProviders {
		if key := os.Getenv(p.envVar); key != "" {
			pc.Provider = p.provider
			pc.APIKey = key
			return pc, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider configured: set llm.api_key in config or one of ANTHROPIC_API_KEY, OPENAI_API_KEY, ZAI_API_KEY, OPENROUTER_API_KEY")
}

// NewClient builds an LLMClient for the resolved provider.
func NewClient(pc *ProviderConfig) (types.LLMClient, error) {
	switch pc.Provider {
	case ProviderAnthropic:
		cfg := AnthropicConfig{
			APIKey:      pc.APIKey,
			BaseURL:     pc.BaseURL,
			Model:       pc.Model,
			Timeout:     pc.Timeout,
			Temperature: pc.Temp,
		}
		if cfg.Model == "" {
			cfg.Model = DefaultAnthropicConfig(pc.APIKey).Model
		}
		return NewAnthropicClientWithConfig(cfg), nil
	case ProviderOpenAI, ProviderZAI, ProviderOpenRouter:
		cfg := OpenAIConfig{
			APIKey:      pc.APIKey,
			BaseURL:     pc.BaseURL,
			Model:       pc.Model,
			Timeout:     pc.Timeout,
			Temperature: pc.Temp,
		}
		return NewOpenAIClientWithConfig(pc.Provider, cfg), nil
	}
	return nil, fmt.Errorf("unknown provider: %s", pc.Provider)
}

// NewClientFromConfig resolves the provider and builds the client in one
// step. This is the entry point the cmd layer uses.
func NewClientFromConfig(cfg *config.Config) (types.LLMClient, error) {
	pc, err := DetectProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(pc)
}
