// Package config loads and validates CortexRE configuration.
//
// Configuration is read once at process start from a YAML file, overlaid
// with environment variables, and passed by reference into the components
// that need it. There is no ambient configuration lookup anywhere else.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all CortexRE configuration.
type Config struct {
	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Agent pipeline behaviour
	Agent AgentConfig `yaml:"agent"`

	// Dataset location
	Data DataConfig `yaml:"data"`

	// HTTP API server
	Server ServerConfig `yaml:"server"`

	// Session persistence
	Session SessionConfig `yaml:"session"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, zai, openrouter
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// Sampling temperature. 0 is deterministic, recommended for structured
	// extraction over financial data.
	Temperature float64 `yaml:"temperature"`
}

// AgentConfig configures the guarded pipeline.
type AgentConfig struct {
	// MaxRevisions caps research->critique revision cycles per run.
	MaxRevisions int `yaml:"max_revisions"`

	// CritiqueScoreThreshold is the minimum weighted score (0-100) for the
	// critique stage to approve a draft.
	CritiqueScoreThreshold int `yaml:"critique_score_threshold"`

	// MaxToolIterations caps research loop iterations per cycle.
	MaxToolIterations int `yaml:"max_tool_iterations"`

	// ToolTimeout is the maximum time for a single tool execution.
	ToolTimeout string `yaml:"tool_timeout"`

	// SimilarityFloor is the minimum normalized similarity for a fuzzy
	// suggestion to be offered at all.
	SimilarityFloor float64 `yaml:"similarity_floor"`

	// MaxSuggestions caps the number of "did you mean" candidates.
	MaxSuggestions int `yaml:"max_suggestions"`
}

// DataConfig configures the portfolio dataset.
type DataConfig struct {
	// Dir is the directory holding the dataset file.
	Dir string `yaml:"dir"`

	// File is the dataset filename inside Dir. When empty, the first
	// .csv file found in Dir is used.
	File string `yaml:"file"`

	// WatchReload enables the fsnotify watcher that hot-reloads the
	// dataset when the file changes on disk.
	WatchReload bool `yaml:"watch_reload"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// SessionConfig configures conversation persistence.
type SessionConfig struct {
	// DBPath is the sqlite database path. ":memory:" is valid for tests.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig mirrors internal/logging's expectations.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Critique dimension weights. These are fixed by the scoring design, not
// configurable: accuracy dominates, format matters least.
const (
	WeightAccuracy     = 4
	WeightCompleteness = 3
	WeightClarity      = 2
	WeightFormat       = 1
)

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "",
			Model:       "",
			Timeout:     "2m",
			Temperature: 0.0,
		},
		Agent: AgentConfig{
			MaxRevisions:           3,
			CritiqueScoreThreshold: 80,
			MaxToolIterations:      8,
			ToolTimeout:            "30s",
			SimilarityFloor:        0.55,
			MaxSuggestions:         3,
		},
		Data: DataConfig{
			Dir:         "data",
			WatchReload: false,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "30s",
			WriteTimeout:    "5m",
			ShutdownTimeout: "10s",
		},
		Session: SessionConfig{
			DBPath: filepath.Join("data", "sessions.db"),
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Dir:       filepath.Join("data", "logs"),
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment variables are applied on top either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			if verr := cfg.Validate(); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "anthropic"
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("ZAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "zai"
		}
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openrouter"
		}
	}
	if model := os.Getenv("CORTEXRE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if dir := os.Getenv("CORTEXRE_DATA_DIR"); dir != "" {
		c.Data.Dir = dir
	}
	if addr := os.Getenv("CORTEXRE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if db := os.Getenv("CORTEXRE_SESSION_DB"); db != "" {
		c.Session.DBPath = db
	}
}

// Validate checks configured bounds.
func (c *Config) Validate() error {
	if c.Agent.MaxRevisions < 1 {
		return fmt.Errorf("agent.max_revisions must be >= 1, got %d", c.Agent.MaxRevisions)
	}
	if c.Agent.CritiqueScoreThreshold < 0 || c.Agent.CritiqueScoreThreshold > 100 {
		return fmt.Errorf("agent.critique_score_threshold must be in [0,100], got %d", c.Agent.CritiqueScoreThreshold)
	}
	if c.Agent.MaxToolIterations < 1 {
		return fmt.Errorf("agent.max_tool_iterations must be >= 1, got %d", c.Agent.MaxToolIterations)
	}
	if c.Agent.SimilarityFloor < 0 || c.Agent.SimilarityFloor > 1 {
		return fmt.Errorf("agent.similarity_floor must be in [0,1], got %v", c.Agent.SimilarityFloor)
	}
	if c.Agent.MaxSuggestions < 0 {
		return fmt.Errorf("agent.max_suggestions must be >= 0, got %d", c.Agent.MaxSuggestions)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0,2], got %v", c.LLM.Temperature)
	}
	return nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LLMTimeout parses the configured LLM timeout, with a sane floor.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 2*time.Minute)
}

// ToolTimeout parses the configured per-tool timeout.
func (c *Config) ToolTimeout() time.Duration {
	return parseDuration(c.Agent.ToolTimeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
