package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"studentsupport/internal/logger"
)

// Config is the full pipeline configuration loaded from config.yaml.
// API keys come from the environment, never from the file.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Router   RouterConfig   `yaml:"router"`
	Session  SessionConfig  `yaml:"session"`
	Search   SearchConfig   `yaml:"search"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      logger.Config  `yaml:"log"`
}

// LLMConfig selects and tunes the chat model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, ollama, deepseek, ark
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	APIKey      string  `yaml:"-"` // from OPENAI_API_KEY / provider env var
}

type RouterConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

type SessionConfig struct {
	Backend      string `yaml:"backend"` // memory or redis
	TTLSeconds   int    `yaml:"ttl_seconds"`
	MaxTurns     int    `yaml:"max_turns"`
	HistoryTurns int    `yaml:"history_turns"`
}

// TTL returns the session TTL as a duration.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

type SearchConfig struct {
	TopK           int `yaml:"top_k"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type PipelineConfig struct {
	LLMTimeoutSeconds int `yaml:"llm_timeout_seconds"`
}

func (p PipelineConfig) LLMTimeout() time.Duration {
	return time.Duration(p.LLMTimeoutSeconds) * time.Second
}

type AuditConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads configuration from a YAML file and fills provider credentials
// from the environment.
func Load(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	config.LLM.APIKey = apiKeyFromEnv(config.LLM.Provider)
	return config, nil
}

// Default returns the configuration used when a field is absent from the
// YAML file. Thresholds match the router and session contracts.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			MaxTokens:   800,
			Temperature: 0.1,
		},
		Router: RouterConfig{
			ConfidenceThreshold: 0.6,
		},
		Session: SessionConfig{
			Backend:      "memory",
			TTLSeconds:   90 * 24 * 3600, // 90 days
			MaxTurns:     50,
			HistoryTurns: 5,
		},
		Search: SearchConfig{
			TopK:           5,
			TimeoutSeconds: 5,
		},
		Pipeline: PipelineConfig{
			LLMTimeoutSeconds: 30,
		},
		Audit: AuditConfig{
			Dir: "data/audit",
		},
		Log: logger.Config{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case "deepseek":
		return os.Getenv("DEEPSEEK_API_KEY")
	case "ark":
		return os.Getenv("ARK_API_KEY")
	case "ollama":
		return "" // local, no key
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}
