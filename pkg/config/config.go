package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Server    ServerConfig              `yaml:"server"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Agent     AgentConfig               `yaml:"agent"`
	Memory    MemoryConfig              `yaml:"memory"`
}

type AppConfig struct {
	Name       string `yaml:"name"`
	PromptsDir string `yaml:"prompts_dir"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type ProviderConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
	BaseURL        string `yaml:"base_url,omitempty"`
	Enabled        bool   `yaml:"enabled"`
}

// PhaseConfig holds the generation parameters for one completion phase.
type PhaseConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Seed        int     `yaml:"seed"`
}

type AgentConfig struct {
	MaxChallengeCount int `yaml:"max_challenge_count"`
	HistoryMaxTurns   int `yaml:"history_max_turns"`

	Planner       PhaseConfig `yaml:"planner"`
	ToolSelection PhaseConfig `yaml:"tool_selection"`
	SubtaskAnswer PhaseConfig `yaml:"subtask_answer"`
	Reflection    PhaseConfig `yaml:"reflection"`
	FinalAnswer   PhaseConfig `yaml:"final_answer"`
}

type MemoryConfig struct {
	RunsPath  string `yaml:"runs_path"`
	CorpusDir string `yaml:"corpus_dir"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tansaku"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Agent.MaxChallengeCount <= 0 {
		c.Agent.MaxChallengeCount = 3
	}
	if c.Memory.RunsPath == "" {
		c.Memory.RunsPath = "data/runs.db"
	}

	_, provider := c.GetDefaultProvider()
	for _, phase := range []*PhaseConfig{
		&c.Agent.Planner,
		&c.Agent.ToolSelection,
		&c.Agent.SubtaskAnswer,
		&c.Agent.Reflection,
		&c.Agent.FinalAnswer,
	} {
		if phase.Model == "" {
			phase.Model = provider.Model
		}
	}
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}
