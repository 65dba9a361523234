package config

import (
	"fmt"
	"os"
	"time"

	"ucode/internal/judge/poller"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL     = "http://127.0.0.1:8086"
	DefaultTimeout     = 10 * time.Second
	DefaultStatePath   = "configs/cli_state.json"
	DefaultHistoryPath = "configs/.cli_history"
)

// Config holds CLI configuration.
type Config struct {
	BaseURL     string        `yaml:"baseURL"`
	Timeout     time.Duration `yaml:"timeout"`
	StatePath   string        `yaml:"statePath"`
	HistoryPath string        `yaml:"historyPath"`
	PrettyJSON  *bool         `yaml:"prettyJSON"`
	Poll        PollConfig    `yaml:"poll"`
}

// PollConfig bounds client-side waiting for a verdict.
type PollConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Interval    time.Duration `yaml:"interval"`
	// Concurrency caps parallel polls of "submission watch"; 0 means no cap.
	Concurrency int `yaml:"concurrency"`
}

// Poller returns the poll budget in the poller's terms.
func (p PollConfig) Poller() poller.Config {
	return poller.Config{MaxAttempts: p.MaxAttempts, Interval: p.Interval}.Normalize()
}

func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file failed: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StatePath == "" {
		cfg.StatePath = DefaultStatePath
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = DefaultHistoryPath
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
	if cfg.Poll.Concurrency < 0 {
		cfg.Poll.Concurrency = 0
	}
}
