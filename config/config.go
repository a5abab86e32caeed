package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full convomesh configuration.
type Config struct {
	Queue        QueueConfig        `mapstructure:"queue"`
	Model        ModelConfig        `mapstructure:"model"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Session      SessionConfig      `mapstructure:"session"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// QueueConfig contains conversation queue settings.
type QueueConfig struct {
	DebounceGap string `mapstructure:"debounce_gap"`
}

// ModelConfig contains model provider settings.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
}

// OrchestratorConfig contains planning and merge settings.
type OrchestratorConfig struct {
	MaxIterations  int     `mapstructure:"max_iterations"`
	MergePasses    int     `mapstructure:"merge_passes"`
	MergeThreshold float64 `mapstructure:"merge_threshold"`
	TaskTimeout    string  `mapstructure:"task_timeout"`
	HistoryLimit   int     `mapstructure:"history_limit"`
}

// SessionConfig contains session store settings.
type SessionConfig struct {
	Store       string `mapstructure:"store"` // memory or redis
	RedisAddr   string `mapstructure:"redis_addr"`
	TTL         string `mapstructure:"ttl"`
	MaxMessages int    `mapstructure:"max_messages"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// Load reads configuration from the given file (optional), applies
// CONVOMESH_* environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONVOMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults sets default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Queue.DebounceGap == "" {
		cfg.Queue.DebounceGap = "500ms"
	}

	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "openai"
	}

	if cfg.Orchestrator.MaxIterations == 0 {
		cfg.Orchestrator.MaxIterations = 3
	}

	if cfg.Orchestrator.MergePasses == 0 {
		cfg.Orchestrator.MergePasses = 2
	}

	if cfg.Orchestrator.MergeThreshold == 0 {
		cfg.Orchestrator.MergeThreshold = 7.0
	}

	if cfg.Orchestrator.TaskTimeout == "" {
		cfg.Orchestrator.TaskTimeout = "60s"
	}

	if cfg.Orchestrator.HistoryLimit == 0 {
		cfg.Orchestrator.HistoryLimit = 20
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}

	if cfg.Session.TTL == "" {
		cfg.Session.TTL = "720h"
	}

	if cfg.Session.MaxMessages == 0 {
		cfg.Session.MaxMessages = 200
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Queue.DebounceGap); err != nil {
		return fmt.Errorf("invalid debounce_gap: %w", err)
	}

	validProviders := map[string]bool{"openai": true, "anthropic": true, "mock": true}
	if !validProviders[c.Model.Provider] {
		return fmt.Errorf("invalid model provider: %s (must be openai, anthropic, or mock)", c.Model.Provider)
	}

	if c.Orchestrator.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}

	if _, err := time.ParseDuration(c.Orchestrator.TaskTimeout); err != nil {
		return fmt.Errorf("invalid task_timeout: %w", err)
	}

	validStores := map[string]bool{"memory": true, "redis": true}
	if !validStores[c.Session.Store] {
		return fmt.Errorf("invalid session store: %s (must be memory or redis)", c.Session.Store)
	}

	if c.Session.Store == "redis" && c.Session.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when session store is redis")
	}

	if _, err := time.ParseDuration(c.Session.TTL); err != nil {
		return fmt.Errorf("invalid ttl: %w", err)
	}

	return nil
}

// DebounceGap returns the parsed debounce gap. Call Validate first.
func (c *Config) DebounceGap() time.Duration {
	d, _ := time.ParseDuration(c.Queue.DebounceGap)
	return d
}

// TaskTimeout returns the parsed task timeout. Call Validate first.
func (c *Config) TaskTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Orchestrator.TaskTimeout)
	return d
}

// SessionTTL returns the parsed session TTL. Call Validate first.
func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Session.TTL)
	return d
}
