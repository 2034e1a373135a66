// Package config loads distill.yaml (public, checked-in-able) and an
// adjacent .secrets.yaml (API keys, never checked in), in the teacher's
// two-file split, then resolves every secret reference before the
// Task Controller ever sees a ModelConfig.
package config

import (
	"fmt"

	"github.com/kilnforge/distill/internal/modelclient"
	"github.com/kilnforge/distill/internal/taskstate"
)

// ModelEntry is one model_id -> backend mapping in distill.yaml.
type ModelEntry struct {
	ModelID          string `yaml:"model_id"`
	Dialect          string `yaml:"dialect"` // "chat" | "completion"
	BaseURL          string `yaml:"base_url,omitempty"`
	BackendModelName string `yaml:"backend_model_name,omitempty"`
	APIKey           string `yaml:"api_key,omitempty"`     // may be a ${env:...}/${file:...} ref
	APIKeyEnv        string `yaml:"api_key_env,omitempty"` // convenience: just the env var name
	TimeoutMs        int    `yaml:"timeout_ms,omitempty"`
}

// DefaultsConfig holds the §6 configuration defaults, overridable per
// run via CLI flags.
type DefaultsConfig struct {
	Workers            int     `yaml:"workers"`
	InflightMultiplier int     `yaml:"inflight_multiplier"`
	FsyncInterval      int     `yaml:"fsync_interval"`
	CheckpointInterval int     `yaml:"checkpoint_interval"`
	RateLimitRPS       float64 `yaml:"rate_limit_rps"`
	MaxBackoffSeconds  float64 `yaml:"max_backoff"`
	UnorderedWrite     bool    `yaml:"unordered_write"`
	TimeoutMs          int     `yaml:"timeout_ms"`
	Temperature        float64 `yaml:"temperature"`
	TopP               float64 `yaml:"top_p"`
	TopK               int     `yaml:"top_k"`
	MaxTokens          int     `yaml:"max_tokens"`
	TargetField        string  `yaml:"target_field"`
	QFieldName         string  `yaml:"q_field_name"`
	GenerationCount    int     `yaml:"generation_count"`
}

// LoggingConfig is the logging section of distill.yaml. It is parsed but
// not applied: the CLI builds its logger from the --verbose, --quiet and
// --log-file flags only.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "json" | "console"
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// StateStoreConfig selects the Task State Store backend.
type StateStoreConfig struct {
	Backend  string `yaml:"backend"` // "file" | "redis"
	Dir      string `yaml:"dir,omitempty"`
	RedisURL string `yaml:"redis_url,omitempty"`
}

// Config is the top-level shape of distill.yaml.
type Config struct {
	Models     []ModelEntry     `yaml:"models"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
	Logging    LoggingConfig    `yaml:"logging"`
	StateStore StateStoreConfig `yaml:"state_store"`
}

// DefaultConfig returns the §6 defaults before any file is loaded.
func DefaultConfig() Config {
	return Config{
		Defaults: DefaultsConfig{
			Workers:            8,
			InflightMultiplier: 4,
			FsyncInterval:      50,
			CheckpointInterval: 100,
			MaxBackoffSeconds:  8.0,
			TimeoutMs:          60000,
			Temperature:        0.7,
			TargetField:        "output",
			QFieldName:         "instruction",
			GenerationCount:    1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		StateStore: StateStoreConfig{
			Backend: "file",
			Dir:     ".distill/state",
		},
	}
}

// ToParams converts one model entry plus the effective defaults into a
// taskstate.Params skeleton; callers still need to fill in
// strategy-specific fields (target_field overrides, label_set, etc.)
// from CLI flags.
func (c Config) ToParams(modelID string) (taskstate.Params, error) {
	d := c.Defaults
	return taskstate.Params{
		ModelID:            modelID,
		Temperature:        d.Temperature,
		TopP:               d.TopP,
		TopK:               d.TopK,
		MaxTokens:          d.MaxTokens,
		TimeoutMs:          d.TimeoutMs,
		Workers:            d.Workers,
		InflightMultiplier: d.InflightMultiplier,
		FsyncInterval:      d.FsyncInterval,
		CheckpointInterval: d.CheckpointInterval,
		RateLimitRPS:       d.RateLimitRPS,
		MaxBackoffSeconds:  d.MaxBackoffSeconds,
		UnorderedWrite:     d.UnorderedWrite,
		GenerationCount:    d.GenerationCount,
		TargetField:        d.TargetField,
		QFieldName:         d.QFieldName,
	}, nil
}

// ModelConfigFor builds a modelclient.ModelConfig for modelID, resolving
// its secret reference via the loaded Secrets file, if any.
func (c Config) ModelConfigFor(modelID string, secrets Secrets) (modelclient.ModelConfig, error) {
	for _, m := range c.Models {
		if m.ModelID != modelID {
			continue
		}
		apiKey, err := resolveModelAPIKey(m, secrets)
		if err != nil {
			return modelclient.ModelConfig{}, err
		}
		dialect := modelclient.DialectChat
		if m.Dialect == string(modelclient.DialectCompletion) {
			dialect = modelclient.DialectCompletion
		}
		timeout := c.Defaults.TimeoutMs
		if m.TimeoutMs > 0 {
			timeout = m.TimeoutMs
		}
		return modelclient.ModelConfig{
			ModelID:          m.ModelID,
			Kind:             dialect,
			BaseURL:          m.BaseURL,
			APIKey:           apiKey,
			BackendModelName: m.BackendModelName,
			Timeout:          msToDuration(timeout),
		}, nil
	}
	return modelclient.ModelConfig{}, fmt.Errorf("config: model_id %q not declared in distill.yaml", modelID)
}
