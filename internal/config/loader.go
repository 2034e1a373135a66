package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	PublicConfigFile  = "distill.yaml"
	SecretsConfigFile = ".secrets.yaml"
)

// Load loads distill.yaml from configPath, or by searching the usual
// locations if configPath is empty, falling back to DefaultConfig if
// nothing is found.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	path := configPath
	if path == "" {
		path = findFirst([]string{PublicConfigFile, "distill.yml"})
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// LoadSecrets loads .secrets.yaml, returning an empty Secrets if absent.
func LoadSecrets(secretsPath string) (Secrets, error) {
	var secrets Secrets
	secrets.APIKeys = make(map[string]string)

	path := secretsPath
	if path == "" {
		path = findFirst([]string{SecretsConfigFile, ".secrets.yml"})
	}
	if path == "" {
		return secrets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Secrets{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return Secrets{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if secrets.APIKeys == nil {
		secrets.APIKeys = make(map[string]string)
	}
	return secrets, nil
}

func findFirst(candidates []string) string {
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range candidates {
			p := filepath.Join(home, ".config", "distill", name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

// Validate checks the loaded configuration for CONFIG_ERROR-worthy
// problems before any task is started.
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("config: no models declared")
	}
	seen := make(map[string]bool)
	for _, m := range c.Models {
		if m.ModelID == "" {
			return fmt.Errorf("config: a model entry is missing model_id")
		}
		if seen[m.ModelID] {
			return fmt.Errorf("config: duplicate model_id %q", m.ModelID)
		}
		seen[m.ModelID] = true
	}
	if c.Defaults.Workers <= 0 {
		return fmt.Errorf("config: defaults.workers must be positive")
	}
	if c.Defaults.InflightMultiplier <= 0 {
		return fmt.Errorf("config: defaults.inflight_multiplier must be positive")
	}
	return nil
}
