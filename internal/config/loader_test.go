package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Defaults.Workers != DefaultConfig().Defaults.Workers {
		t.Fatalf("expected default workers when no file is found, got %d", cfg.Defaults.Workers)
	}
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distill.yaml")
	content := `
models:
  - model_id: gpt-4o-mini
    dialect: chat
    api_key_env: TEST_KEY
defaults:
  workers: 16
  inflight_multiplier: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Models) != 1 || cfg.Models[0].ModelID != "gpt-4o-mini" {
		t.Fatalf("unexpected models: %+v", cfg.Models)
	}
	if cfg.Defaults.Workers != 16 || cfg.Defaults.InflightMultiplier != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg.Defaults)
	}
}

func TestValidate_RejectsNoModels(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error when no models are declared")
	}
}

func TestValidate_RejectsDuplicateModelID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelEntry{{ModelID: "m1"}, {ModelID: "m1"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for a duplicate model_id")
	}
}

func TestValidate_RejectsNonPositiveWorkers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelEntry{{ModelID: "m1"}}
	cfg.Defaults.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for zero workers")
	}
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelEntry{{ModelID: "m1"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected a well-formed config to validate, got %v", err)
	}
}

func TestModelConfigFor_UnknownModelIsAnError(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.ModelConfigFor("nope", Secrets{})
	if err == nil {
		t.Fatalf("expected an error for an undeclared model_id")
	}
}

func TestModelConfigFor_ResolvesDialectAndTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []ModelEntry{{ModelID: "m1", Dialect: "completion", APIKey: "sk-x", TimeoutMs: 5000}}

	mc, err := cfg.ModelConfigFor("m1", Secrets{})
	if err != nil {
		t.Fatalf("ModelConfigFor: %v", err)
	}
	if mc.Kind != "completion" {
		t.Fatalf("expected the completion dialect, got %q", mc.Kind)
	}
	if mc.APIKey != "sk-x" {
		t.Fatalf("expected the resolved api key, got %q", mc.APIKey)
	}
	if mc.Timeout.Milliseconds() != 5000 {
		t.Fatalf("expected the per-model timeout override, got %v", mc.Timeout)
	}
}
