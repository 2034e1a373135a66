package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveModelAPIKey_InlineValueWins(t *testing.T) {
	m := ModelEntry{ModelID: "m1", APIKey: "sk-inline"}
	got, err := resolveModelAPIKey(m, Secrets{})
	if err != nil {
		t.Fatalf("resolveModelAPIKey: %v", err)
	}
	if got != "sk-inline" {
		t.Fatalf("expected the inline api_key, got %q", got)
	}
}

func TestResolveModelAPIKey_APIKeyEnv(t *testing.T) {
	t.Setenv("TEST_DISTILL_KEY", "sk-from-env")
	m := ModelEntry{ModelID: "m1", APIKeyEnv: "TEST_DISTILL_KEY"}
	got, err := resolveModelAPIKey(m, Secrets{})
	if err != nil {
		t.Fatalf("resolveModelAPIKey: %v", err)
	}
	if got != "sk-from-env" {
		t.Fatalf("expected the env-sourced key, got %q", got)
	}
}

func TestResolveModelAPIKey_SecretRefEnv(t *testing.T) {
	t.Setenv("TEST_DISTILL_REF_KEY", "sk-ref")
	m := ModelEntry{ModelID: "m1", APIKey: "${env:TEST_DISTILL_REF_KEY}"}
	got, err := resolveModelAPIKey(m, Secrets{})
	if err != nil {
		t.Fatalf("resolveModelAPIKey: %v", err)
	}
	if got != "sk-ref" {
		t.Fatalf("expected the dereferenced env value, got %q", got)
	}
}

func TestResolveModelAPIKey_SecretRefFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(path, []byte("sk-file-secret\n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}
	m := ModelEntry{ModelID: "m1", APIKey: "${file:" + path + "}"}
	got, err := resolveModelAPIKey(m, Secrets{})
	if err != nil {
		t.Fatalf("resolveModelAPIKey: %v", err)
	}
	if got != "sk-file-secret" {
		t.Fatalf("expected the trimmed file contents, got %q", got)
	}
}

func TestResolveModelAPIKey_SecretsFileFallback(t *testing.T) {
	m := ModelEntry{ModelID: "m1"}
	secrets := Secrets{APIKeys: map[string]string{"m1": "sk-from-secrets-file"}}
	got, err := resolveModelAPIKey(m, secrets)
	if err != nil {
		t.Fatalf("resolveModelAPIKey: %v", err)
	}
	if got != "sk-from-secrets-file" {
		t.Fatalf("expected the secrets-file value, got %q", got)
	}
}

func TestResolveModelAPIKey_DefaultEnvFallback(t *testing.T) {
	t.Setenv("GPT_4O_MINI_API_KEY", "sk-default-env")
	m := ModelEntry{ModelID: "gpt-4o-mini"}
	got, err := resolveModelAPIKey(m, Secrets{})
	if err != nil {
		t.Fatalf("resolveModelAPIKey: %v", err)
	}
	if got != "sk-default-env" {
		t.Fatalf("expected the default env-var fallback, got %q", got)
	}
}

func TestResolveModelAPIKey_NothingFoundIsAnError(t *testing.T) {
	m := ModelEntry{ModelID: "unconfigured-model"}
	_, err := resolveModelAPIKey(m, Secrets{})
	if err == nil {
		t.Fatalf("expected an error when no api key source is configured")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("short"); got != "********" {
		t.Fatalf("expected a short secret fully masked, got %q", got)
	}
	if got := MaskSecret("sk-1234567890abcdef"); got != "sk-1...cdef" {
		t.Fatalf("expected a prefix/suffix reveal, got %q", got)
	}
}
