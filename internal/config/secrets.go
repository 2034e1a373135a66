package config

import (
	"fmt"
	"os"
	"strings"
)

// SecretType selects how a secret is dereferenced (grounded on the
// teacher's config/secrets.go ${type:value} scheme).
type SecretType string

const (
	SecretTypeEnv   SecretType = "env"
	SecretTypeFile  SecretType = "file"
	SecretTypePlain SecretType = "plain"
)

// Secrets is the parsed shape of .secrets.yaml: a flat map from model_id
// to API key (itself possibly a ${env:...}/${file:...} reference, kept
// unresolved until first use).
type Secrets struct {
	APIKeys map[string]string `yaml:"api_keys"`
}

// resolveModelAPIKey resolves m's API key using the same priority order
// as the teacher: an inline non-reference value, an explicit env var
// name, a secret-reference string, the secrets file entry, then the
// <MODEL_ID>_API_KEY env var (model_id upper-cased, '-' replaced by '_').
func resolveModelAPIKey(m ModelEntry, secrets Secrets) (string, error) {
	if m.APIKey != "" && !isSecretRef(m.APIKey) {
		return m.APIKey, nil
	}

	if m.APIKeyEnv != "" {
		if v := os.Getenv(m.APIKeyEnv); v != "" {
			return v, nil
		}
	}

	if m.APIKey != "" && isSecretRef(m.APIKey) {
		return resolveSecretRef(m.APIKey)
	}

	if v, ok := secrets.APIKeys[m.ModelID]; ok {
		if isSecretRef(v) {
			return resolveSecretRef(v)
		}
		return v, nil
	}

	defaultEnv := strings.ToUpper(strings.ReplaceAll(m.ModelID, "-", "_")) + "_API_KEY"
	if v := os.Getenv(defaultEnv); v != "" {
		return v, nil
	}

	return "", fmt.Errorf("config: no API key found for model_id %q (checked inline value, api_key_env, secrets file, and %s)", m.ModelID, defaultEnv)
}

func isSecretRef(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}")
}

// resolveSecretRef resolves "${type:value}" references: ${env:VAR},
// ${file:/path}, ${plain:literal}.
func resolveSecretRef(ref string) (string, error) {
	inner := ref[2 : len(ref)-1]
	parts := strings.SplitN(inner, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("config: invalid secret reference %q", ref)
	}

	switch SecretType(parts[0]) {
	case SecretTypeEnv:
		v := os.Getenv(parts[1])
		if v == "" {
			return "", fmt.Errorf("config: environment variable %q not set", parts[1])
		}
		return v, nil
	case SecretTypeFile:
		data, err := os.ReadFile(parts[1])
		if err != nil {
			return "", fmt.Errorf("config: reading secret file %q: %w", parts[1], err)
		}
		return strings.TrimSpace(string(data)), nil
	case SecretTypePlain:
		return parts[1], nil
	default:
		return "", fmt.Errorf("config: unknown secret type %q", parts[0])
	}
}

// MaskSecret returns a display-safe version of a secret value.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
