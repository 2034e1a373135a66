package modelclient

import (
	"fmt"
	"sync"
	"time"
)

// DialectKind distinguishes chat-style backends (system + user messages)
// from plain completion-style backends (prompt concatenation), per §4.1.
type DialectKind string

const (
	DialectChat       DialectKind = "chat"
	DialectCompletion DialectKind = "completion"
)

// ModelConfig is one entry of the model_id -> {kind, base_url, auth,
// backend_model_name} mapping the Model Client consults to pick a vendor
// dialect, per §4.1.
type ModelConfig struct {
	ModelID          string
	Kind             DialectKind
	BaseURL          string
	APIKey           string
	BackendModelName string
	Timeout          time.Duration
}

// Factory builds a Client for a given ModelConfig.
type Factory func(cfg ModelConfig) (Client, error)

// Registry resolves an opaque model_id into a constructed Client, caching
// instances so repeated lookups for the same model reuse one connection.
type Registry struct {
	mu        sync.Mutex
	models    map[string]ModelConfig
	factories map[DialectKind]Factory
	clients   map[string]Client
}

// NewRegistry creates a registry with the built-in openai-dialect factory
// registered.
func NewRegistry() *Registry {
	r := &Registry{
		models:    make(map[string]ModelConfig),
		factories: make(map[DialectKind]Factory),
		clients:   make(map[string]Client),
	}
	r.RegisterFactory(DialectChat, NewOpenAIClient)
	r.RegisterFactory(DialectCompletion, NewOpenAIClient)
	return r
}

// RegisterFactory registers the constructor used for a given dialect kind.
func (r *Registry) RegisterFactory(kind DialectKind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Configure records a model_id -> config mapping without constructing a
// client yet (construction is lazy, on first Get).
func (r *Registry) Configure(cfg ModelConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[cfg.ModelID] = cfg
}

// Get returns the Client for model_id, constructing it on first use.
func (r *Registry) Get(modelID string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[modelID]; ok {
		return c, nil
	}

	cfg, ok := r.models[modelID]
	if !ok {
		return nil, fmt.Errorf("modelclient: unknown model_id %q", modelID)
	}

	factory, ok := r.factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("modelclient: no factory registered for dialect %q", cfg.Kind)
	}

	client, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("modelclient: failed to construct client for %q: %w", modelID, err)
	}

	r.clients[modelID] = client
	return client, nil
}

// Close closes every constructed client.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for id, c := range r.clients {
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("modelclient: closing %q: %w", id, err)
		}
	}
	r.clients = make(map[string]Client)
	return first
}
