package modelclient

import (
	"context"
	"testing"
)

type stubClient struct{ closed bool }

func (s *stubClient) Generate(ctx context.Context, req Request) (*Response, error) {
	return &Response{Text: "stub"}, nil
}
func (s *stubClient) HealthCheck(ctx context.Context) error { return nil }
func (s *stubClient) Close() error                          { s.closed = true; return nil }

func TestRegistry_GetConstructsLazilyAndCaches(t *testing.T) {
	r := &Registry{
		models:    make(map[string]ModelConfig),
		factories: make(map[DialectKind]Factory),
		clients:   make(map[string]Client),
	}
	calls := 0
	var built *stubClient
	r.RegisterFactory(DialectChat, func(cfg ModelConfig) (Client, error) {
		calls++
		built = &stubClient{}
		return built, nil
	})
	r.Configure(ModelConfig{ModelID: "m1", Kind: DialectChat})

	c1, err := r.Get("m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c2, err := r.Get("m1")
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected the second Get to return the cached client")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one factory invocation, got %d", calls)
	}
	_ = built
}

func TestRegistry_GetUnknownModelID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("never-configured")
	if err == nil {
		t.Fatalf("expected an error for an unconfigured model_id")
	}
}

func TestRegistry_GetNoFactoryForDialect(t *testing.T) {
	r := &Registry{
		models:    make(map[string]ModelConfig),
		factories: make(map[DialectKind]Factory),
		clients:   make(map[string]Client),
	}
	r.Configure(ModelConfig{ModelID: "m1", Kind: DialectCompletion})

	_, err := r.Get("m1")
	if err == nil {
		t.Fatalf("expected an error when no factory is registered for the dialect")
	}
}

func TestRegistry_CloseClosesEveryClient(t *testing.T) {
	r := &Registry{
		models:    make(map[string]ModelConfig),
		factories: make(map[DialectKind]Factory),
		clients:   make(map[string]Client),
	}
	s := &stubClient{}
	r.clients["m1"] = s

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !s.closed {
		t.Fatalf("expected Close to close every constructed client")
	}
	if len(r.clients) != 0 {
		t.Fatalf("expected the client cache to be cleared after Close")
	}
}
