// Package modelclient adapts vendor-specific LLM APIs to a single normalized
// contract, per §4.1 of the distillation engine design: callers hand over a
// (prompt, system_prompt, sampling params) tuple and get back either text or
// a typed, retry-classifiable error.
package modelclient

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a Client error for the retry policy (§4.3).
type ErrorKind string

const (
	// KindTransient covers HTTP 408/429/5xx, connection resets, and
	// timeouts — the retry policy may retry these.
	KindTransient ErrorKind = "TRANSIENT"
	// KindClient covers 4xx responses other than 408/429: the request
	// itself is wrong and retrying it verbatim cannot help.
	KindClient ErrorKind = "CLIENT"
	// KindMalformed covers non-JSON or unexpected-shape responses.
	KindMalformed ErrorKind = "MALFORMED"
	// KindCancelled covers caller-side context cancellation.
	KindCancelled ErrorKind = "CANCELLED"
)

// Error is the typed error returned by Client.Generate.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	RetryAfter int // seconds hinted by the server, 0 if absent
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("modelclient: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("modelclient: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether the retry policy is allowed to retry this
// error class at all (§4.1/§4.3: only TRANSIENT is retryable).
func (e *Error) IsRetryable() bool { return e != nil && e.Kind == KindTransient }

// Classify extracts the modelclient.Error from err, if any.
func Classify(err error) (*Error, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// Params enumerates sampling parameters, as constrained by §4.1.
type Params struct {
	Temperature float64 // (0,2]
	TopP        float64 // (0,1], 0 = unset
	TopK        int     // [0, inf), 0 = unset
	MaxTokens   int     // [1, model_cap]
	TimeoutMs   int
}

// Request is a normalized generation request.
type Request struct {
	ModelID      string
	Prompt       string
	SystemPrompt string
	Params       Params
}

// Response is a normalized generation result.
type Response struct {
	// Text is the model's answer with any vendor reasoning block already
	// folded in as a leading <think>...</think> sentinel (§4.1, §9); it is
	// the Prompt Builder's job, not this package's, to strip it back out.
	Text string

	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the contract every vendor dialect adapter implements.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

const thinkOpen = "<think>"
const thinkClose = "</think>"

// wrapReasoning prepends a chain-of-thought block, when present, to the
// main content using the sentinel contract specified in §4.1/§9. Downstream
// stripping happens in the Prompt Builder.
func wrapReasoning(reasoning, content string) string {
	if reasoning == "" {
		return content
	}
	return thinkOpen + "\n" + reasoning + "\n" + thinkClose + "\n\n" + content
}
