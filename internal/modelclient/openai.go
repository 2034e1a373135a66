package modelclient

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
)

// OpenAIClient implements Client against the OpenAI chat-completions API
// and any OpenAI-compatible endpoint (vLLM, DeepSeek, etc. via BaseURL).
type OpenAIClient struct {
	cfg    ModelConfig
	client openai.Client
}

// NewOpenAIClient is registered as the factory for both DialectChat and
// DialectCompletion.
func NewOpenAIClient(cfg ModelConfig) (Client, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{
		cfg:    cfg,
		client: openai.NewClient(opts...),
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if c.cfg.Kind == DialectCompletion {
		// Completion-style backends get no distinct system role, so the
		// system prompt and the user prompt are concatenated into one
		// message (§4.1: "for completion-style backends it concatenates").
		messages = append(messages, openai.UserMessage(concatPrompt(req.SystemPrompt, req.Prompt)))
	} else {
		if req.SystemPrompt != "" {
			messages = append(messages, openai.SystemMessage(req.SystemPrompt))
		}
		messages = append(messages, openai.UserMessage(req.Prompt))
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.backendModel(),
		Messages: messages,
	}
	if req.Params.Temperature > 0 {
		params.Temperature = openai.Float(req.Params.Temperature)
	}
	if req.Params.TopP > 0 {
		params.TopP = openai.Float(req.Params.TopP)
	}
	if req.Params.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Params.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.convertError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, &Error{Kind: KindMalformed, Message: "no choices returned"}
	}

	choice := completion.Choices[0]
	content := wrapReasoning(extractReasoning(completion.RawJSON()), choice.Message.Content)

	return &Response{
		Text:             content,
		Model:            completion.Model,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}, nil
}

// concatPrompt joins a system prompt and user prompt into the single
// message a completion-style backend expects, omitting the separator
// entirely when there is no system prompt to prepend.
func concatPrompt(systemPrompt, prompt string) string {
	if systemPrompt == "" {
		return prompt
	}
	return systemPrompt + "\n\n" + prompt
}

func (c *OpenAIClient) backendModel() string {
	if c.cfg.BackendModelName != "" {
		return c.cfg.BackendModelName
	}
	return c.cfg.ModelID
}

// extractReasoning pulls a DeepSeek-R1-style reasoning_content field out of
// the raw completion JSON without requiring the SDK to model it as a typed
// field — the same compatibility shim the original Python source applies
// to vendor reasoning extensions (see SPEC_FULL.md SUPPLEMENTED FEATURES).
func extractReasoning(raw string) string {
	if raw == "" {
		return ""
	}
	result := gjson.Get(raw, "choices.0.message.reasoning_content")
	return result.String()
}

func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	_, err := c.client.Models.List(ctx)
	if err != nil {
		return c.convertError(err)
	}
	return nil
}

func (c *OpenAIClient) Close() error { return nil }

// convertError maps the SDK's error surface onto the modelclient taxonomy.
func (c *OpenAIClient) convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return &Error{Kind: KindTransient, StatusCode: apiErr.StatusCode, RetryAfter: retryAfterFromHeader(apiErr), Message: apiErr.Message, Cause: err}
		case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return &Error{Kind: KindTransient, StatusCode: apiErr.StatusCode, Message: apiErr.Message, Cause: err}
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest, http.StatusNotFound:
			return &Error{Kind: KindClient, StatusCode: apiErr.StatusCode, Message: apiErr.Message, Cause: err}
		default:
			return &Error{Kind: KindClient, StatusCode: apiErr.StatusCode, Message: apiErr.Message, Cause: err}
		}
	}

	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Message: "request canceled", Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Message: "request timed out", Cause: err}
	}

	return &Error{Kind: KindTransient, Message: "network error", Cause: err}
}

// retryAfterFromHeader pulls the server's Retry-After hint, if present, so
// the Retry Policy (§4.3) can honor it over its own computed delay.
func retryAfterFromHeader(apiErr *openai.Error) int {
	if apiErr.Response == nil {
		return 0
	}
	v := apiErr.Response.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	v = strings.TrimSpace(v)
	seconds := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0
		}
		seconds = seconds*10 + int(r-'0')
	}
	return seconds
}
