package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/clawinfra/clawrouter/internal/config"
)

// Result is one upstream attempt's outcome. A non-2xx status is still a
// Result, not an error; Invoke returns an error only for transport-level
// failures (connect, TLS, timeout, cancelled context).
type Result struct {
	StatusCode   int
	Body         []byte
	InputTokens  *int64
	OutputTokens *int64
}

// OK reports whether the attempt was an HTTP success.
func (r *Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Invoker sends a chat request to one provider. Implementations pick the
// wire codec from the provider's type.
type Invoker interface {
	Invoke(ctx context.Context, provider *config.Provider, model string, req *ChatRequest) (*Result, error)
}

// HTTPInvoker is the production Invoker. One shared http.Client; the
// per-attempt deadline comes from the caller's context.
type HTTPInvoker struct {
	client *http.Client
}

// NewHTTPInvoker creates an HTTPInvoker.
func NewHTTPInvoker() *HTTPInvoker {
	return &HTTPInvoker{client: &http.Client{}}
}

// Invoke dispatches on the provider type. Anthropic speaks its own
// messages protocol; every other type is OpenAI-compatible passthrough.
func (h *HTTPInvoker) Invoke(ctx context.Context, provider *config.Provider, model string, req *ChatRequest) (*Result, error) {
	switch provider.Type {
	case config.ProviderAnthropic:
		return h.invokeAnthropic(ctx, provider, model, req)
	default:
		return h.invokeOpenAI(ctx, provider, model, req)
	}
}

// invokeOpenAI forwards the body verbatim (model rewritten) to an
// OpenAI-compatible endpoint and returns the upstream body untouched.
func (h *HTTPInvoker) invokeOpenAI(ctx context.Context, provider *config.Provider, model string, req *ChatRequest) (*Result, error) {
	body, err := req.EncodeBody(model)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := provider.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	result := &Result{StatusCode: resp.StatusCode, Body: respBody}
	if result.OK() {
		result.InputTokens, result.OutputTokens = parseOpenAIUsage(respBody)
	}
	return result, nil
}

// parseOpenAIUsage pulls prompt/completion token counts from an OpenAI
// chat-completion body, when present.
func parseOpenAIUsage(body []byte) (*int64, *int64) {
	var parsed struct {
		Usage *struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Usage == nil {
		return nil, nil
	}
	in, out := parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens
	return &in, &out
}

// ErrorMessage extracts a human-readable message from an upstream error
// body, falling back to the raw body (truncated) when it is not the
// usual {"error":{"message":…}} shape.
func ErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
