package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clawinfra/clawrouter/internal/config"
)

const anthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// invokeAnthropic translates the OpenAI-shaped request into Anthropic's
// messages protocol and the response back into an OpenAI chat completion,
// so callers always see one wire format.
func (h *HTTPInvoker) invokeAnthropic(ctx context.Context, provider *config.Provider, model string, req *ChatRequest) (*Result, error) {
	body := anthropicRequest{
		Model:     model,
		MaxTokens: 4096,
	}

	for _, m := range req.Roles() {
		if m.Role == "system" {
			if body.System != "" {
				body.System += "\n"
			}
			body.System += m.Content
			continue
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	if n := req.MaxTokens(); n > 0 {
		body.MaxTokens = n
	}
	if raw, ok := req.Extra["temperature"]; ok {
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			body.Temperature = &v
		}
	}
	if raw, ok := req.Extra["top_p"]; ok {
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			body.TopP = &v
		}
	}
	if raw, ok := req.Extra["stop"]; ok {
		var one string
		var many []string
		if err := json.Unmarshal(raw, &one); err == nil {
			body.StopSequences = []string{one}
		} else if err := json.Unmarshal(raw, &many); err == nil {
			body.StopSequences = many
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := provider.Endpoint
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1/messages"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", provider.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

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
	if !result.OK() {
		return result, nil
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		// Unparseable success body: pass it through untranslated.
		return result, nil
	}

	in, out := apiResp.Usage.InputTokens, apiResp.Usage.OutputTokens
	result.InputTokens, result.OutputTokens = &in, &out
	result.Body = toOpenAICompletion(&apiResp)
	return result, nil
}

// toOpenAICompletion renders an Anthropic response as an OpenAI
// chat.completion body.
func toOpenAICompletion(resp *anthropicResponse) []byte {
	content := ""
	for _, c := range resp.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}

	finish := "stop"
	if resp.StopReason == "max_tokens" {
		finish = "length"
	}

	out := map[string]any{
		"id":      resp.ID,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   resp.Model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": finish,
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     resp.Usage.InputTokens,
			"completion_tokens": resp.Usage.OutputTokens,
			"total_tokens":      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return data
}
