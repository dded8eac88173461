package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChatRequest is the inbound chat-completion body. Model and Messages
// are pulled out; every other top-level field is preserved verbatim in
// Extra so the gateway can proxy parameters it does not understand.
type ChatRequest struct {
	Model    string
	Messages []json.RawMessage
	Extra    map[string]json.RawMessage
}

// message is the subset of a chat message the core inspects.
type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentPart is one element of an array-style message content.
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UnmarshalJSON implements json.Unmarshaler, splitting known fields from
// the passthrough remainder.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if m, ok := raw["model"]; ok {
		if err := json.Unmarshal(m, &r.Model); err != nil {
			return fmt.Errorf("providers: model field: %w", err)
		}
		delete(raw, "model")
	}
	if msgs, ok := raw["messages"]; ok {
		if err := json.Unmarshal(msgs, &r.Messages); err != nil {
			return fmt.Errorf("providers: messages field: %w", err)
		}
		delete(raw, "messages")
	}
	r.Extra = raw
	return nil
}

// EncodeBody serialises the request as an outbound OpenAI-style body
// with the model field rewritten to model.
func (r *ChatRequest) EncodeBody(model string) ([]byte, error) {
	body := make(map[string]json.RawMessage, len(r.Extra)+2)
	for k, v := range r.Extra {
		body[k] = v
	}
	m, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}
	body["model"] = m
	msgs, err := json.Marshal(r.Messages)
	if err != nil {
		return nil, err
	}
	body["messages"] = msgs
	return json.Marshal(body)
}

// Text returns the concatenation of all message contents, role-agnostic,
// for complexity scoring. Array-style contents contribute their text
// parts.
func (r *ChatRequest) Text() string {
	var parts []string
	for _, raw := range r.Messages {
		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if t, ok := ContentText(msg.Content); ok {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// ContentText extracts the text of a message content value, which may be
// a plain string or an array of typed parts.
func ContentText(content json.RawMessage) (string, bool) {
	if len(content) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s, true
	}
	var arr []contentPart
	if err := json.Unmarshal(content, &arr); err == nil {
		var b strings.Builder
		for _, p := range arr {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String(), true
	}
	return "", false
}

// Roles decodes the role and content of every message. Undecodable
// entries are skipped.
func (r *ChatRequest) Roles() []ParsedMessage {
	out := make([]ParsedMessage, 0, len(r.Messages))
	for _, raw := range r.Messages {
		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		text, _ := ContentText(msg.Content)
		out = append(out, ParsedMessage{Role: msg.Role, Content: text})
	}
	return out
}

// ParsedMessage is a decoded (role, content-text) pair.
type ParsedMessage struct {
	Role    string
	Content string
}

// MaxTokens returns the request's max_tokens parameter, or 0 when absent
// or malformed.
func (r *ChatRequest) MaxTokens() int {
	raw, ok := r.Extra["max_tokens"]
	if !ok {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

// Stream reports whether the request asked for a streaming response.
func (r *ChatRequest) Stream() bool {
	raw, ok := r.Extra["stream"]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}
