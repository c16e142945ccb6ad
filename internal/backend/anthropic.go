package backend

import (
	"net/http"

	"github.com/tidwall/gjson"
)

const (
	anthropicBaseURL   = "https://api.anthropic.com"
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 500
)

type anthropicRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system"`
	Messages  []ContextEntry `json:"messages"`
}

type anthropicBuilder struct{}

func (anthropicBuilder) Kind() Kind { return KindAnthropic }

func (anthropicBuilder) BuildRequest(history []ContextEntry, newMessage string, cfg Config) (RequestSpec, error) {
	base := cfg.BaseURL
	if base == "" {
		base = anthropicBaseURL
	}
	target, err := endpoint(KindAnthropic, base, "/v1/messages")
	if err != nil {
		return RequestSpec{}, err
	}

	// The Messages API wants the conversation to open with a user turn.
	msgs := withNewMessage(history, newMessage)
	for len(msgs) > 1 && msgs[0].Role != RoleUser {
		msgs = msgs[1:]
	}
	msgs = alternate(msgs)

	header := make(http.Header)
	header.Set("x-api-key", cfg.Token)
	header.Set("anthropic-version", anthropicVersion)

	payload := anthropicRequest{
		Model:     cfg.Model,
		MaxTokens: anthropicMaxTokens,
		System:    SystemPrompt,
		Messages:  msgs,
	}
	return jsonRequest(KindAnthropic, target, payload, header)
}

// alternate folds consecutive turns from the same role into one, since a
// failed send leaves two user turns back to back.
func alternate(msgs []ContextEntry) []ContextEntry {
	out := make([]ContextEntry, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}

func (anthropicBuilder) ParseResponse(status int, body []byte) (string, error) {
	if status != http.StatusOK {
		return "", statusError(KindAnthropic, status, body)
	}
	if !gjson.ValidBytes(body) {
		return "", newError(InvalidResponse, KindAnthropic, "body is not JSON")
	}
	text := gjson.GetBytes(body, "content.0.text")
	if text.Type != gjson.String {
		return "", newError(InvalidResponse, KindAnthropic, "missing content[0].text")
	}
	return text.String(), nil
}
