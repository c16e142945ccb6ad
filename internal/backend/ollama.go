package backend

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const ollamaPreamble = "You are Krab, a friendly AI crab assistant. Be helpful and fun."

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaBuilder uses the single-prompt /api/generate endpoint, so the
// conversation is rendered as a transcript.
type ollamaBuilder struct{}

func (ollamaBuilder) Kind() Kind { return KindOllama }

func (ollamaBuilder) BuildRequest(history []ContextEntry, newMessage string, cfg Config) (RequestSpec, error) {
	target, err := endpoint(KindOllama, cfg.BaseURL, "/api/generate")
	if err != nil {
		return RequestSpec{}, err
	}
	payload := ollamaGenerateRequest{
		Model:  cfg.Model,
		Prompt: transcript(withNewMessage(history, newMessage)),
	}
	return jsonRequest(KindOllama, target, payload, nil)
}

func (ollamaBuilder) ParseResponse(status int, body []byte) (string, error) {
	if status != http.StatusOK {
		return "", statusError(KindOllama, status, body)
	}
	if !gjson.ValidBytes(body) {
		return "", newError(InvalidResponse, KindOllama, "body is not JSON")
	}
	res := gjson.GetBytes(body, "response")
	if res.Type != gjson.String {
		return "", newError(InvalidResponse, KindOllama, "missing response")
	}
	return strings.TrimSpace(res.String()), nil
}

// transcript renders entries as "User:"/"Krab:" turns ending with an open
// "Krab:" line for the model to complete.
func transcript(entries []ContextEntry) string {
	var b strings.Builder
	b.WriteString(ollamaPreamble)
	b.WriteString("\n\n")
	for _, e := range entries {
		if e.Role == RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Krab: ")
		}
		b.WriteString(e.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Krab:")
	return b.String()
}
