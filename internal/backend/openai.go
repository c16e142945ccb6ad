package backend

import (
	"net/http"

	"github.com/tidwall/gjson"
)

const (
	openAIBaseURL   = "https://api.openai.com"
	openAIMaxTokens = 500
)

// chatCompletionRequest is the body shared by OpenAI and OpenClaw.
type chatCompletionRequest struct {
	Model     string         `json:"model"`
	Messages  []ContextEntry `json:"messages"`
	MaxTokens int            `json:"max_tokens,omitempty"`
}

type openAIBuilder struct{}

func (openAIBuilder) Kind() Kind { return KindOpenAI }

func (openAIBuilder) BuildRequest(history []ContextEntry, newMessage string, cfg Config) (RequestSpec, error) {
	base := cfg.BaseURL
	if base == "" {
		base = openAIBaseURL
	}
	target, err := endpoint(KindOpenAI, base, "/v1/chat/completions")
	if err != nil {
		return RequestSpec{}, err
	}
	payload := chatCompletionRequest{
		Model:     cfg.Model,
		Messages:  chatMessages(history, newMessage),
		MaxTokens: openAIMaxTokens,
	}
	return jsonRequest(KindOpenAI, target, payload, bearer(nil, cfg.Token))
}

func (openAIBuilder) ParseResponse(status int, body []byte) (string, error) {
	return parseChatCompletion(KindOpenAI, status, body)
}

// chatMessages prefixes the conversation with the system prompt.
func chatMessages(history []ContextEntry, newMessage string) []ContextEntry {
	msgs := []ContextEntry{{Role: RoleSystem, Content: SystemPrompt}}
	return append(msgs, withNewMessage(history, newMessage)...)
}

func parseChatCompletion(k Kind, status int, body []byte) (string, error) {
	if status != http.StatusOK {
		return "", statusError(k, status, body)
	}
	if !gjson.ValidBytes(body) {
		return "", newError(InvalidResponse, k, "body is not JSON")
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if content.Type != gjson.String {
		return "", newError(InvalidResponse, k, "missing choices[0].message.content")
	}
	return content.String(), nil
}
