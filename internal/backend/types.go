package backend

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Role tags a context entry for the provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Config holds the per-kind connection settings. Token is the bearer token
// for OpenClaw and custom endpoints and the API key for OpenAI and Anthropic.
type Config struct {
	BaseURL string `json:"base_url,omitempty"`
	Token   string `json:"token,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ChatMessage is one entry of the conversation log. It is never modified
// after creation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	FromUser  bool      `json:"from_user"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a message typed by the user.
func NewUserMessage(content string, at time.Time) ChatMessage {
	return ChatMessage{ID: uuid.NewString(), Content: content, FromUser: true, Timestamp: at}
}

// NewAssistantMessage creates a message produced by a backend.
func NewAssistantMessage(content string, at time.Time) ChatMessage {
	return ChatMessage{ID: uuid.NewString(), Content: content, Timestamp: at}
}

// Role returns the provider role of the message author.
func (m ChatMessage) Role() Role {
	if m.FromUser {
		return RoleUser
	}
	return RoleAssistant
}

// ContextEntry is a message as it is handed to a request builder.
type ContextEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RequestSpec describes one HTTP call without performing it.
type RequestSpec struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}
