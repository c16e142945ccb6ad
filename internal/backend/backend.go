package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Builder defines the interface that every provider adapter must implement.
// Both methods are pure: no I/O happens here.
type Builder interface {
	// Kind returns the backend kind the builder serves.
	Kind() Kind

	// BuildRequest turns the rolling context and the new user message into
	// a provider-specific HTTP request.
	BuildRequest(history []ContextEntry, newMessage string, cfg Config) (RequestSpec, error)

	// ParseResponse extracts the assistant reply from a provider response.
	ParseResponse(status int, body []byte) (string, error)
}

// NewBuilder returns the request builder for kind k.
// This factory function switches on the kind and returns the matching adapter.
func NewBuilder(k Kind) (Builder, error) {
	switch k {
	case KindOpenClaw:
		return openClawBuilder{}, nil
	case KindOpenAI:
		return openAIBuilder{}, nil
	case KindOllama:
		return ollamaBuilder{}, nil
	case KindAnthropic:
		return anthropicBuilder{}, nil
	case KindCustom:
		return customBuilder{}, nil
	case KindNone:
		return nil, newError(NotConfigured, k, "no backend selected")
	default:
		return nil, fmt.Errorf("unknown backend type: %s", k)
	}
}

// SystemPrompt is sent ahead of the conversation to every chat-shaped backend.
const SystemPrompt = "You are Krab, a friendly AI crab assistant. Be helpful, fun, and occasionally make crab-related jokes. Keep responses concise."

// withNewMessage appends the new user message to the context unless it is
// already the last user entry.
func withNewMessage(history []ContextEntry, newMessage string) []ContextEntry {
	out := make([]ContextEntry, 0, len(history)+1)
	out = append(out, history...)
	if n := len(out); n > 0 && out[n-1].Role == RoleUser && out[n-1].Content == newMessage {
		return out
	}
	return append(out, ContextEntry{Role: RoleUser, Content: newMessage})
}

// endpoint joins base and path and checks that the result is an absolute
// http(s) URL. An empty path leaves base untouched.
func endpoint(k Kind, base, path string) (string, error) {
	raw := strings.TrimSpace(base)
	if path != "" {
		raw = strings.TrimRight(raw, "/") + path
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &Error{Kind: InvalidURL, Backend: k, Detail: raw, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", newError(InvalidURL, k, raw)
	}
	return u.String(), nil
}

// jsonRequest marshals payload into a POST request spec.
func jsonRequest(k Kind, target string, payload any, header http.Header) (RequestSpec, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return RequestSpec{}, fmt.Errorf("encode %s request: %w", k, err)
	}
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Type", "application/json")
	return RequestSpec{
		Method:  http.MethodPost,
		URL:     target,
		Header:  header,
		Body:    body,
		Timeout: requestTimeout(k),
	}, nil
}

func requestTimeout(k Kind) time.Duration {
	if d, ok := descriptors[k]; ok && d.RequestTimeout > 0 {
		return d.RequestTimeout
	}
	return chatTimeout
}

func bearer(header http.Header, token string) http.Header {
	if header == nil {
		header = make(http.Header)
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}
