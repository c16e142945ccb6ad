package backend

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// DefaultHealthTimeout bounds a single reachability probe.
const DefaultHealthTimeout = 10 * time.Second

// HealthChecker validates that a backend is usable without sending a chat
// message. It is stateless and safe for concurrent use.
type HealthChecker struct {
	transport *Transport
	timeout   time.Duration
}

// NewHealthChecker creates a checker that probes through transport.
func NewHealthChecker(transport *Transport, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	return &HealthChecker{transport: transport, timeout: timeout}
}

// Check runs local validation for k and, for kinds that have one, a single
// network probe.
//
// OpenAI and Anthropic are validated locally only: the key format is checked
// but no request is made.
func (h *HealthChecker) Check(ctx context.Context, k Kind, cfg Config) error {
	switch k {
	case KindOpenAI:
		if !strings.HasPrefix(cfg.Token, "sk-") {
			return newError(InvalidCredentials, k, "API key must start with sk-")
		}
		return Validate(k, cfg)
	case KindAnthropic:
		if strings.TrimSpace(cfg.Token) == "" {
			return newError(InvalidCredentials, k, "API key is empty")
		}
		return Validate(k, cfg)
	}

	if err := Validate(k, cfg); err != nil {
		return err
	}

	var path string
	switch k {
	case KindOpenClaw:
		path = "/health"
	case KindOllama:
		path = "/api/tags"
	}
	target, err := endpoint(k, cfg.BaseURL, path)
	if err != nil {
		return err
	}

	spec := RequestSpec{Method: http.MethodGet, URL: target, Timeout: h.timeout}
	if k != KindOllama {
		spec.Header = bearer(nil, cfg.Token)
	}
	status, body, err := h.transport.Execute(ctx, k, spec)
	if err != nil {
		return err
	}
	if !healthy(k, status) {
		return statusError(k, status, body)
	}
	return nil
}

func healthy(k Kind, status int) bool {
	if k == KindCustom {
		return status >= 200 && status <= 299
	}
	return status == http.StatusOK
}
