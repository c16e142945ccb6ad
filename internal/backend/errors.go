package backend

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a backend failure.
type ErrorKind int

const (
	NotConnected ErrorKind = iota + 1
	NotConfigured
	InvalidURL
	InvalidCredentials
	RequestFailed
	InvalidResponse
	TransportError
)

func (k ErrorKind) String() string {
	switch k {
	case NotConnected:
		return "Not connected to AI backend"
	case NotConfigured:
		return "AI backend not configured"
	case InvalidURL:
		return "Invalid API URL"
	case InvalidCredentials:
		return "Invalid credentials"
	case RequestFailed:
		return "Request failed"
	case InvalidResponse:
		return "Invalid response from API"
	case TransportError:
		return "Network error"
	default:
		return fmt.Sprintf("error(%d)", int(k))
	}
}

// Error is the single error type returned by builders, the health checker
// and the transport. Status is only set for RequestFailed.
type Error struct {
	Kind    ErrorKind
	Backend Kind
	Status  int
	Detail  string
	Err     error
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrNotConnected       = &Error{Kind: NotConnected}
	ErrNotConfigured      = &Error{Kind: NotConfigured}
	ErrInvalidURL         = &Error{Kind: InvalidURL}
	ErrInvalidCredentials = &Error{Kind: InvalidCredentials}
	ErrRequestFailed      = &Error{Kind: RequestFailed}
	ErrInvalidResponse    = &Error{Kind: InvalidResponse}
	ErrTransport          = &Error{Kind: TransportError}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, backend Kind, detail string) *Error {
	return &Error{Kind: kind, Backend: backend, Detail: detail}
}

// statusError reports a non-accepted HTTP status, keeping a short excerpt of
// the body for the log.
func statusError(backend Kind, status int, body []byte) *Error {
	return &Error{Kind: RequestFailed, Backend: backend, Status: status, Detail: excerpt(body)}
}

func excerpt(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = strings.ToValidUTF8(s[:max], "") + "..."
	}
	return s
}
