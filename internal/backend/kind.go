package backend

import "fmt"

// Kind identifies an AI chat provider. The string value is what gets
// persisted, so existing values must never be renamed.
type Kind string

const (
	KindNone      Kind = "none"
	KindOpenClaw  Kind = "openclaw"
	KindOpenAI    Kind = "openai"
	KindOllama    Kind = "ollama"
	KindAnthropic Kind = "anthropic"
	KindCustom    Kind = "custom"
)

// ParseKind converts a stored or user-supplied name into a Kind.
// The empty string maps to KindNone.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "":
		return KindNone, nil
	case KindNone, KindOpenClaw, KindOpenAI, KindOllama, KindAnthropic, KindCustom:
		return k, nil
	default:
		return "", fmt.Errorf("unknown backend kind: %s", s)
	}
}

// Valid reports whether k is one of the known kinds, including KindNone.
func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil && k != ""
}

func (k Kind) String() string {
	return string(k)
}

// Status is the connection state of a dispatcher.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// DisplayText is the short label shown next to the status indicator.
func (s Status) DisplayText() string {
	switch s {
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Disconnected"
	}
}

// Icon returns the glyph used by terminal front-ends for the status.
func (s Status) Icon() string {
	switch s {
	case StatusConnecting:
		return "◌"
	case StatusConnected:
		return "●"
	case StatusError:
		return "✗"
	default:
		return "○"
	}
}
