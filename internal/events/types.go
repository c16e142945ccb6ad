package events

import (
	"time"

	"github.com/krabwidget/krab/internal/backend"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
}

// Topic constants
const (
	TopicConnection = "connection"
	TopicChat       = "chat"
)

// Event type constants
const (
	EventTypeStatusChanged   = "connection.status"
	EventTypeBackendSelected = "connection.selected"
	EventTypeMessageAppended = "chat.appended"
	EventTypeSendFailed      = "chat.failed"
)

// StatusChangedEvent is published on every connection status transition.
// Err holds the recorded error message when To is StatusError.
type StatusChangedEvent struct {
	Backend   backend.Kind
	From      backend.Status
	To        backend.Status
	Err       string
	Timestamp time.Time
}

func (e StatusChangedEvent) EventType() string { return EventTypeStatusChanged }
func (e StatusChangedEvent) Topic() string     { return TopicConnection }

// BackendSelectedEvent is published when the selected kind changes.
type BackendSelectedEvent struct {
	Backend   backend.Kind
	Previous  backend.Kind
	Timestamp time.Time
}

func (e BackendSelectedEvent) EventType() string { return EventTypeBackendSelected }
func (e BackendSelectedEvent) Topic() string     { return TopicConnection }

// MessageAppendedEvent carries a message that was added to the log.
type MessageAppendedEvent struct {
	Backend backend.Kind
	Message backend.ChatMessage
}

func (e MessageAppendedEvent) EventType() string { return EventTypeMessageAppended }
func (e MessageAppendedEvent) Topic() string     { return TopicChat }

// SendFailedEvent is published when a send produced no assistant reply.
type SendFailedEvent struct {
	Backend   backend.Kind
	Text      string
	Err       error
	Timestamp time.Time
}

func (e SendFailedEvent) EventType() string { return EventTypeSendFailed }
func (e SendFailedEvent) Topic() string     { return TopicChat }
