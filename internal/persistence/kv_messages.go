package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/krabwidget/krab/internal/backend"
)

// MessagesKey is the key KVMessageStore keeps the log under.
const MessagesKey = "krab.messages"

// KVMessageStore keeps the chat log as one JSON array inside a KV. It is
// meant for drivers without a native list type.
type KVMessageStore struct {
	mu sync.Mutex
	kv KV
}

// NewKVMessageStore wraps kv.
func NewKVMessageStore(kv KV) *KVMessageStore {
	return &KVMessageStore{kv: kv}
}

func (s *KVMessageStore) load(ctx context.Context) ([]backend.ChatMessage, error) {
	data, found, err := s.kv.Get(ctx, MessagesKey)
	if err != nil {
		return nil, err
	}
	messages := []backend.ChatMessage{}
	if !found {
		return messages, nil
	}
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", MessagesKey, err)
	}
	return messages, nil
}

func (s *KVMessageStore) store(ctx context.Context, messages []backend.ChatMessage) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", MessagesKey, err)
	}
	return s.kv.Put(ctx, MessagesKey, data)
}

// AppendMessage rewrites the array with msg added and trimmed to keep.
func (s *KVMessageStore) AppendMessage(ctx context.Context, msg backend.ChatMessage, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := s.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	messages = append(messages, msg)
	if keep > 0 && len(messages) > keep {
		messages = messages[len(messages)-keep:]
	}
	return s.store(ctx, messages)
}

// RecentMessages returns up to limit of the newest messages, oldest first.
func (s *KVMessageStore) RecentMessages(ctx context.Context, limit int) ([]backend.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// ClearMessages stores an empty log.
func (s *KVMessageStore) ClearMessages(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(ctx, []backend.ChatMessage{})
}
