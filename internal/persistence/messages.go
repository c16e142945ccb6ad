package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/krabwidget/krab/internal/backend"
)

// AppendMessage stores msg and trims the table to the newest keep rows in
// one transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg backend.ChatMessage, keep int) error {
	// Create 5-second timeout context
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, content, from_user, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, msg.ID, msg.Content, msg.FromUser, msg.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	if keep > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM chat_messages
			WHERE seq NOT IN (
				SELECT seq FROM chat_messages ORDER BY seq DESC LIMIT ?
			)
		`, keep)
		if err != nil {
			return fmt.Errorf("failed to trim messages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RecentMessages returns up to limit of the newest messages in append order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]backend.ChatMessage, error) {
	// Create 5-second timeout context
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, from_user, created_at FROM (
			SELECT seq, id, content, from_user, created_at
			FROM chat_messages
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	// Return empty slice (not nil) if no history
	messages := []backend.ChatMessage{}
	for rows.Next() {
		var (
			msg     backend.ChatMessage
			created string
		)
		if err := rows.Scan(&msg.ID, &msg.Content, &msg.FromUser, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Timestamp, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp of message %s: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// ClearMessages deletes the persisted log.
func (s *SQLiteStore) ClearMessages(ctx context.Context) error {
	// Create 5-second timeout context
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages`); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}
