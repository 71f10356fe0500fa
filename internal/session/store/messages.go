package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/internal/session/models"
)

// Message operations

// CreateMessage inserts a conversation history entry.
func (s *Store) CreateMessage(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if message.Role == "" {
		message.Role = models.RoleUser
	}

	metaJSON := "{}"
	if message.MetaData != nil {
		metaBytes, err := json.Marshal(message.MetaData)
		if err != nil {
			return fmt.Errorf("failed to serialize message meta data: %w", err)
		}
		metaJSON = string(metaBytes)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, meta_type, meta_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, message.ID, message.SessionID, message.Role, message.Content, message.MetaType, metaJSON, message.CreatedAt)
	return err
}

// ListMessages returns all messages for a session ordered by creation time.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT id, session_id, role, content, meta_type, meta_data, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Message
	for rows.Next() {
		message := &models.Message{}
		var metaJSON string
		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role, &message.Content, &message.MetaType, &metaJSON, &message.CreatedAt); err != nil {
			return nil, err
		}
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &message.MetaData); err != nil {
				return nil, fmt.Errorf("failed to deserialize message meta data: %w", err)
			}
		}
		result = append(result, message)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
