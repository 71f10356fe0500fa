package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentdeck/agentdeck/internal/session/models"
)

// Tool execution operations

// UpsertToolExecution inserts a tool execution row or updates it in
// place as the tool's lifecycle advances. Rows are keyed by the
// runtime-assigned tool-use id.
func (s *Store) UpsertToolExecution(ctx context.Context, exec *models.ToolExecution) error {
	now := time.Now().UTC()
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = now
	}
	exec.UpdatedAt = now

	inputJSON := "{}"
	if exec.Input != nil {
		inputBytes, err := json.Marshal(exec.Input)
		if err != nil {
			return fmt.Errorf("failed to serialize tool input: %w", err)
		}
		inputJSON = string(inputBytes)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_executions (id, session_id, tool_name, input, result, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			result = excluded.result,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, exec.ID, exec.SessionID, exec.ToolName, inputJSON, exec.Result, exec.Status, exec.CreatedAt, exec.UpdatedAt)
	return err
}

// GetToolExecution retrieves a tool execution by its tool-use id.
func (s *Store) GetToolExecution(ctx context.Context, id string) (*models.ToolExecution, error) {
	exec := &models.ToolExecution{}
	var inputJSON string
	err := s.reader().QueryRowContext(ctx, `
		SELECT id, session_id, tool_name, input, result, status, created_at, updated_at
		FROM tool_executions WHERE id = ?
	`, id).Scan(&exec.ID, &exec.SessionID, &exec.ToolName, &inputJSON, &exec.Result, &exec.Status, &exec.CreatedAt, &exec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tool execution not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if inputJSON != "" && inputJSON != "{}" {
		if err := json.Unmarshal([]byte(inputJSON), &exec.Input); err != nil {
			return nil, fmt.Errorf("failed to deserialize tool input: %w", err)
		}
	}
	return exec, nil
}

// ListToolExecutions returns a session's tool executions in start order.
func (s *Store) ListToolExecutions(ctx context.Context, sessionID string) ([]*models.ToolExecution, error) {
	rows, err := s.reader().QueryContext(ctx, `
		SELECT id, session_id, tool_name, input, result, status, created_at, updated_at
		FROM tool_executions WHERE session_id = ? ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*models.ToolExecution
	for rows.Next() {
		exec := &models.ToolExecution{}
		var inputJSON string
		if err := rows.Scan(&exec.ID, &exec.SessionID, &exec.ToolName, &inputJSON, &exec.Result, &exec.Status, &exec.CreatedAt, &exec.UpdatedAt); err != nil {
			return nil, err
		}
		if inputJSON != "" && inputJSON != "{}" {
			if err := json.Unmarshal([]byte(inputJSON), &exec.Input); err != nil {
				return nil, fmt.Errorf("failed to deserialize tool input: %w", err)
			}
		}
		result = append(result, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
