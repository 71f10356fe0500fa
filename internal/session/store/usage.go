package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/agentdeck/agentdeck/internal/session/models"
)

// Usage snapshot operations

// UpsertUsage writes the cumulative usage snapshot for a session,
// updating the existing row if one exists.
func (s *Store) UpsertUsage(ctx context.Context, usage *models.TokenUsage) error {
	if usage.UpdatedAt.IsZero() {
		usage.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_usage (session_id, input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens, total_cost_usd, context_window, model, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cache_read_tokens = excluded.cache_read_tokens,
			cache_creation_tokens = excluded.cache_creation_tokens,
			total_cost_usd = excluded.total_cost_usd,
			context_window = excluded.context_window,
			model = excluded.model,
			updated_at = excluded.updated_at
	`, usage.SessionID, usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens, usage.CacheCreationTokens,
		usage.TotalCostUSD, usage.ContextWindow, usage.Model, usage.UpdatedAt)
	return err
}

// GetUsage retrieves the usage snapshot for a session. Returns a zero
// snapshot when none has been written yet.
func (s *Store) GetUsage(ctx context.Context, sessionID string) (*models.TokenUsage, error) {
	usage := &models.TokenUsage{}
	err := s.reader().GetContext(ctx, usage, `
		SELECT session_id, input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens, total_cost_usd, context_window, model, updated_at
		FROM token_usage WHERE session_id = ?
	`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.TokenUsage{SessionID: sessionID}, nil
	}
	if err != nil {
		return nil, err
	}
	return usage, nil
}
