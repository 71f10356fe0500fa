package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/internal/session/models"
)

// Session operations

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = now
	}
	if session.Mode == "" {
		session.Mode = models.ModeAutoAccept
	}
	if session.Status == "" {
		session.Status = models.StatusStopped
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, working_dir, remote_id, mode, model, status, pending_mode, pending_model, disconnected_at, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, session.UserID, session.WorkingDir, session.RemoteID, session.Mode, session.Model, session.Status,
		session.PendingMode, session.PendingModel, session.DisconnectedAt, session.LastActivityAt, session.CreatedAt, session.UpdatedAt)
	return err
}

// GetSession retrieves a session by id and owner.
func (s *Store) GetSession(ctx context.Context, id, userID string) (*models.Session, error) {
	session := &models.Session{}
	err := s.reader().GetContext(ctx, session, `
		SELECT id, user_id, working_dir, remote_id, mode, model, status, pending_mode, pending_model, disconnected_at, last_activity_at, created_at, updated_at
		FROM sessions WHERE id = ? AND user_id = ?
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns all sessions for a user, most recent activity first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	var sessions []*models.Session
	err := s.reader().SelectContext(ctx, &sessions, `
		SELECT id, user_id, working_dir, remote_id, mode, model, status, pending_mode, pending_model, disconnected_at, last_activity_at, created_at, updated_at
		FROM sessions WHERE user_id = ? ORDER BY last_activity_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateSessionStatus sets the session status.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status models.Status) error {
	return s.execSessionUpdate(ctx, `UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
}

// UpdateSessionMode sets the active mode and clears any staged mode.
func (s *Store) UpdateSessionMode(ctx context.Context, id string, mode models.Mode) error {
	return s.execSessionUpdate(ctx, `UPDATE sessions SET mode = ?, pending_mode = NULL, updated_at = ? WHERE id = ?`, mode, time.Now().UTC(), id)
}

// UpdateSessionModel sets the active model and clears any staged model.
func (s *Store) UpdateSessionModel(ctx context.Context, id, model string) error {
	return s.execSessionUpdate(ctx, `UPDATE sessions SET model = ?, pending_model = NULL, updated_at = ? WHERE id = ?`, model, time.Now().UTC(), id)
}

// StageSessionMode stages a mode to take effect on the next start.
func (s *Store) StageSessionMode(ctx context.Context, id string, mode models.Mode) error {
	return s.execSessionUpdate(ctx, `UPDATE sessions SET pending_mode = ?, updated_at = ? WHERE id = ?`, string(mode), time.Now().UTC(), id)
}

// StageSessionModel stages a model to take effect on the next start.
func (s *Store) StageSessionModel(ctx context.Context, id, model string) error {
	return s.execSessionUpdate(ctx, `UPDATE sessions SET pending_model = ?, updated_at = ? WHERE id = ?`, model, time.Now().UTC(), id)
}

// UpdateSessionRemoteID records the runtime's conversation id.
func (s *Store) UpdateSessionRemoteID(ctx context.Context, id, remoteID string) error {
	return s.execSessionUpdate(ctx, `UPDATE sessions SET remote_id = ?, updated_at = ? WHERE id = ?`, remoteID, time.Now().UTC(), id)
}

// ClearSessionRemoteID drops the runtime conversation id so the next
// start begins a fresh remote conversation.
func (s *Store) ClearSessionRemoteID(ctx context.Context, id string) error {
	return s.execSessionUpdate(ctx, `UPDATE sessions SET remote_id = NULL, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
}

// UpdateSessionDisconnectedAt records when the client disconnected; a
// nil timestamp clears it on reconnect.
func (s *Store) UpdateSessionDisconnectedAt(ctx context.Context, id string, at *time.Time) error {
	return s.execSessionUpdate(ctx, `UPDATE sessions SET disconnected_at = ?, updated_at = ? WHERE id = ?`, at, time.Now().UTC(), id)
}

// TouchSessionActivity bumps the last-activity timestamp.
func (s *Store) TouchSessionActivity(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.execSessionUpdate(ctx, `UPDATE sessions SET last_activity_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
}

func (s *Store) execSessionUpdate(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}
