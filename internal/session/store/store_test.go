package store

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/session/models"
)

// setupTestStore creates a store over an in-memory SQLite database.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewWithDB(db, db)
	require.NoError(t, err)
	return s
}

func createTestSession(t *testing.T, s *Store, id string) *models.Session {
	t.Helper()
	session := &models.Session{
		ID:         id,
		UserID:     "u1",
		WorkingDir: "/work",
		Mode:       models.ModeAutoAccept,
		Model:      "claude-sonnet-4-5",
	}
	require.NoError(t, s.CreateSession(context.Background(), session))
	return session
}

func TestStore_CreateAndGetSession(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	got, err := s.GetSession(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, "/work", got.WorkingDir)
	assert.Equal(t, models.ModeAutoAccept, got.Mode)
	assert.Equal(t, models.StatusStopped, got.Status)
	assert.Nil(t, got.RemoteID)
}

func TestStore_GetSessionNotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	_, err := s.GetSession(ctx, "missing", "u1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Wrong owner is also not found.
	_, err = s.GetSession(ctx, "s1", "someone-else")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_SessionUpdates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	require.NoError(t, s.UpdateSessionStatus(ctx, "s1", models.StatusRunning))
	require.NoError(t, s.UpdateSessionRemoteID(ctx, "s1", "conv-42"))
	require.NoError(t, s.StageSessionMode(ctx, "s1", models.ModePlanning))
	require.NoError(t, s.StageSessionModel(ctx, "s1", "claude-opus-4-5"))

	got, err := s.GetSession(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	require.NotNil(t, got.RemoteID)
	assert.Equal(t, "conv-42", *got.RemoteID)
	require.NotNil(t, got.PendingMode)
	assert.Equal(t, "planning", *got.PendingMode)
	require.NotNil(t, got.PendingModel)
	assert.Equal(t, "claude-opus-4-5", *got.PendingModel)

	// Activating a mode clears the staged value.
	require.NoError(t, s.UpdateSessionMode(ctx, "s1", models.ModePlanning))
	got, err = s.GetSession(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.ModePlanning, got.Mode)
	assert.Nil(t, got.PendingMode)

	require.NoError(t, s.ClearSessionRemoteID(ctx, "s1"))
	got, err = s.GetSession(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Nil(t, got.RemoteID)
}

func TestStore_UpdateMissingSession(t *testing.T) {
	s := setupTestStore(t)
	err := s.UpdateSessionStatus(context.Background(), "missing", models.StatusRunning)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_DisconnectedAt(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateSessionDisconnectedAt(ctx, "s1", &at))

	got, err := s.GetSession(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NotNil(t, got.DisconnectedAt)
	assert.WithinDuration(t, at, *got.DisconnectedAt, time.Second)

	require.NoError(t, s.UpdateSessionDisconnectedAt(ctx, "s1", nil))
	got, err = s.GetSession(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Nil(t, got.DisconnectedAt)
}

func TestStore_Messages(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	require.NoError(t, s.CreateMessage(ctx, &models.Message{
		SessionID: "s1",
		Role:      models.RoleUser,
		Content:   "hello",
	}))

	metaType := string(models.MetaResume)
	require.NoError(t, s.CreateMessage(ctx, &models.Message{
		SessionID: "s1",
		Role:      models.RoleSystem,
		Content:   "conversation resumed",
		MetaType:  &metaType,
		MetaData:  map[string]interface{}{"remote_id": "conv-42"},
	}))

	messages, err := s.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	require.NotNil(t, messages[1].MetaType)
	assert.Equal(t, "resume", *messages[1].MetaType)
	assert.Equal(t, "conv-42", messages[1].MetaData["remote_id"])
}

func TestStore_ToolExecutionUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	exec := &models.ToolExecution{
		ID:        "toolu_1",
		SessionID: "s1",
		ToolName:  "Bash",
		Input:     map[string]interface{}{"command": "ls"},
		Status:    models.ToolStarted,
	}
	require.NoError(t, s.UpsertToolExecution(ctx, exec))

	// Advancing the lifecycle updates the row in place.
	exec.Status = models.ToolCompleted
	exec.Result = "file.txt"
	require.NoError(t, s.UpsertToolExecution(ctx, exec))

	got, err := s.GetToolExecution(ctx, "toolu_1")
	require.NoError(t, err)
	assert.Equal(t, models.ToolCompleted, got.Status)
	assert.Equal(t, "file.txt", got.Result)
	assert.Equal(t, "ls", got.Input["command"])

	list, err := s.ListToolExecutions(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_UsageUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")

	// No row yet: zero snapshot, not an error.
	got, err := s.GetUsage(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.InputTokens)

	require.NoError(t, s.UpsertUsage(ctx, &models.TokenUsage{
		SessionID:    "s1",
		InputTokens:  100,
		OutputTokens: 50,
		TotalCostUSD: 0.01,
	}))
	require.NoError(t, s.UpsertUsage(ctx, &models.TokenUsage{
		SessionID:           "s1",
		InputTokens:         300,
		OutputTokens:        75,
		CacheReadTokens:     10,
		CacheCreationTokens: 5,
		TotalCostUSD:        0.03,
		ContextWindow:       200000,
		Model:               "claude-sonnet-4-5",
	}))

	got, err = s.GetUsage(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.InputTokens)
	assert.Equal(t, int64(75), got.OutputTokens)
	assert.Equal(t, int64(200000), got.ContextWindow)
	assert.Equal(t, "claude-sonnet-4-5", got.Model)
	assert.InDelta(t, 0.03, got.TotalCostUSD, 1e-9)
}
