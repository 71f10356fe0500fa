package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/agent/runtime"
	"github.com/agentdeck/agentdeck/internal/common/config"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	"github.com/agentdeck/agentdeck/internal/permission"
	"github.com/agentdeck/agentdeck/internal/session/models"
	"github.com/agentdeck/agentdeck/internal/session/prompt"
	"github.com/agentdeck/agentdeck/internal/session/store"
	"github.com/agentdeck/agentdeck/internal/session/stream"
)

// StartOptions carries explicit per-start overrides. Zero values fall
// back to staged, then persisted, then default settings.
type StartOptions struct {
	Mode  models.Mode
	Model string
}

// Manager registers live sessions and drives their turns. At most one
// live Session exists per session id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store   *store.Store
	bus     bus.EventBus
	broker  *prompt.Broker
	engine  *permission.Engine
	runtime runtime.Runtime

	runtimeCfg     config.RuntimeConfig
	sessionsCfg    config.SessionsConfig
	permissionsCfg config.PermissionsConfig

	logger *logger.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(
	st *store.Store,
	eventBus bus.EventBus,
	broker *prompt.Broker,
	engine *permission.Engine,
	rt runtime.Runtime,
	cfg *config.Config,
	log *logger.Logger,
) *Manager {
	return &Manager{
		sessions:       make(map[string]*Session),
		store:          st,
		bus:            eventBus,
		broker:         broker,
		engine:         engine,
		runtime:        rt,
		runtimeCfg:     cfg.Runtime,
		sessionsCfg:    cfg.Sessions,
		permissionsCfg: cfg.Permissions,
		logger:         log,
	}
}

// Get returns the live session for an id, if registered.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Start registers a live session for a persisted record. Starting an
// already-live session is a no-op, not an error.
func (m *Manager) Start(ctx context.Context, sessionID, userID string, opts StartOptions) (*Session, error) {
	if s, ok := m.Get(sessionID); ok {
		return s, nil
	}

	record, err := m.store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	mode := resolveMode(opts.Mode, record)
	model := resolveModel(opts.Model, record, m.runtimeCfg.DefaultModel)
	rules := m.loadRules(record.WorkingDir)

	s := newSession(record, mode, model, rules, m.sessionsCfg.BufferCapacity, int64(m.runtimeCfg.ContextWindow))

	m.mu.Lock()
	if existing, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[sessionID] = s
	m.mu.Unlock()

	m.persistStatus(ctx, sessionID, models.StatusStarting)
	m.publishStatus(ctx, sessionID, models.StatusStarting)

	// Persist the resolved settings; this also clears staged values.
	if err := m.store.UpdateSessionMode(ctx, sessionID, mode); err != nil {
		m.logger.Error("failed to persist session mode", zap.Error(err), zap.String("session_id", sessionID))
	}
	if err := m.store.UpdateSessionModel(ctx, sessionID, model); err != nil {
		m.logger.Error("failed to persist session model", zap.Error(err), zap.String("session_id", sessionID))
	}

	m.persistStatus(ctx, sessionID, models.StatusRunning)
	m.publishStatus(ctx, sessionID, models.StatusRunning)

	m.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.String("mode", string(mode)),
		zap.String("model", model))
	return s, nil
}

// Stop deregisters a session, cancels its runtime turn, and resolves
// pending interactive requests with the deny default. Idempotent.
func (m *Manager) Stop(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	s.interruptTurn()
	m.broker.CancelSession(sessionID)

	m.persistStatus(ctx, sessionID, models.StatusStopped)
	m.publishStatus(ctx, sessionID, models.StatusStopped)

	m.logger.Info("session stopped", zap.String("session_id", sessionID))
	return nil
}

// Shutdown stops every live session. Called during server shutdown.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			m.logger.Error("failed to stop session during shutdown", zap.String("session_id", id), zap.Error(err))
		}
	}
}

// Restart stops the session, clears its remote conversation id so the
// next turn begins fresh, and starts it again.
func (m *Manager) Restart(ctx context.Context, sessionID, userID string) (*Session, error) {
	if err := m.Stop(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := m.store.ClearSessionRemoteID(ctx, sessionID); err != nil {
		return nil, err
	}
	s, err := m.Start(ctx, sessionID, userID, StartOptions{})
	if err != nil {
		return nil, err
	}
	m.persistMarker(ctx, sessionID, models.MetaRestart, "session restarted")
	return s, nil
}

// Resume starts the session against its existing remote conversation
// so the agent continues prior context.
func (m *Manager) Resume(ctx context.Context, sessionID, userID string) (*Session, error) {
	s, err := m.Start(ctx, sessionID, userID, StartOptions{})
	if err != nil {
		return nil, err
	}
	m.persistMarker(ctx, sessionID, models.MetaResume, "conversation resumed")
	return s, nil
}

// SendMessage opens a new turn. The session is auto-started when not
// live. The user message is persisted and broadcast unless suppressed.
func (m *Manager) SendMessage(ctx context.Context, sessionID, userID, text string, images []runtime.ImageBlock, suppressSave bool) error {
	s, err := m.Start(ctx, sessionID, userID, StartOptions{})
	if err != nil {
		return err
	}

	if err := s.acquireTurn(); err != nil {
		return err
	}

	if !suppressSave {
		m.persistUserMessage(ctx, sessionID, text)
	}

	promptText := text
	if s.RemoteID() == "" {
		promptText = m.injectProjectContext(s.WorkingDir(), text)
	}

	// The turn outlives the request; only Stop or Interrupt cancels it.
	turnCtx, cancel := context.WithCancel(context.Background())
	turn, err := m.runtime.Open(turnCtx, runtime.TurnRequest{
		SessionID:  sessionID,
		Prompt:     promptText,
		Images:     images,
		WorkingDir: s.WorkingDir(),
		Model:      s.Model(),
		ResumeID:   s.RemoteID(),
		Permission: m.permissionFunc(s),
	})
	if err != nil {
		cancel()
		s.releaseTurn()
		return fmt.Errorf("failed to open turn: %w", err)
	}
	s.attachTurn(turn, cancel)

	if err := m.store.TouchSessionActivity(ctx, sessionID); err != nil {
		m.logger.Error("failed to touch session activity", zap.Error(err), zap.String("session_id", sessionID))
	}
	m.persistStatus(ctx, sessionID, models.StatusRunning)
	m.publishStatus(ctx, sessionID, models.StatusRunning)

	go m.drainTurn(s, turn)
	return nil
}

// Interrupt cancels the in-flight turn. No active turn is a no-op.
func (m *Manager) Interrupt(ctx context.Context, sessionID string) error {
	s, ok := m.Get(sessionID)
	if !ok {
		return nil
	}
	if s.interruptTurn() {
		m.logger.Info("turn interrupted", zap.String("session_id", sessionID))
	}
	return nil
}

// SetMode applies a permission mode to the live session or stages it
// for the next start.
func (m *Manager) SetMode(ctx context.Context, sessionID, userID string, mode models.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode: %s", mode)
	}

	if s, ok := m.Get(sessionID); ok {
		s.SetMode(mode)
		if err := m.store.UpdateSessionMode(ctx, sessionID, mode); err != nil {
			return err
		}
	} else {
		if _, err := m.store.GetSession(ctx, sessionID, userID); err != nil {
			return err
		}
		if err := m.store.StageSessionMode(ctx, sessionID, mode); err != nil {
			return err
		}
	}

	m.publish(ctx, events.BuildModeSubject(sessionID), events.SessionModeChanged, events.ModeChangedPayload{
		SessionID: sessionID,
		Mode:      string(mode),
	})
	return nil
}

// SetModel applies a model to the live session or stages it for the
// next start. A live update takes effect on the next turn.
func (m *Manager) SetModel(ctx context.Context, sessionID, userID, model string) error {
	if model == "" {
		return fmt.Errorf("model must not be empty")
	}

	if s, ok := m.Get(sessionID); ok {
		s.SetModel(model)
		if err := m.store.UpdateSessionModel(ctx, sessionID, model); err != nil {
			return err
		}
	} else {
		if _, err := m.store.GetSession(ctx, sessionID, userID); err != nil {
			return err
		}
		if err := m.store.StageSessionModel(ctx, sessionID, model); err != nil {
			return err
		}
	}

	m.publish(ctx, events.BuildModelSubject(sessionID), events.SessionModelChanged, events.ModelChangedPayload{
		SessionID: sessionID,
		Model:     model,
	})
	return nil
}

// MarkDisconnected records that the last client detached. Bookkeeping
// only; the runtime keeps going.
func (m *Manager) MarkDisconnected(ctx context.Context, sessionID string) error {
	now := time.Now().UTC()
	if s, ok := m.Get(sessionID); ok {
		s.MarkDisconnected(now)
	}
	return m.store.UpdateSessionDisconnectedAt(ctx, sessionID, &now)
}

// MarkReconnected clears the disconnect timestamp and returns the
// buffered output the client missed while away.
func (m *Manager) MarkReconnected(ctx context.Context, sessionID string) ([]events.OutputPayload, error) {
	if err := m.store.UpdateSessionDisconnectedAt(ctx, sessionID, nil); err != nil {
		return nil, err
	}

	s, ok := m.Get(sessionID)
	if !ok {
		return nil, nil
	}
	at := s.MarkReconnected()
	if at == nil {
		return nil, nil
	}

	missed := s.OutputSince(*at)
	replay := make([]events.OutputPayload, 0, len(missed))
	for _, msg := range missed {
		if payload, ok := msg.Payload.(events.OutputPayload); ok {
			replay = append(replay, payload)
		}
	}
	return replay, nil
}

// drainTurn consumes the turn's event stream and returns the session
// to its idle stopped state when the stream terminates.
func (m *Manager) drainTurn(s *Session, turn *runtime.TurnStream) {
	// Side effects must not be cut short by turn cancellation.
	ctx := context.Background()

	processor := stream.NewProcessor(s, m.store, m.bus, m.logger)
	for ev := range turn.Events() {
		processor.Process(ctx, ev)
	}

	s.releaseTurn()

	// The session may have been stopped and deregistered mid-turn; its
	// final status is already persisted then.
	if _, ok := m.Get(s.ID()); !ok {
		return
	}
	m.persistStatus(ctx, s.ID(), models.StatusStopped)
	m.publishStatus(ctx, s.ID(), models.StatusStopped)
}

// injectProjectContext prepends the project instruction file to the
// first prompt of a brand-new conversation.
func (m *Manager) injectProjectContext(workingDir, text string) string {
	name := m.runtimeCfg.ProjectContextFile
	if name == "" {
		return text
	}
	data, err := os.ReadFile(filepath.Join(workingDir, name))
	if err != nil || len(data) == 0 {
		return text
	}
	return fmt.Sprintf("Project instructions from %s:\n\n%s\n\n---\n\n%s", name, string(data), text)
}

// loadRules reads the permission settings documents in precedence
// order: global, global-local, project, project-local.
func (m *Manager) loadRules(workingDir string) permission.Rules {
	paths := []string{
		m.permissionsCfg.GlobalSettings,
		m.permissionsCfg.GlobalLocalSettings,
	}
	if m.permissionsCfg.ProjectSettings != "" {
		paths = append(paths, filepath.Join(workingDir, m.permissionsCfg.ProjectSettings))
	}
	if m.permissionsCfg.ProjectLocal != "" {
		paths = append(paths, filepath.Join(workingDir, m.permissionsCfg.ProjectLocal))
	}
	return permission.LoadRules(paths, m.logger)
}

func resolveMode(requested models.Mode, record *models.Session) models.Mode {
	if requested.Valid() {
		return requested
	}
	if record.PendingMode != nil && models.Mode(*record.PendingMode).Valid() {
		return models.Mode(*record.PendingMode)
	}
	if record.Mode.Valid() {
		return record.Mode
	}
	return models.ModeAutoAccept
}

func resolveModel(requested string, record *models.Session, fallback string) string {
	if requested != "" {
		return requested
	}
	if record.PendingModel != nil && *record.PendingModel != "" {
		return *record.PendingModel
	}
	if record.Model != "" {
		return record.Model
	}
	return fallback
}

// persistUserMessage saves and broadcasts a user prompt.
func (m *Manager) persistUserMessage(ctx context.Context, sessionID, text string) {
	m.persistAndBroadcast(ctx, &models.Message{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   text,
	})
}

// persistMarker saves and broadcasts a structured history marker.
func (m *Manager) persistMarker(ctx context.Context, sessionID string, metaType models.MetaType, content string) {
	meta := string(metaType)
	m.persistAndBroadcast(ctx, &models.Message{
		SessionID: sessionID,
		Role:      models.RoleSystem,
		Content:   content,
		MetaType:  &meta,
	})
}

func (m *Manager) persistAndBroadcast(ctx context.Context, message *models.Message) {
	message.ID = uuid.New().String()
	message.CreatedAt = time.Now().UTC()
	if err := m.store.CreateMessage(ctx, message); err != nil {
		m.logger.Error("failed to persist message", zap.Error(err),
			zap.String("session_id", message.SessionID),
			zap.String("role", string(message.Role)))
	}

	payload := events.MessagePayload{
		ID:        message.ID,
		SessionID: message.SessionID,
		Role:      string(message.Role),
		Content:   message.Content,
		CreatedAt: message.CreatedAt,
	}
	if message.MetaType != nil {
		payload.MetaType = *message.MetaType
	}
	m.publish(ctx, events.BuildMessageSubject(message.SessionID), events.SessionMessage, payload)
}

func (m *Manager) persistStatus(ctx context.Context, sessionID string, status models.Status) {
	if err := m.store.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		m.logger.Error("failed to persist session status", zap.Error(err),
			zap.String("session_id", sessionID),
			zap.String("status", string(status)))
	}
}

func (m *Manager) publishStatus(ctx context.Context, sessionID string, status models.Status) {
	m.publish(ctx, events.BuildStatusSubject(sessionID), events.SessionStatus, events.StatusPayload{
		SessionID: sessionID,
		Status:    string(status),
	})
}

func (m *Manager) publish(ctx context.Context, subject, eventType string, payload interface{}) {
	if err := m.bus.Publish(ctx, subject, bus.NewEvent(eventType, "session-lifecycle", payload)); err != nil {
		m.logger.Error("failed to publish event", zap.Error(err), zap.String("subject", subject))
	}
}
