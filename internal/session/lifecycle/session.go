// Package lifecycle owns the registry of live sessions and drives
// turns against the agent runtime.
package lifecycle

import (
	"errors"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/internal/agent/runtime"
	"github.com/agentdeck/agentdeck/internal/permission"
	"github.com/agentdeck/agentdeck/internal/session/buffer"
	"github.com/agentdeck/agentdeck/internal/session/models"
	"github.com/agentdeck/agentdeck/internal/session/usage"
)

// ErrTurnInFlight is returned when a message arrives while the
// session is still draining a previous turn.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// Session is the live in-memory state of one registered session. A
// fresh Session is built on every start; usage counters and the output
// buffer never survive deregistration.
type Session struct {
	mu sync.Mutex

	id         string
	userID     string
	workingDir string

	remoteID string
	mode     models.Mode
	model    string
	rules    permission.Rules

	streaming  bool
	compacting bool

	turnActive bool
	turn       *runtime.TurnStream
	endTurn    func()

	disconnectedAt *time.Time

	buf *buffer.RingBuffer
	acc *usage.Accumulator
}

func newSession(record *models.Session, mode models.Mode, model string, rules permission.Rules, bufferCapacity int, contextWindow int64) *Session {
	s := &Session{
		id:         record.ID,
		userID:     record.UserID,
		workingDir: record.WorkingDir,
		mode:       mode,
		model:      model,
		rules:      rules,
		buf:        buffer.New(bufferCapacity),
		acc:        usage.New(contextWindow),
	}
	if record.RemoteID != nil {
		s.remoteID = *record.RemoteID
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user id.
func (s *Session) UserID() string { return s.userID }

// WorkingDir returns the session working directory.
func (s *Session) WorkingDir() string { return s.workingDir }

// Usage returns the session usage accumulator.
func (s *Session) Usage() *usage.Accumulator { return s.acc }

// RemoteID returns the runtime conversation id, empty until the first
// turn reports one.
func (s *Session) RemoteID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// SetRemoteID records the runtime conversation id.
func (s *Session) SetRemoteID(remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteID = remoteID
}

// ClearRemoteID drops the runtime conversation id so the next turn
// begins a fresh remote conversation.
func (s *Session) ClearRemoteID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteID = ""
}

// Mode returns the active permission mode.
func (s *Session) Mode() models.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode applies a permission mode immediately; the next tool
// callback sees it.
func (s *Session) SetMode(mode models.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Model returns the active model.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel applies a model; it takes effect on the next turn.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// Rules returns the permission rules loaded at start.
func (s *Session) Rules() permission.Rules {
	return s.rules
}

// SetStreaming toggles the streaming flag.
func (s *Session) SetStreaming(streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = streaming
}

// Streaming reports whether a text block is currently streaming.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// IsCompacting reports whether the runtime is compacting context.
func (s *Session) IsCompacting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compacting
}

// SetCompacting toggles the compaction flag.
func (s *Session) SetCompacting(compacting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compacting = compacting
}

// AppendOutput records one broadcast entry for replay.
func (s *Session) AppendOutput(msg buffer.BufferedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Push(msg)
}

// OutputSince returns buffered entries newer than t.
func (s *Session) OutputSince(t time.Time) []buffer.BufferedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Since(t)
}

// acquireTurn reserves the single turn slot.
func (s *Session) acquireTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnActive {
		return ErrTurnInFlight
	}
	s.turnActive = true
	return nil
}

// attachTurn binds the opened stream to the reserved slot.
func (s *Session) attachTurn(turn *runtime.TurnStream, endTurn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turn = turn
	s.endTurn = endTurn
}

// releaseTurn clears the turn slot and streaming state. Safe to call
// when no turn is active.
func (s *Session) releaseTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.endTurn
	s.turn = nil
	s.endTurn = nil
	s.turnActive = false
	s.streaming = false
	if end != nil {
		end()
	}
}

// TurnActive reports whether a turn is in flight.
func (s *Session) TurnActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnActive
}

// interruptTurn asks the runtime to cancel the in-flight turn, if any.
func (s *Session) interruptTurn() bool {
	s.mu.Lock()
	turn := s.turn
	s.mu.Unlock()
	if turn == nil {
		return false
	}
	turn.Interrupt()
	return true
}

// MarkDisconnected records when the last client detached.
func (s *Session) MarkDisconnected(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectedAt = &at
}

// MarkReconnected clears the disconnect timestamp and returns it.
func (s *Session) MarkReconnected() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.disconnectedAt
	s.disconnectedAt = nil
	return at
}
