// Package events provides event types and subject naming for the Agentdeck
// event system. Session-scoped events are published on subjects of the form
// "session.<session_id>.<kind>" so the websocket gateway can subscribe with
// a single wildcard.
package events

import "fmt"

// Event kinds for session lifecycle and streaming.
const (
	SessionStatus       = "session.status"
	SessionOutput       = "session.output"
	SessionMessage      = "session.message"
	SessionThinking     = "session.thinking"
	SessionToolUse      = "session.tool_use"
	SessionUsage        = "session.usage"
	SessionError        = "session.error"
	SessionModeChanged  = "session.mode_changed"
	SessionModelChanged = "session.model_changed"
	SessionInteraction  = "session.interaction"
)

// Subject suffixes for session-scoped subjects.
const (
	subjectStatus      = "status"
	subjectOutput      = "output"
	subjectMessage     = "message"
	subjectThinking    = "thinking"
	subjectToolUse     = "tool_use"
	subjectUsage       = "usage"
	subjectError       = "error"
	subjectMode        = "mode"
	subjectModel       = "model"
	subjectInteraction = "interaction"
)

// BuildSessionSubject returns the subject for one event kind of one session.
func BuildSessionSubject(sessionID, kind string) string {
	return fmt.Sprintf("session.%s.%s", sessionID, kind)
}

// BuildStatusSubject returns the status subject for a session.
func BuildStatusSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectStatus)
}

// BuildOutputSubject returns the streaming output subject for a session.
func BuildOutputSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectOutput)
}

// BuildMessageSubject returns the persisted-message subject for a session.
func BuildMessageSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectMessage)
}

// BuildThinkingSubject returns the thinking-indicator subject for a session.
func BuildThinkingSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectThinking)
}

// BuildToolUseSubject returns the tool execution subject for a session.
func BuildToolUseSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectToolUse)
}

// BuildUsageSubject returns the token usage subject for a session.
func BuildUsageSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectUsage)
}

// BuildErrorSubject returns the error subject for a session.
func BuildErrorSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectError)
}

// BuildModeSubject returns the mode-change subject for a session.
func BuildModeSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectMode)
}

// BuildModelSubject returns the model-change subject for a session.
func BuildModelSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectModel)
}

// BuildInteractionSubject returns the pending-interaction subject for a session.
func BuildInteractionSubject(sessionID string) string {
	return BuildSessionSubject(sessionID, subjectInteraction)
}

// SessionWildcardSubject matches every session-scoped event.
func SessionWildcardSubject() string {
	return "session.>"
}
