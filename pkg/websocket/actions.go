package websocket

// Action constants for WebSocket messages
const (
	// Health
	ActionHealthCheck = "health.check"

	// Subscription actions (client -> server)
	ActionSessionSubscribe   = "session.subscribe"
	ActionSessionUnsubscribe = "session.unsubscribe"

	// Session actions (client -> server)
	ActionSessionSend      = "session.send"
	ActionSessionInterrupt = "session.interrupt"
	ActionSessionSetMode   = "session.set_mode"
	ActionSessionSetModel  = "session.set_model"

	// Interaction actions (client -> server)
	ActionInteractionRespond = "interaction.respond"

	// Notification actions (server -> client)
	ActionSessionStatus       = "session.status"
	ActionSessionOutput       = "session.output"
	ActionSessionMessage      = "session.message"
	ActionSessionThinking     = "session.thinking"
	ActionSessionToolUse      = "session.tool_use"
	ActionSessionUsage        = "session.usage"
	ActionSessionError        = "session.error"
	ActionSessionModeChanged  = "session.mode_changed"
	ActionSessionModelChanged = "session.model_changed"
	ActionSessionInteraction  = "session.interaction"
	ActionSessionReplay       = "session.replay"
)

// Error codes
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
)
