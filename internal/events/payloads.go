package events

import "time"

// StatusPayload reports a session status transition.
type StatusPayload struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// GetSessionID implements the gateway's session extraction interface.
func (p StatusPayload) GetSessionID() string { return p.SessionID }

// OutputPayload carries one streamed text delta. IsComplete is false for
// intermediate deltas and true on the final chunk of a block.
type OutputPayload struct {
	SessionID  string `json:"session_id"`
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
}

func (p OutputPayload) GetSessionID() string { return p.SessionID }

// MessagePayload mirrors a persisted conversation message.
type MessagePayload struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	MetaType  string    `json:"meta_type,omitempty"`
	MetaData  any       `json:"meta_data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p MessagePayload) GetSessionID() string { return p.SessionID }

// ThinkingPayload toggles the thinking indicator.
type ThinkingPayload struct {
	SessionID  string `json:"session_id"`
	IsThinking bool   `json:"is_thinking"`
}

func (p ThinkingPayload) GetSessionID() string { return p.SessionID }

// ToolUsePayload reports tool execution progress.
type ToolUsePayload struct {
	SessionID string `json:"session_id"`
	ToolID    string `json:"tool_id"`
	ToolName  string `json:"tool_name"`
	Status    string `json:"status"` // started, completed, error
	Input     any    `json:"input,omitempty"`
	Result    string `json:"result,omitempty"`
}

func (p ToolUsePayload) GetSessionID() string { return p.SessionID }

// UsagePayload reports cumulative token usage for a session.
type UsagePayload struct {
	SessionID               string  `json:"session_id"`
	InputTokens             int64   `json:"input_tokens"`
	OutputTokens            int64   `json:"output_tokens"`
	CacheReadTokens         int64   `json:"cache_read_tokens"`
	CacheCreationTokens     int64   `json:"cache_creation_tokens"`
	TotalTokens             int64   `json:"total_tokens"`
	ContextWindow           int64   `json:"context_window"`
	ContextUsedPercent      int     `json:"context_used_percent"`
	ContextRemainingPercent int     `json:"context_remaining_percent"`
	TotalCostUSD            float64 `json:"total_cost_usd"`
	Model                   string  `json:"model"`
}

func (p UsagePayload) GetSessionID() string { return p.SessionID }

// ErrorPayload reports a stream failure to subscribers.
type ErrorPayload struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

func (p ErrorPayload) GetSessionID() string { return p.SessionID }

// ModeChangedPayload reports a permission mode change.
type ModeChangedPayload struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
}

func (p ModeChangedPayload) GetSessionID() string { return p.SessionID }

// ModelChangedPayload reports a model change.
type ModelChangedPayload struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

func (p ModelChangedPayload) GetSessionID() string { return p.SessionID }

// InteractionPayload announces a pending interactive request that needs a
// human response (permission, question, plan approval, commit approval).
type InteractionPayload struct {
	SessionID string    `json:"session_id"`
	RequestID string    `json:"request_id"`
	Kind      string    `json:"kind"`
	Payload   any       `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p InteractionPayload) GetSessionID() string { return p.SessionID }
