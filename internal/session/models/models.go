// Package models defines the persistent session domain types.
package models

import (
	"time"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
)

// Mode selects the permission policy for a session.
type Mode string

const (
	ModePlanning   Mode = "planning"
	ModeAutoAccept Mode = "auto-accept"
	ModeDanger     Mode = "danger"
)

// Valid reports whether m is one of the enumerated modes.
func (m Mode) Valid() bool {
	switch m {
	case ModePlanning, ModeAutoAccept, ModeDanger:
		return true
	}
	return false
}

// Session represents a session row in the database.
type Session struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"user_id" db:"user_id"`
	WorkingDir     string     `json:"working_dir" db:"working_dir"`
	RemoteID       *string    `json:"remote_id,omitempty" db:"remote_id"`
	Mode           Mode       `json:"mode" db:"mode"`
	Model          string     `json:"model" db:"model"`
	Status         Status     `json:"status" db:"status"`
	PendingMode    *string    `json:"pending_mode,omitempty" db:"pending_mode"`
	PendingModel   *string    `json:"pending_model,omitempty" db:"pending_model"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty" db:"disconnected_at"`
	LastActivityAt time.Time  `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// MessageRole represents who authored a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MetaType marks structured history entries that are not prose.
type MetaType string

const (
	// MetaCompact marks a context-compaction boundary.
	MetaCompact MetaType = "compact"
	// MetaResume marks a conversation resume point.
	MetaResume MetaType = "resume"
	// MetaRestart marks a session restart.
	MetaRestart MetaType = "restart"
)

// Message represents one conversation history entry.
type Message struct {
	ID        string                 `json:"id" db:"id"`
	SessionID string                 `json:"session_id" db:"session_id"`
	Role      MessageRole            `json:"role" db:"role"`
	Content   string                 `json:"content" db:"content"`
	MetaType  *string                `json:"meta_type,omitempty" db:"meta_type"`
	MetaData  map[string]interface{} `json:"meta_data,omitempty" db:"-"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// ToolStatus represents the lifecycle state of one tool invocation.
type ToolStatus string

const (
	ToolStarted   ToolStatus = "started"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// ToolExecution represents one tool invocation, keyed by the
// runtime-assigned tool-use id and updated in place as it advances.
type ToolExecution struct {
	ID        string                 `json:"id" db:"id"`
	SessionID string                 `json:"session_id" db:"session_id"`
	ToolName  string                 `json:"tool_name" db:"tool_name"`
	Input     map[string]interface{} `json:"input,omitempty" db:"-"`
	Result    string                 `json:"result,omitempty" db:"result"`
	Status    ToolStatus             `json:"status" db:"status"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// TokenUsage is the persisted cumulative usage snapshot for a session.
type TokenUsage struct {
	SessionID           string    `json:"session_id" db:"session_id"`
	InputTokens         int64     `json:"input_tokens" db:"input_tokens"`
	OutputTokens        int64     `json:"output_tokens" db:"output_tokens"`
	CacheReadTokens     int64     `json:"cache_read_tokens" db:"cache_read_tokens"`
	CacheCreationTokens int64     `json:"cache_creation_tokens" db:"cache_creation_tokens"`
	TotalCostUSD        float64   `json:"total_cost_usd" db:"total_cost_usd"`
	ContextWindow       int64     `json:"context_window" db:"context_window"`
	Model               string    `json:"model" db:"model"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}
