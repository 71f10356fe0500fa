// Package runtime defines the interface to the underlying coding
// agent: open a turn, drain its event stream, interrupt it, and answer
// its synchronous tool-permission callbacks.
package runtime

import (
	"context"
)

// EventType identifies one event in a turn's stream.
type EventType string

const (
	// EventInit carries the runtime's conversation id.
	EventInit EventType = "init"
	// EventCompaction marks a context-compaction boundary.
	EventCompaction EventType = "compaction"
	// EventTextStart opens a streaming text block.
	EventTextStart EventType = "text_start"
	// EventTextDelta carries one partial text update.
	EventTextDelta EventType = "text_delta"
	// EventToolStart opens a tool-use block.
	EventToolStart EventType = "tool_start"
	// EventBlockStop closes the current text or tool block.
	EventBlockStop EventType = "block_stop"
	// EventMessageStop ends the assistant message.
	EventMessageStop EventType = "message_stop"
	// EventAssistantMessage is the complete non-streaming echo.
	EventAssistantMessage EventType = "assistant_message"
	// EventResult is the terminal turn result.
	EventResult EventType = "result"
)

// BlockKind distinguishes what a block stop closes.
type BlockKind string

const (
	BlockText BlockKind = "text"
	BlockTool BlockKind = "tool"
)

// ContentBlock is one block of a complete assistant message.
type ContentBlock struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text,omitempty"`
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// Result is the terminal outcome of one turn. Token fields are deltas
// for this turn, not session totals.
type Result struct {
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	CostUSD             float64
	ContextWindow       int64
	Model               string
	IsError             bool
	Error               string
}

// Event is one entry in a turn's ordered stream. The type determines
// which fields are populated.
type Event struct {
	Type EventType

	// For init events
	RemoteID string

	// For compaction events
	CompactionTrigger   string
	PreCompactionTokens int64

	// For text_delta events
	Text string

	// For tool_start and block_stop(tool) events
	ToolID    string
	ToolName  string
	ToolInput map[string]interface{}

	// For block_stop events
	Block BlockKind

	// For assistant_message events
	Content []ContentBlock

	// For result events
	Result *Result
}

// PermissionDecision answers a tool-use permission callback.
type PermissionDecision struct {
	Allow   bool
	Message string
}

// PermissionFunc is invoked synchronously for every tool use before
// execution; the runtime waits for its decision.
type PermissionFunc func(ctx context.Context, toolID, toolName string, input map[string]interface{}) PermissionDecision

// ImageBlock is an image attachment on a prompt.
type ImageBlock struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"` // base64
}

// TurnRequest describes one prompt submission.
type TurnRequest struct {
	SessionID  string
	Prompt     string
	Images     []ImageBlock
	WorkingDir string
	Model      string
	// ResumeID continues the runtime's prior conversation when set.
	ResumeID   string
	Permission PermissionFunc
}

// TurnStream is one turn's event stream. The channel is closed when
// the turn terminates; Interrupt requests cancellation of the
// in-flight turn and is safe to call at any time.
type TurnStream struct {
	events    <-chan Event
	interrupt func()
}

// NewTurnStream wraps an event channel and interrupt hook.
func NewTurnStream(events <-chan Event, interrupt func()) *TurnStream {
	return &TurnStream{events: events, interrupt: interrupt}
}

// Events returns the turn's ordered event channel.
func (s *TurnStream) Events() <-chan Event {
	return s.events
}

// Interrupt requests cancellation of the in-flight turn.
func (s *TurnStream) Interrupt() {
	if s.interrupt != nil {
		s.interrupt()
	}
}

// Runtime opens turns against the underlying agent.
type Runtime interface {
	Open(ctx context.Context, req TurnRequest) (*TurnStream, error)
}
