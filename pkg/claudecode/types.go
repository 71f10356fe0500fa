// Package claudecode provides types and a client for the Claude Code
// CLI stream-json protocol: streaming JSON over stdin/stdout with
// control requests for tool permissions.
package claudecode

import "encoding/json"

// Message types on the CLI's stdout stream
const (
	// MessageTypeSystem carries session init and compaction boundaries
	MessageTypeSystem = "system"
	// MessageTypeAssistant is the complete assistant message echo
	MessageTypeAssistant = "assistant"
	// MessageTypeStreamEvent is a partial content update
	MessageTypeStreamEvent = "stream_event"
	// MessageTypeResult is the terminal turn result
	MessageTypeResult = "result"
	// MessageTypeControlRequest is a control request (permissions)
	MessageTypeControlRequest = "control_request"
	// MessageTypeControlResponse answers a control request
	MessageTypeControlResponse = "control_response"
	// MessageTypeUser is a user message (prompt)
	MessageTypeUser = "user"
)

// System message subtypes
const (
	SubtypeInit            = "init"
	SubtypeCompactBoundary = "compact_boundary"
)

// Control request subtypes
const (
	// SubtypeCanUseTool is a permission request for tool use
	SubtypeCanUseTool = "can_use_tool"
	// SubtypeInterrupt cancels the in-flight turn
	SubtypeInterrupt = "interrupt"
)

// Permission behaviors
const (
	BehaviorAllow = "allow"
	BehaviorDeny  = "deny"
)

// CLIMessage represents one line of CLI stdout. The message type
// determines which fields are populated.
type CLIMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// For system messages
	SessionID       string           `json:"session_id,omitempty"`
	CompactMetadata *CompactMetadata `json:"compact_metadata,omitempty"`

	// For control_request messages
	RequestID string          `json:"request_id,omitempty"`
	Request   *ControlRequest `json:"request,omitempty"`

	// For stream_event messages
	Event *StreamEvent `json:"event,omitempty"`

	// For assistant messages
	Message *AssistantMessage `json:"message,omitempty"`

	// For result messages
	Result       json.RawMessage            `json:"result,omitempty"`
	IsError      bool                       `json:"is_error,omitempty"`
	TotalCostUSD float64                    `json:"total_cost_usd,omitempty"`
	Usage        *Usage                     `json:"usage,omitempty"`
	ModelUsage   map[string]ModelUsageStats `json:"model_usage,omitempty"`
	Model        string                     `json:"model,omitempty"`
}

// CompactMetadata describes a context-compaction boundary.
type CompactMetadata struct {
	Trigger   string `json:"trigger,omitempty"`
	PreTokens int64  `json:"pre_tokens,omitempty"`
}

// StreamEvent is a partial content update inside a stream_event
// message.
type StreamEvent struct {
	// Type is content_block_start, content_block_delta,
	// content_block_stop, or message_stop.
	Type         string        `json:"type"`
	Index        int           `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *Delta        `json:"delta,omitempty"`
}

// Stream event types
const (
	StreamContentBlockStart = "content_block_start"
	StreamContentBlockDelta = "content_block_delta"
	StreamContentBlockStop  = "content_block_stop"
	StreamMessageStop       = "message_stop"
)

// Delta is one partial text update.
type Delta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AssistantMessage is the complete assistant response echo.
type AssistantMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content,omitempty"`
	Model   string         `json:"model,omitempty"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// ContentBlock is one block of assistant content.
type ContentBlock struct {
	Type string `json:"type"`

	// For text blocks
	Text string `json:"text,omitempty"`

	// For tool_use blocks
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// Content block types
const (
	BlockTypeText    = "text"
	BlockTypeToolUse = "tool_use"
)

// Usage contains token counts for one turn.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens,omitempty"`
}

// ModelUsageStats carries per-model statistics from the result
// message; context_window is the model's actual window size.
type ModelUsageStats struct {
	ContextWindow *int64 `json:"context_window,omitempty"`
}

// GetResultString returns the Result field when it is a plain string,
// typically an error message.
func (m *CLIMessage) GetResultString() string {
	if len(m.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Result, &s); err != nil {
		return ""
	}
	return s
}

// ContextWindow returns the richest context window reported for the
// turn, or zero.
func (m *CLIMessage) ContextWindow() int64 {
	var window int64
	for _, stats := range m.ModelUsage {
		if stats.ContextWindow != nil && *stats.ContextWindow > window {
			window = *stats.ContextWindow
		}
	}
	return window
}

// ControlRequest is a control request from the CLI, used for
// can_use_tool permission round trips.
type ControlRequest struct {
	Subtype   string                 `json:"subtype"`
	ToolName  string                 `json:"tool_name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
}

// ControlResponseMessage answers a control request.
type ControlResponseMessage struct {
	Type      string           `json:"type"` // "control_response"
	RequestID string           `json:"request_id"`
	Response  *ControlResponse `json:"response"`
}

// ControlResponse is the body of a control response.
type ControlResponse struct {
	Subtype string            `json:"subtype"` // success, error
	Result  *PermissionResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// PermissionResult answers a can_use_tool request.
type PermissionResult struct {
	Behavior string `json:"behavior"` // allow, deny
	Message  string `json:"message,omitempty"`
}

// SDKControlRequest is a control request sent to the CLI, used for
// interrupts.
type SDKControlRequest struct {
	Type      string                `json:"type"` // "control_request"
	RequestID string                `json:"request_id"`
	Request   SDKControlRequestBody `json:"request"`
}

// SDKControlRequestBody is the body of an outbound control request.
type SDKControlRequestBody struct {
	Subtype string `json:"subtype"`
}

// UserMessage submits a prompt to the CLI.
type UserMessage struct {
	Type    string          `json:"type"` // "user"
	Message UserMessageBody `json:"message"`
}

// UserMessageBody carries the prompt content: a plain string or a list
// of content blocks when images are attached.
type UserMessageBody struct {
	Role    string      `json:"role"` // "user"
	Content interface{} `json:"content"`
}

// PromptBlock is one block of a structured prompt.
type PromptBlock struct {
	Type string `json:"type"` // text, image

	// For text blocks
	Text string `json:"text,omitempty"`

	// For image blocks
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource is a base64-encoded image attachment.
type ImageSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}
