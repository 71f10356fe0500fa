package runtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/pkg/claudecode"
)

func collectTranslated(t *testing.T, messages []*claudecode.CLIMessage) []Event {
	t.Helper()
	events := make(chan Event, 64)
	tr := newTranslator(events)
	for _, msg := range messages {
		tr.handle(msg)
	}
	close(events)

	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestTranslator_InitAndCompaction(t *testing.T) {
	events := collectTranslated(t, []*claudecode.CLIMessage{
		{Type: claudecode.MessageTypeSystem, Subtype: claudecode.SubtypeInit, SessionID: "conv-42"},
		{Type: claudecode.MessageTypeSystem, Subtype: claudecode.SubtypeCompactBoundary,
			CompactMetadata: &claudecode.CompactMetadata{Trigger: "auto", PreTokens: 150000}},
	})

	require.Len(t, events, 2)
	assert.Equal(t, EventInit, events[0].Type)
	assert.Equal(t, "conv-42", events[0].RemoteID)
	assert.Equal(t, EventCompaction, events[1].Type)
	assert.Equal(t, "auto", events[1].CompactionTrigger)
	assert.Equal(t, int64(150000), events[1].PreCompactionTokens)
}

func TestTranslator_TextStream(t *testing.T) {
	events := collectTranslated(t, []*claudecode.CLIMessage{
		{Type: claudecode.MessageTypeStreamEvent, Event: &claudecode.StreamEvent{
			Type: claudecode.StreamContentBlockStart, Index: 0,
			ContentBlock: &claudecode.ContentBlock{Type: claudecode.BlockTypeText}}},
		{Type: claudecode.MessageTypeStreamEvent, Event: &claudecode.StreamEvent{
			Type: claudecode.StreamContentBlockDelta, Index: 0,
			Delta: &claudecode.Delta{Type: "text_delta", Text: "Hello "}}},
		{Type: claudecode.MessageTypeStreamEvent, Event: &claudecode.StreamEvent{
			Type: claudecode.StreamContentBlockDelta, Index: 0,
			Delta: &claudecode.Delta{Type: "text_delta", Text: "world"}}},
		{Type: claudecode.MessageTypeStreamEvent, Event: &claudecode.StreamEvent{
			Type: claudecode.StreamContentBlockStop, Index: 0}},
		{Type: claudecode.MessageTypeStreamEvent, Event: &claudecode.StreamEvent{
			Type: claudecode.StreamMessageStop}},
	})

	require.Len(t, events, 5)
	assert.Equal(t, EventTextStart, events[0].Type)
	assert.Equal(t, EventTextDelta, events[1].Type)
	assert.Equal(t, "Hello ", events[1].Text)
	assert.Equal(t, "world", events[2].Text)
	assert.Equal(t, EventBlockStop, events[3].Type)
	assert.Equal(t, BlockText, events[3].Block)
	assert.Equal(t, EventMessageStop, events[4].Type)
}

func TestTranslator_ToolStream(t *testing.T) {
	events := collectTranslated(t, []*claudecode.CLIMessage{
		{Type: claudecode.MessageTypeStreamEvent, Event: &claudecode.StreamEvent{
			Type: claudecode.StreamContentBlockStart, Index: 1,
			ContentBlock: &claudecode.ContentBlock{
				Type: claudecode.BlockTypeToolUse, ID: "toolu_1", Name: "Bash",
				Input: map[string]interface{}{"command": "ls"}}}},
		{Type: claudecode.MessageTypeStreamEvent, Event: &claudecode.StreamEvent{
			Type: claudecode.StreamContentBlockStop, Index: 1}},
	})

	require.Len(t, events, 2)
	assert.Equal(t, EventToolStart, events[0].Type)
	assert.Equal(t, "toolu_1", events[0].ToolID)
	assert.Equal(t, "Bash", events[0].ToolName)
	assert.Equal(t, "ls", events[0].ToolInput["command"])
	assert.Equal(t, EventBlockStop, events[1].Type)
	assert.Equal(t, BlockTool, events[1].Block)
	assert.Equal(t, "toolu_1", events[1].ToolID)
}

func TestTranslator_AssistantEcho(t *testing.T) {
	events := collectTranslated(t, []*claudecode.CLIMessage{
		{Type: claudecode.MessageTypeAssistant, Message: &claudecode.AssistantMessage{
			Role: "assistant",
			Content: []claudecode.ContentBlock{
				{Type: claudecode.BlockTypeText, Text: "done"},
				{Type: claudecode.BlockTypeToolUse, ID: "toolu_2", Name: "Read",
					Input: map[string]interface{}{"file_path": "main.go"}},
			}}},
	})

	require.Len(t, events, 1)
	assert.Equal(t, EventAssistantMessage, events[0].Type)
	require.Len(t, events[0].Content, 2)
	assert.Equal(t, "done", events[0].Content[0].Text)
	assert.Equal(t, "toolu_2", events[0].Content[1].ID)
}

func TestTranslator_Result(t *testing.T) {
	window := int64(200000)
	errText, _ := json.Marshal("turn failed")
	events := collectTranslated(t, []*claudecode.CLIMessage{
		{Type: claudecode.MessageTypeResult,
			TotalCostUSD: 0.12,
			Model:        "claude-sonnet-4-5",
			Usage: &claudecode.Usage{
				InputTokens: 1000, OutputTokens: 200,
				CacheReadInputTokens: 50, CacheCreationInputTokens: 10,
			},
			ModelUsage: map[string]claudecode.ModelUsageStats{
				"claude-sonnet-4-5": {ContextWindow: &window},
			}},
		{Type: claudecode.MessageTypeResult, IsError: true, Result: errText},
	})

	require.Len(t, events, 2)
	result := events[0].Result
	require.NotNil(t, result)
	assert.Equal(t, int64(1000), result.InputTokens)
	assert.Equal(t, int64(200), result.OutputTokens)
	assert.Equal(t, int64(50), result.CacheReadTokens)
	assert.Equal(t, int64(10), result.CacheCreationTokens)
	assert.Equal(t, int64(200000), result.ContextWindow)
	assert.InDelta(t, 0.12, result.CostUSD, 1e-9)
	assert.False(t, result.IsError)

	require.NotNil(t, events[1].Result)
	assert.True(t, events[1].Result.IsError)
	assert.Equal(t, "turn failed", events[1].Result.Error)
}
