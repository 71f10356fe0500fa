// Package stream converts one turn's ordered runtime events into
// domain side effects: session state updates, ring-buffer appends,
// broadcast events, and fire-and-forget persistence writes.
package stream

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/agent/runtime"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	"github.com/agentdeck/agentdeck/internal/session/buffer"
	"github.com/agentdeck/agentdeck/internal/session/models"
	"github.com/agentdeck/agentdeck/internal/session/usage"
)

// resumeAckPrefix marks the runtime's literal acknowledgment of a
// resumed conversation; it is rewritten into a structured resume
// marker instead of being saved as prose.
const resumeAckPrefix = "This session is being continued from a previous conversation"

// Session is the mutable per-session state the processor updates. The
// implementation guards the ring buffer with its own lock.
type Session interface {
	ID() string
	SetRemoteID(remoteID string)
	SetStreaming(streaming bool)
	IsCompacting() bool
	SetCompacting(compacting bool)
	AppendOutput(msg buffer.BufferedMessage)
	Usage() *usage.Accumulator
}

// Store is the subset of persistence the processor writes to. Store
// failures are logged, never fatal to stream processing.
type Store interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	UpsertToolExecution(ctx context.Context, exec *models.ToolExecution) error
	UpsertUsage(ctx context.Context, u *models.TokenUsage) error
	UpdateSessionRemoteID(ctx context.Context, id, remoteID string) error
}

// Publisher pushes broadcast events; delivery is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, subject string, event *bus.Event) error
}

// turnState holds the per-turn cursors. A fresh processor is built for
// every turn, so partial state cannot leak across turns.
type turnState struct {
	text        strings.Builder
	toolID      string
	toolName    string
	toolInput   map[string]interface{}
	seenToolIDs map[string]bool
}

// Processor drains one turn's event stream.
type Processor struct {
	session   Session
	store     Store
	publisher Publisher
	logger    *logger.Logger
	turn      turnState
}

// NewProcessor creates a processor for one turn.
func NewProcessor(session Session, store Store, publisher Publisher, log *logger.Logger) *Processor {
	return &Processor{
		session:   session,
		store:     store,
		publisher: publisher,
		logger:    log.WithSessionID(session.ID()),
		turn:      turnState{seenToolIDs: make(map[string]bool)},
	}
}

// Process applies one runtime event's side effects. Events must be
// delivered in arrival order.
func (p *Processor) Process(ctx context.Context, ev runtime.Event) {
	switch ev.Type {
	case runtime.EventInit:
		p.handleInit(ctx, ev)
	case runtime.EventCompaction:
		p.handleCompaction(ctx, ev)
	case runtime.EventTextStart:
		p.handleTextStart(ctx)
	case runtime.EventTextDelta:
		p.handleTextDelta(ctx, ev)
	case runtime.EventToolStart:
		p.handleToolStart(ctx, ev.ToolID, ev.ToolName, ev.ToolInput)
	case runtime.EventBlockStop:
		p.handleBlockStop(ctx, ev)
	case runtime.EventMessageStop:
		p.handleMessageStop(ctx)
	case runtime.EventAssistantMessage:
		p.handleAssistantEcho(ctx, ev)
	case runtime.EventResult:
		p.handleResult(ctx, ev)
	}
}

func (p *Processor) handleInit(ctx context.Context, ev runtime.Event) {
	if ev.RemoteID == "" {
		return
	}
	p.session.SetRemoteID(ev.RemoteID)
	if err := p.store.UpdateSessionRemoteID(ctx, p.session.ID(), ev.RemoteID); err != nil {
		p.logger.Error("failed to persist remote conversation id", zap.Error(err))
	}
}

func (p *Processor) handleCompaction(ctx context.Context, ev runtime.Event) {
	p.session.SetCompacting(true)
	metaType := string(models.MetaCompact)
	p.persistMessage(ctx, &models.Message{
		SessionID: p.session.ID(),
		Role:      models.RoleSystem,
		Content:   "context compacted",
		MetaType:  &metaType,
		MetaData: map[string]interface{}{
			"trigger":    ev.CompactionTrigger,
			"pre_tokens": ev.PreCompactionTokens,
		},
	})
}

func (p *Processor) handleTextStart(ctx context.Context) {
	p.session.SetStreaming(true)
	p.turn.text.Reset()
	p.publishThinking(ctx, true)
}

func (p *Processor) handleTextDelta(ctx context.Context, ev runtime.Event) {
	p.turn.text.WriteString(ev.Text)

	payload := events.OutputPayload{
		SessionID:  p.session.ID(),
		Content:    ev.Text,
		IsComplete: false,
	}
	p.publish(ctx, events.BuildOutputSubject(p.session.ID()), events.SessionOutput, payload)
	p.session.AppendOutput(buffer.BufferedMessage{
		Type:      events.SessionOutput,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Processor) handleToolStart(ctx context.Context, toolID, toolName string, input map[string]interface{}) {
	p.turn.toolID = toolID
	p.turn.toolName = toolName
	p.turn.toolInput = input
	p.turn.seenToolIDs[toolID] = true

	if err := p.store.UpsertToolExecution(ctx, &models.ToolExecution{
		ID:        toolID,
		SessionID: p.session.ID(),
		ToolName:  toolName,
		Input:     input,
		Status:    models.ToolStarted,
	}); err != nil {
		p.logger.Error("failed to persist tool execution", zap.Error(err), zap.String("tool_id", toolID))
	}

	p.publish(ctx, events.BuildToolUseSubject(p.session.ID()), events.SessionToolUse, events.ToolUsePayload{
		SessionID: p.session.ID(),
		ToolID:    toolID,
		ToolName:  toolName,
		Status:    string(models.ToolStarted),
		Input:     input,
	})
}

func (p *Processor) handleBlockStop(ctx context.Context, ev runtime.Event) {
	switch ev.Block {
	case runtime.BlockTool:
		p.completeTool(ctx, ev.ToolID)
	default:
		p.finishText(ctx)
	}
}

func (p *Processor) finishText(ctx context.Context) {
	text := p.turn.text.String()
	if text != "" {
		p.saveAssistantText(ctx, text)
	}
	p.publishThinking(ctx, false)
	p.turn.text.Reset()
}

// saveAssistantText persists accumulated assistant prose, suppressing
// intermediate output during compaction and rewriting the runtime's
// resume acknowledgment into a structured marker.
func (p *Processor) saveAssistantText(ctx context.Context, text string) {
	if p.session.IsCompacting() {
		return
	}
	if strings.HasPrefix(strings.TrimSpace(text), resumeAckPrefix) {
		metaType := string(models.MetaResume)
		p.persistMessage(ctx, &models.Message{
			SessionID: p.session.ID(),
			Role:      models.RoleSystem,
			Content:   "conversation resumed",
			MetaType:  &metaType,
		})
		return
	}
	p.persistMessage(ctx, &models.Message{
		SessionID: p.session.ID(),
		Role:      models.RoleAssistant,
		Content:   text,
	})
}

func (p *Processor) completeTool(ctx context.Context, toolID string) {
	if toolID == "" {
		toolID = p.turn.toolID
	}
	toolName := p.turn.toolName
	input := p.turn.toolInput

	if err := p.store.UpsertToolExecution(ctx, &models.ToolExecution{
		ID:        toolID,
		SessionID: p.session.ID(),
		ToolName:  toolName,
		Input:     input,
		Status:    models.ToolCompleted,
	}); err != nil {
		p.logger.Error("failed to persist tool completion", zap.Error(err), zap.String("tool_id", toolID))
	}

	p.publish(ctx, events.BuildToolUseSubject(p.session.ID()), events.SessionToolUse, events.ToolUsePayload{
		SessionID: p.session.ID(),
		ToolID:    toolID,
		ToolName:  toolName,
		Status:    string(models.ToolCompleted),
	})

	p.turn.toolID = ""
	p.turn.toolName = ""
	p.turn.toolInput = nil
}

func (p *Processor) handleMessageStop(ctx context.Context) {
	p.session.SetStreaming(false)
	p.publishThinking(ctx, false)
}

// handleAssistantEcho extracts tool-use blocks that never appeared as
// streaming events. Text blocks are ignored to avoid double-saving.
func (p *Processor) handleAssistantEcho(ctx context.Context, ev runtime.Event) {
	for _, block := range ev.Content {
		if block.ID == "" || block.Name == "" {
			continue
		}
		if p.turn.seenToolIDs[block.ID] {
			continue
		}
		p.handleToolStart(ctx, block.ID, block.Name, block.Input)
	}
}

func (p *Processor) handleResult(ctx context.Context, ev runtime.Event) {
	result := ev.Result
	if result == nil {
		return
	}
	p.session.SetCompacting(false)

	acc := p.session.Usage()
	acc.Add(usage.Delta{
		InputTokens:         result.InputTokens,
		OutputTokens:        result.OutputTokens,
		CacheReadTokens:     result.CacheReadTokens,
		CacheCreationTokens: result.CacheCreationTokens,
		CostUSD:             result.CostUSD,
		ContextWindow:       result.ContextWindow,
		Model:               result.Model,
	})

	snapshot := acc.Snapshot(p.session.ID())
	p.publish(ctx, events.BuildUsageSubject(p.session.ID()), events.SessionUsage, events.UsagePayload{
		SessionID:               p.session.ID(),
		InputTokens:             snapshot.InputTokens,
		OutputTokens:            snapshot.OutputTokens,
		CacheReadTokens:         snapshot.CacheReadTokens,
		CacheCreationTokens:     snapshot.CacheCreationTokens,
		TotalTokens:             acc.TotalTokens(),
		ContextWindow:           snapshot.ContextWindow,
		ContextUsedPercent:      acc.UsedPercent(),
		ContextRemainingPercent: acc.RemainingPercent(),
		TotalCostUSD:            snapshot.TotalCostUSD,
		Model:                   snapshot.Model,
	})

	if err := p.store.UpsertUsage(ctx, &snapshot); err != nil {
		p.logger.Error("failed to persist usage snapshot", zap.Error(err))
	}

	if result.IsError {
		p.publish(ctx, events.BuildErrorSubject(p.session.ID()), events.SessionError, events.ErrorPayload{
			SessionID: p.session.ID(),
			Error:     result.Error,
		})
	}
}

// persistMessage writes a history entry and broadcasts it.
func (p *Processor) persistMessage(ctx context.Context, message *models.Message) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	if err := p.store.CreateMessage(ctx, message); err != nil {
		p.logger.Error("failed to persist message", zap.Error(err), zap.String("role", string(message.Role)))
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
	payload.MetaData = message.MetaData
	p.publish(ctx, events.BuildMessageSubject(p.session.ID()), events.SessionMessage, payload)
}

func (p *Processor) publishThinking(ctx context.Context, thinking bool) {
	p.publish(ctx, events.BuildThinkingSubject(p.session.ID()), events.SessionThinking, events.ThinkingPayload{
		SessionID:  p.session.ID(),
		IsThinking: thinking,
	})
}

func (p *Processor) publish(ctx context.Context, subject, eventType string, payload interface{}) {
	if err := p.publisher.Publish(ctx, subject, bus.NewEvent(eventType, "session-stream", payload)); err != nil {
		p.logger.Error("failed to publish event", zap.Error(err), zap.String("subject", subject))
	}
}
