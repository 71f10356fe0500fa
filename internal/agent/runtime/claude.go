package runtime

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/pkg/claudecode"
)

// CLIRuntime runs turns against the Claude Code CLI as a subprocess
// speaking the stream-json protocol.
type CLIRuntime struct {
	binary string
	logger *logger.Logger
}

// NewCLIRuntime creates a runtime invoking the given CLI binary.
func NewCLIRuntime(binary string, log *logger.Logger) *CLIRuntime {
	if binary == "" {
		binary = "claude"
	}
	return &CLIRuntime{binary: binary, logger: log}
}

// Open starts one turn: spawns the CLI, submits the prompt, and
// translates the stdout stream into runtime events. The returned
// stream's channel closes when the process exits.
func (r *CLIRuntime) Open(ctx context.Context, req TurnRequest) (*TurnStream, error) {
	args := []string{
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--include-partial-messages",
		"--verbose",
		"--permission-prompt-tool", "stdio",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.ResumeID != "" {
		args = append(args, "--resume", req.ResumeID)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(turnCtx, r.binary, args...)
	cmd.Dir = req.WorkingDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start agent process: %w", err)
	}

	log := r.logger.WithSessionID(req.SessionID)
	client := claudecode.NewClient(stdin, stdout, log)
	events := make(chan Event, 64)
	translator := newTranslator(events)

	client.SetMessageHandler(translator.handle)
	client.SetRequestHandler(func(requestID string, creq *claudecode.ControlRequest) {
		if creq.Subtype != claudecode.SubtypeCanUseTool {
			return
		}
		behavior := claudecode.BehaviorDeny
		message := "no permission callback configured"
		if req.Permission != nil {
			decision := req.Permission(turnCtx, creq.ToolUseID, creq.ToolName, creq.Input)
			message = decision.Message
			if decision.Allow {
				behavior = claudecode.BehaviorAllow
			} else {
				behavior = claudecode.BehaviorDeny
			}
		}
		if err := client.SendControlResponse(&claudecode.ControlResponseMessage{
			Type:      claudecode.MessageTypeControlResponse,
			RequestID: requestID,
			Response: &claudecode.ControlResponse{
				Subtype: "success",
				Result: &claudecode.PermissionResult{
					Behavior: behavior,
					Message:  message,
				},
			},
		}); err != nil {
			log.Warn("failed to send permission response", zap.Error(err))
		}
	})

	finished := client.Start(turnCtx)

	if err := r.sendPrompt(client, req); err != nil {
		cancel()
		_ = cmd.Wait()
		close(events)
		return nil, err
	}

	go func() {
		<-finished
		if err := cmd.Wait(); err != nil && turnCtx.Err() == nil {
			log.Warn("agent process exited with error", zap.Error(err))
		}
		cancel()
		close(events)
	}()

	interrupt := func() {
		if err := client.SendInterrupt(); err != nil {
			// The process is unreachable; kill it.
			cancel()
		}
	}
	return NewTurnStream(events, interrupt), nil
}

func (r *CLIRuntime) sendPrompt(client *claudecode.Client, req TurnRequest) error {
	if len(req.Images) == 0 {
		if err := client.SendUserMessage(req.Prompt); err != nil {
			return fmt.Errorf("failed to send prompt: %w", err)
		}
		return nil
	}

	blocks := make([]claudecode.PromptBlock, 0, len(req.Images)+1)
	if req.Prompt != "" {
		blocks = append(blocks, claudecode.PromptBlock{Type: "text", Text: req.Prompt})
	}
	for _, img := range req.Images {
		blocks = append(blocks, claudecode.PromptBlock{
			Type: "image",
			Source: &claudecode.ImageSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      img.Data,
			},
		})
	}
	if err := client.SendUserBlocks(blocks); err != nil {
		return fmt.Errorf("failed to send prompt blocks: %w", err)
	}
	return nil
}

// translator converts CLI messages into runtime events. It runs on the
// client's single read goroutine, so the per-turn cursors need no lock.
type translator struct {
	events chan<- Event
	// blockKinds tracks what kind of block each stream index opened.
	blockKinds map[int]BlockKind
	// blockTools tracks the tool-use id per stream index.
	blockTools map[int]string
}

func newTranslator(events chan<- Event) *translator {
	return &translator{
		events:     events,
		blockKinds: make(map[int]BlockKind),
		blockTools: make(map[int]string),
	}
}

func (t *translator) handle(msg *claudecode.CLIMessage) {
	switch msg.Type {
	case claudecode.MessageTypeSystem:
		t.handleSystem(msg)
	case claudecode.MessageTypeStreamEvent:
		t.handleStreamEvent(msg.Event)
	case claudecode.MessageTypeAssistant:
		t.handleAssistant(msg.Message)
	case claudecode.MessageTypeResult:
		t.handleResult(msg)
	}
}

func (t *translator) handleSystem(msg *claudecode.CLIMessage) {
	switch msg.Subtype {
	case claudecode.SubtypeInit:
		t.emit(Event{Type: EventInit, RemoteID: msg.SessionID})
	case claudecode.SubtypeCompactBoundary:
		event := Event{Type: EventCompaction}
		if msg.CompactMetadata != nil {
			event.CompactionTrigger = msg.CompactMetadata.Trigger
			event.PreCompactionTokens = msg.CompactMetadata.PreTokens
		}
		t.emit(event)
	}
}

func (t *translator) handleStreamEvent(ev *claudecode.StreamEvent) {
	if ev == nil {
		return
	}
	switch ev.Type {
	case claudecode.StreamContentBlockStart:
		if ev.ContentBlock == nil {
			return
		}
		switch ev.ContentBlock.Type {
		case claudecode.BlockTypeToolUse:
			t.blockKinds[ev.Index] = BlockTool
			t.blockTools[ev.Index] = ev.ContentBlock.ID
			t.emit(Event{
				Type:      EventToolStart,
				ToolID:    ev.ContentBlock.ID,
				ToolName:  ev.ContentBlock.Name,
				ToolInput: ev.ContentBlock.Input,
			})
		default:
			t.blockKinds[ev.Index] = BlockText
			t.emit(Event{Type: EventTextStart})
		}
	case claudecode.StreamContentBlockDelta:
		if ev.Delta != nil && ev.Delta.Text != "" {
			t.emit(Event{Type: EventTextDelta, Text: ev.Delta.Text})
		}
	case claudecode.StreamContentBlockStop:
		kind, ok := t.blockKinds[ev.Index]
		if !ok {
			return
		}
		event := Event{Type: EventBlockStop, Block: kind}
		if kind == BlockTool {
			event.ToolID = t.blockTools[ev.Index]
		}
		delete(t.blockKinds, ev.Index)
		delete(t.blockTools, ev.Index)
		t.emit(event)
	case claudecode.StreamMessageStop:
		t.emit(Event{Type: EventMessageStop})
	}
}

func (t *translator) handleAssistant(msg *claudecode.AssistantMessage) {
	if msg == nil {
		return
	}
	content := make([]ContentBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		content = append(content, ContentBlock{
			Type:  block.Type,
			Text:  block.Text,
			ID:    block.ID,
			Name:  block.Name,
			Input: block.Input,
		})
	}
	t.emit(Event{Type: EventAssistantMessage, Content: content})
}

func (t *translator) handleResult(msg *claudecode.CLIMessage) {
	result := &Result{
		CostUSD:       msg.TotalCostUSD,
		ContextWindow: msg.ContextWindow(),
		Model:         msg.Model,
		IsError:       msg.IsError,
	}
	if msg.Usage != nil {
		result.InputTokens = msg.Usage.InputTokens
		result.OutputTokens = msg.Usage.OutputTokens
		result.CacheReadTokens = msg.Usage.CacheReadInputTokens
		result.CacheCreationTokens = msg.Usage.CacheCreationInputTokens
	}
	if msg.IsError {
		result.Error = msg.GetResultString()
	}
	t.emit(Event{Type: EventResult, Result: result})
}

func (t *translator) emit(event Event) {
	t.events <- event
}
