package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/agent/runtime"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/permission"
	"github.com/agentdeck/agentdeck/internal/session/prompt"
)

// CommitToolName is the structured commit tool; its approvals carry
// the proposed commit message to the human.
const CommitToolName = "Commit"

// permissionFunc builds the synchronous tool callback for one session.
// The runtime blocks on it for every tool use.
func (m *Manager) permissionFunc(s *Session) runtime.PermissionFunc {
	return func(ctx context.Context, toolID, toolName string, input map[string]interface{}) runtime.PermissionDecision {
		decision := m.engine.Decide(permission.Request{
			Tool:  toolName,
			Input: input,
			Mode:  s.Mode(),
			Rules: s.Rules(),
		})

		switch decision.Behavior {
		case permission.BehaviorAllow:
			return runtime.PermissionDecision{Allow: true}
		case permission.BehaviorDeny:
			return runtime.PermissionDecision{Allow: false, Message: decision.Message}
		}
		return m.askHuman(ctx, s, toolID, toolName, input)
	}
}

// askHuman registers a pending interactive request, announces it, and
// blocks until a human responds or the request is force-resolved.
func (m *Manager) askHuman(ctx context.Context, s *Session, toolID, toolName string, input map[string]interface{}) runtime.PermissionDecision {
	req := &prompt.Request{
		SessionID: s.ID(),
		Kind:      kindForTool(toolName),
		Payload: map[string]interface{}{
			"tool_id":   toolID,
			"tool_name": toolName,
			"input":     input,
		},
	}
	requestID := m.broker.Create(req)

	m.publish(ctx, events.BuildInteractionSubject(s.ID()), events.SessionInteraction, events.InteractionPayload{
		SessionID: s.ID(),
		RequestID: requestID,
		Kind:      string(req.Kind),
		Payload:   req.Payload,
		CreatedAt: req.CreatedAt,
	})

	resp, err := m.broker.WaitForResponse(ctx, requestID)
	if err != nil {
		m.logger.Warn("interactive request not resolved",
			zap.Error(err),
			zap.String("session_id", s.ID()),
			zap.String("tool_name", toolName))
		return runtime.PermissionDecision{Allow: false, Message: "permission request was not answered"}
	}
	if resp.Cancelled {
		return runtime.PermissionDecision{Allow: false, Message: "permission request was cancelled"}
	}
	if !resp.Approved {
		return runtime.PermissionDecision{Allow: false, Message: "permission denied by user"}
	}
	return runtime.PermissionDecision{Allow: true}
}

// kindForTool maps a tool to the interactive request kind a human
// sees: plan approvals, question sets, commit approvals, and plain
// permission prompts.
func kindForTool(toolName string) prompt.Kind {
	switch toolName {
	case "ExitPlanMode":
		return prompt.KindPlanApproval
	case "AskUserQuestion":
		return prompt.KindUserQuestion
	case CommitToolName:
		return prompt.KindCommitApproval
	}
	return prompt.KindPermission
}
