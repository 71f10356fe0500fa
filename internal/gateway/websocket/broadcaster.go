package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	ws "github.com/agentdeck/agentdeck/pkg/websocket"
)

// SessionStreamBroadcaster bridges the event bus to session rooms: one
// wildcard subscription covers every session-scoped subject, and each
// event is forwarded as a notification to the session's subscribers.
// The event kind doubles as the websocket action.
type SessionStreamBroadcaster struct {
	hub          *Hub
	subscription bus.Subscription
	logger       *logger.Logger
}

// RegisterSessionStreamNotifications wires the event bus into the hub.
func RegisterSessionStreamNotifications(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) *SessionStreamBroadcaster {
	b := &SessionStreamBroadcaster{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws_session_broadcaster")),
	}
	if eventBus == nil {
		return b
	}

	sub, err := eventBus.Subscribe(events.SessionWildcardSubject(), b.handleEvent)
	if err != nil {
		b.logger.Error("failed to subscribe to session events", zap.Error(err))
		return b
	}
	b.subscription = sub

	go func() {
		<-ctx.Done()
		b.Close()
	}()

	return b
}

// Close drops the bus subscription.
func (b *SessionStreamBroadcaster) Close() {
	if b.subscription != nil && b.subscription.IsValid() {
		_ = b.subscription.Unsubscribe()
	}
	b.subscription = nil
}

func (b *SessionStreamBroadcaster) handleEvent(ctx context.Context, event *bus.Event) error {
	sessionID := extractSessionID(event.Data)
	if sessionID == "" {
		return nil
	}
	msg, err := ws.NewNotification(event.Type, event.Data)
	if err != nil {
		b.logger.Error("failed to build websocket notification",
			zap.String("type", event.Type), zap.Error(err))
		return nil
	}
	b.hub.BroadcastToSession(sessionID, msg)
	return nil
}

func extractSessionID(data any) string {
	if data == nil {
		return ""
	}
	if typed, ok := data.(interface{ GetSessionID() string }); ok {
		return typed.GetSessionID()
	}
	if m, ok := data.(map[string]any); ok {
		if sessionID, ok := m["session_id"].(string); ok {
			return sessionID
		}
	}
	return ""
}
