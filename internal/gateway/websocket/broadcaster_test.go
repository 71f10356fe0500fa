package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	ws "github.com/agentdeck/agentdeck/pkg/websocket"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func newRoomClient(hub *Hub, sessionID string) *Client {
	client := NewClient("client-1", nil, hub, hub.logger)
	hub.mu.Lock()
	hub.clients[client] = true
	hub.mu.Unlock()
	hub.SubscribeToSession(client, sessionID)
	return client
}

func receiveMessage(t *testing.T, client *Client) *ws.Message {
	t.Helper()
	select {
	case data := <-client.send:
		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		return &msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for message")
		return nil
	}
}

func TestSessionStreamBroadcaster_ForwardsToRoom(t *testing.T) {
	log := newTestLogger(t)
	eventBus := bus.NewMemoryEventBus(log)
	defer eventBus.Close()

	hub := NewHub(ws.NewDispatcher(), log)
	client := newRoomClient(hub, "sess-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	RegisterSessionStreamNotifications(ctx, eventBus, hub, log)

	payload := events.OutputPayload{SessionID: "sess-1", Content: "hello"}
	err := eventBus.Publish(ctx, events.BuildOutputSubject("sess-1"), bus.NewEvent(events.SessionOutput, "test", payload))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg := receiveMessage(t, client)
	if msg.Action != ws.ActionSessionOutput {
		t.Errorf("Expected action %q, got %q", ws.ActionSessionOutput, msg.Action)
	}
	if msg.Type != ws.MessageTypeNotification {
		t.Errorf("Expected notification type, got %q", msg.Type)
	}

	var got events.OutputPayload
	if err := json.Unmarshal(msg.Payload, &got); err != nil {
		t.Fatalf("Failed to parse payload: %v", err)
	}
	if got.Content != "hello" {
		t.Errorf("Expected content %q, got %q", "hello", got.Content)
	}
}

func TestSessionStreamBroadcaster_IgnoresOtherSessions(t *testing.T) {
	log := newTestLogger(t)
	eventBus := bus.NewMemoryEventBus(log)
	defer eventBus.Close()

	hub := NewHub(ws.NewDispatcher(), log)
	client := newRoomClient(hub, "sess-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	RegisterSessionStreamNotifications(ctx, eventBus, hub, log)

	payload := events.StatusPayload{SessionID: "sess-2", Status: "running"}
	if err := eventBus.Publish(ctx, events.BuildStatusSubject("sess-2"), bus.NewEvent(events.SessionStatus, "test", payload)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-client.send:
		t.Fatal("Client should not receive another session's event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_DisconnectListenerOnEmptyRoom(t *testing.T) {
	log := newTestLogger(t)
	hub := NewHub(ws.NewDispatcher(), log)

	emptied := make(chan string, 1)
	hub.SetDisconnectListener(func(sessionID string) { emptied <- sessionID })

	client := newRoomClient(hub, "sess-1")
	if count := hub.SessionSubscriberCount("sess-1"); count != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", count)
	}

	hub.UnsubscribeFromSession(client, "sess-1")

	select {
	case sessionID := <-emptied:
		if sessionID != "sess-1" {
			t.Errorf("Expected sess-1, got %s", sessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("Disconnect listener not invoked")
	}

	if count := hub.SessionSubscriberCount("sess-1"); count != 0 {
		t.Errorf("Expected empty room, got %d", count)
	}
}
