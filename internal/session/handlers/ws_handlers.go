package handlers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/agent/runtime"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/session/lifecycle"
	"github.com/agentdeck/agentdeck/internal/session/models"
	"github.com/agentdeck/agentdeck/internal/session/prompt"
	"github.com/agentdeck/agentdeck/internal/session/store"
	ws "github.com/agentdeck/agentdeck/pkg/websocket"
)

// RegisterWSHandlers wires the session control actions into the
// gateway dispatcher. Responses mirror the HTTP handlers.
func RegisterWSHandlers(d *ws.Dispatcher, manager *lifecycle.Manager, broker *prompt.Broker, log *logger.Logger) {
	h := &wsHandlers{manager: manager, broker: broker, logger: log.WithFields(zap.String("component", "session-ws-handlers"))}
	d.RegisterFunc(ws.ActionSessionSend, h.sendMessage)
	d.RegisterFunc(ws.ActionSessionInterrupt, h.interrupt)
	d.RegisterFunc(ws.ActionSessionSetMode, h.setMode)
	d.RegisterFunc(ws.ActionSessionSetModel, h.setModel)
	d.RegisterFunc(ws.ActionInteractionRespond, h.respondInteraction)
}

type wsHandlers struct {
	manager *lifecycle.Manager
	broker  *prompt.Broker
	logger  *logger.Logger
}

// WSSendMessageRequest is the payload for session.send
type WSSendMessageRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Images    []struct {
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"images"`
	SuppressSave bool `json:"suppress_save"`
}

func (h *wsHandlers) sendMessage(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req WSSendMessageRequest
	if err := msg.ParsePayload(&req); err != nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
	}
	if req.SessionID == "" || req.Text == "" {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeValidation, "session_id and text are required", nil)
	}

	images := make([]runtime.ImageBlock, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, runtime.ImageBlock{MediaType: img.MediaType, Data: img.Data})
	}

	err := h.manager.SendMessage(ctx, req.SessionID, orDefault(req.UserID), req.Text, images, req.SuppressSave)
	if err != nil {
		return h.errorResponse(msg, err, "Failed to send message")
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"success":    true,
		"session_id": req.SessionID,
	})
}

// WSSessionRequest addresses one session.
type WSSessionRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (h *wsHandlers) interrupt(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req WSSessionRequest
	if err := msg.ParsePayload(&req); err != nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
	}
	if req.SessionID == "" {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeValidation, "session_id is required", nil)
	}

	if err := h.manager.Interrupt(ctx, req.SessionID); err != nil {
		return h.errorResponse(msg, err, "Failed to interrupt session")
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{"success": true})
}

// WSSetModeRequest is the payload for session.set_mode
type WSSetModeRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Mode      string `json:"mode"`
}

func (h *wsHandlers) setMode(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req WSSetModeRequest
	if err := msg.ParsePayload(&req); err != nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
	}
	if req.SessionID == "" || !models.Mode(req.Mode).Valid() {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeValidation, "session_id and a valid mode are required", nil)
	}

	if err := h.manager.SetMode(ctx, req.SessionID, orDefault(req.UserID), models.Mode(req.Mode)); err != nil {
		return h.errorResponse(msg, err, "Failed to set mode")
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"session_id": req.SessionID,
		"mode":       req.Mode,
	})
}

// WSSetModelRequest is the payload for session.set_model
type WSSetModelRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Model     string `json:"model"`
}

func (h *wsHandlers) setModel(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req WSSetModelRequest
	if err := msg.ParsePayload(&req); err != nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
	}
	if req.SessionID == "" || req.Model == "" {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeValidation, "session_id and model are required", nil)
	}

	if err := h.manager.SetModel(ctx, req.SessionID, orDefault(req.UserID), req.Model); err != nil {
		return h.errorResponse(msg, err, "Failed to set model")
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"session_id": req.SessionID,
		"model":      req.Model,
	})
}

// WSRespondRequest is the payload for interaction.respond
type WSRespondRequest struct {
	RequestID string                 `json:"request_id"`
	Approved  bool                   `json:"approved"`
	Payload   map[string]interface{} `json:"payload"`
}

func (h *wsHandlers) respondInteraction(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req WSRespondRequest
	if err := msg.ParsePayload(&req); err != nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
	}
	if req.RequestID == "" {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeValidation, "request_id is required", nil)
	}

	err := h.broker.Respond(req.RequestID, &prompt.Response{
		Approved: req.Approved,
		Payload:  req.Payload,
	})
	if err != nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeNotFound, err.Error(), nil)
	}
	return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{"success": true})
}

func (h *wsHandlers) errorResponse(msg *ws.Message, err error, fallback string) (*ws.Message, error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeNotFound, "session not found", nil)
	case errors.Is(err, lifecycle.ErrTurnInFlight):
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeValidation, "a turn is already in flight", nil)
	}
	h.logger.Error(fallback, zap.Error(err), zap.String("action", msg.Action))
	return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeInternalError, fallback, nil)
}

func orDefault(userID string) string {
	if userID == "" {
		return defaultUserID
	}
	return userID
}
