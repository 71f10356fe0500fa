// Package handlers exposes the session control panel API over HTTP
// and WebSocket actions. Handlers stay thin and delegate to the
// lifecycle manager and the interactive request broker.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/agent/runtime"
	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/session/lifecycle"
	"github.com/agentdeck/agentdeck/internal/session/models"
	"github.com/agentdeck/agentdeck/internal/session/prompt"
	"github.com/agentdeck/agentdeck/internal/session/store"
)

// defaultUserID is used when the client supplies no identity header.
// Authentication is an outer concern; single-user deployments never
// set the header.
const defaultUserID = "default"

type Handlers struct {
	manager *lifecycle.Manager
	broker  *prompt.Broker
	store   *store.Store
	logger  *logger.Logger
}

func NewHandlers(manager *lifecycle.Manager, broker *prompt.Broker, st *store.Store, log *logger.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		broker:  broker,
		store:   st,
		logger:  log.WithFields(zap.String("component", "session-handlers")),
	}
}

func RegisterRoutes(router *gin.Engine, manager *lifecycle.Manager, broker *prompt.Broker, st *store.Store, log *logger.Logger) {
	handlers := NewHandlers(manager, broker, st, log)
	api := router.Group("/api/v1")

	api.GET("/sessions", handlers.httpListSessions)
	api.POST("/sessions", handlers.httpCreateSession)
	api.GET("/sessions/:id", handlers.httpGetSession)
	api.POST("/sessions/:id/start", handlers.httpStartSession)
	api.POST("/sessions/:id/stop", handlers.httpStopSession)
	api.POST("/sessions/:id/restart", handlers.httpRestartSession)
	api.POST("/sessions/:id/resume", handlers.httpResumeSession)
	api.POST("/sessions/:id/message", handlers.httpSendMessage)
	api.POST("/sessions/:id/interrupt", handlers.httpInterrupt)
	api.PUT("/sessions/:id/mode", handlers.httpSetMode)
	api.PUT("/sessions/:id/model", handlers.httpSetModel)
	api.GET("/sessions/:id/messages", handlers.httpListMessages)
	api.GET("/sessions/:id/usage", handlers.httpGetUsage)

	api.GET("/interactions", handlers.httpListInteractions)
	api.POST("/interactions/:id/respond", handlers.httpRespondInteraction)
}

func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return defaultUserID
}

func (h *Handlers) fail(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, lifecycle.ErrTurnInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "a turn is already in flight"})
	default:
		h.logger.Error("request failed", zap.String("action", action), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action})
	}
}

// CreateSessionRequest is the payload for POST /sessions.
type CreateSessionRequest struct {
	WorkingDir string `json:"working_dir" binding:"required"`
	Mode       string `json:"mode"`
	Model      string `json:"model"`
}

func (h *Handlers) httpCreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.Mode != "" && !models.Mode(req.Mode).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode"})
		return
	}

	session := &models.Session{
		UserID:     userID(c),
		WorkingDir: req.WorkingDir,
		Mode:       models.Mode(req.Mode),
		Model:      req.Model,
	}
	if err := h.store.CreateSession(c.Request.Context(), session); err != nil {
		h.fail(c, err, "create session")
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handlers) httpListSessions(c *gin.Context) {
	sessions, err := h.store.ListSessions(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, err, "list sessions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handlers) httpGetSession(c *gin.Context) {
	session, err := h.store.GetSession(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		h.fail(c, err, "get session")
		return
	}
	c.JSON(http.StatusOK, session)
}

// StartSessionRequest carries optional per-start overrides.
type StartSessionRequest struct {
	Mode  string `json:"mode"`
	Model string `json:"model"`
}

func (h *Handlers) httpStartSession(c *gin.Context) {
	// The body is optional; overrides default to staged/persisted values.
	var req StartSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
	}

	session, err := h.manager.Start(c.Request.Context(), c.Param("id"), userID(c), lifecycle.StartOptions{
		Mode:  models.Mode(req.Mode),
		Model: req.Model,
	})
	if err != nil {
		h.fail(c, err, "start session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID(),
		"mode":       session.Mode(),
		"model":      session.Model(),
	})
}

func (h *Handlers) httpStopSession(c *gin.Context) {
	if err := h.manager.Stop(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, "stop session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) httpRestartSession(c *gin.Context) {
	session, err := h.manager.Restart(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		h.fail(c, err, "restart session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session.ID()})
}

func (h *Handlers) httpResumeSession(c *gin.Context) {
	session, err := h.manager.Resume(c.Request.Context(), c.Param("id"), userID(c))
	if err != nil {
		h.fail(c, err, "resume session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session.ID()})
}

// SendMessageRequest is the payload for POST /sessions/:id/message.
type SendMessageRequest struct {
	Text   string `json:"text" binding:"required"`
	Images []struct {
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"images"`
	SuppressSave bool `json:"suppress_save"`
}

func (h *Handlers) httpSendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	images := make([]runtime.ImageBlock, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, runtime.ImageBlock{MediaType: img.MediaType, Data: img.Data})
	}

	err := h.manager.SendMessage(c.Request.Context(), c.Param("id"), userID(c), req.Text, images, req.SuppressSave)
	if err != nil {
		h.fail(c, err, "send message")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (h *Handlers) httpInterrupt(c *gin.Context) {
	if err := h.manager.Interrupt(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, "interrupt session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetModeRequest is the payload for PUT /sessions/:id/mode.
type SetModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *Handlers) httpSetMode(c *gin.Context) {
	var req SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !models.Mode(req.Mode).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mode"})
		return
	}
	if err := h.manager.SetMode(c.Request.Context(), c.Param("id"), userID(c), models.Mode(req.Mode)); err != nil {
		h.fail(c, err, "set mode")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

// SetModelRequest is the payload for PUT /sessions/:id/model.
type SetModelRequest struct {
	Model string `json:"model" binding:"required"`
}

func (h *Handlers) httpSetModel(c *gin.Context) {
	var req SetModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.manager.SetModel(c.Request.Context(), c.Param("id"), userID(c), req.Model); err != nil {
		h.fail(c, err, "set model")
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": req.Model})
}

func (h *Handlers) httpListMessages(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.store.GetSession(c.Request.Context(), sessionID, userID(c)); err != nil {
		h.fail(c, err, "list messages")
		return
	}
	messages, err := h.store.ListMessages(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handlers) httpGetUsage(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.store.GetSession(c.Request.Context(), sessionID, userID(c)); err != nil {
		h.fail(c, err, "get usage")
		return
	}
	usage, err := h.store.GetUsage(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err, "get usage")
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (h *Handlers) httpListInteractions(c *gin.Context) {
	pending := h.broker.ListPending(c.Query("session_id"))
	c.JSON(http.StatusOK, gin.H{"interactions": pending})
}

// RespondInteractionRequest is the payload for
// POST /interactions/:id/respond.
type RespondInteractionRequest struct {
	Approved bool                   `json:"approved"`
	Payload  map[string]interface{} `json:"payload"`
}

func (h *Handlers) httpRespondInteraction(c *gin.Context) {
	var req RespondInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	err := h.broker.Respond(c.Param("id"), &prompt.Response{
		Approved: req.Approved,
		Payload:  req.Payload,
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
