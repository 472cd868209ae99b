// Package devapi implements a scripted development backend for live
// sessions: the chat start/continue and respond endpoints, the agent event
// stream over SSE and WebSocket, and the roster admin stream.
package devapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/hub"
	"github.com/xiaot623/gogo/livesession/internal/logger"
)

// Handler handles development backend requests.
type Handler struct {
	hub      *hub.Hub
	agent    *Agent
	roster   *Roster
	upgrader websocket.Upgrader
	// retry is the reconnect hint sent at the start of every SSE stream.
	retry time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewHandler creates a new handler. stepDelay paces the scripted agent.
func NewHandler(h *hub.Hub, stepDelay time.Duration) *Handler {
	return &Handler{
		hub:    h,
		agent:  NewAgent(h, stepDelay),
		roster: NewRoster(h),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		retry: time.Second,
		stop:  make(chan struct{}),
	}
}

// RegisterRoutes registers the backend routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/chat-start-or-continue", h.StartOrContinue)
	e.POST("/respond/:session_id", h.Respond)
	e.GET("/stream/:session_id", h.StreamAgent)
	e.GET("/ws/stream/:session_id", h.StreamAgentWS)

	e.GET("/admin/:session_id", h.StreamRoster)
	e.POST("/admin/:session_id/participants", h.JoinParticipant)
	e.POST("/admin/:session_id/participants/:username/leave", h.LeaveParticipant)

	e.GET("/health", h.Health)
}

// Shutdown waits for in-flight agent scripts, then ends open streams.
func (h *Handler) Shutdown(ctx context.Context) {
	h.agent.shutdown(ctx)
	h.stopOnce.Do(func() { close(h.stop) })
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"subscribers": h.hub.SubscriberCount(),
	})
}

// StartOrContinue handles POST /chat-start-or-continue.
func (h *Handler) StartOrContinue(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, domain.ChatResponse{Status: domain.StartStatusError, Message: "invalid request body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, domain.ChatResponse{Status: domain.StartStatusError, Message: "message is required"})
	}

	sess, status, ok := h.agent.StartOrContinue(req.SessionID, req.ContextID, req.Model, req.Message)
	if !ok {
		return c.JSON(http.StatusNotFound, domain.ChatResponse{
			SessionID: req.SessionID,
			Status:    domain.StartStatusError,
			Message:   "session not found",
		})
	}

	logger.Infof("session %s %s (context: %s)", sess.ID, status, sess.ContextID)
	return c.JSON(http.StatusOK, domain.ChatResponse{
		SessionID:      sess.ID,
		Status:         status,
		StreamEndpoint: "/stream/" + sess.ID,
	})
}

// Respond handles POST /respond/:session_id.
func (h *Handler) Respond(c echo.Context) error {
	sessionID := c.Param("session_id")

	var req domain.RespondRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Response == "" && req.OptionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "response is required"})
	}

	if !h.agent.Respond(sessionID, req.Response, req.OptionID) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, domain.RespondResponse{OK: true})
}

// StreamAgent handles GET /stream/:session_id as server-sent events.
func (h *Handler) StreamAgent(c echo.Context) error {
	sessionID := c.Param("session_id")
	sub := h.hub.Subscribe(agentTopic(sessionID))
	defer h.hub.Unsubscribe(sub)

	return h.streamSSE(c, sub)
}

// StreamRoster handles GET /admin/:session_id. The first frame is a
// session_state_presenter snapshot; later frames are participants lists.
func (h *Handler) StreamRoster(c echo.Context) error {
	sessionID := c.Param("session_id")
	sub := h.hub.Subscribe(rosterTopic(sessionID))
	defer h.hub.Unsubscribe(sub)

	state := map[string]interface{}{
		"sessionId":    sessionID,
		"participants": h.roster.Snapshot(sessionID),
	}
	if err := h.hub.SendTo(sub, domain.RosterEventSessionState, state); err != nil {
		logger.Errorf("failed to queue roster snapshot for %s: %v", sessionID, err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "failed to queue snapshot"})
	}

	return h.streamSSE(c, sub)
}

// JoinParticipant handles POST /admin/:session_id/participants.
func (h *Handler) JoinParticipant(c echo.Context) error {
	sessionID := c.Param("session_id")

	var p domain.Participant
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if p.Username == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "username is required"})
	}

	return c.JSON(http.StatusOK, h.roster.Join(sessionID, p))
}

// LeaveParticipant handles POST /admin/:session_id/participants/:username/leave.
func (h *Handler) LeaveParticipant(c echo.Context) error {
	if !h.roster.Leave(c.Param("session_id"), c.Param("username")) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "participant not found"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
