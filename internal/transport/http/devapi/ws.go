package devapi

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/livesession/internal/logger"
)

const wsWriteTimeout = 10 * time.Second

// StreamAgentWS handles GET /ws/stream/:session_id. Each frame is written
// as one JSON text message; the connection is closed normally after the
// final frame.
func (h *Handler) StreamAgentWS(c echo.Context) error {
	sessionID := c.Param("session_id")

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warnf("failed to upgrade WebSocket: %v", err)
		return err
	}
	defer ws.Close()

	sub := h.hub.Subscribe(agentTopic(sessionID))
	defer h.hub.Unsubscribe(sub)

	// The reader only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return nil

		case <-h.stop:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			ws.WriteMessage(websocket.CloseMessage, msg)
			return nil

		case frame, ok := <-sub.Send:
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete")
				ws.WriteMessage(websocket.CloseMessage, msg)
				return nil
			}
			if err := ws.WriteJSON(frame); err != nil {
				logger.Warnf("failed to write WebSocket frame: %v", err)
				return nil
			}
		}
	}
}
