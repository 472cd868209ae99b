package devapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/livesession/internal/hub"
	"github.com/xiaot623/gogo/livesession/internal/logger"
)

// streamSSE writes frames of sub until the hub closes it or the client
// goes away.
func (h *Handler) streamSSE(c echo.Context, sub *hub.Subscriber) error {
	ctx := c.Request().Context()

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if h.retry > 0 {
		if _, err := fmt.Fprintf(c.Response().Writer, "retry: %d\n\n", h.retry.Milliseconds()); err != nil {
			return err
		}
	}
	flush(c)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-h.stop:
			return nil

		case frame, ok := <-sub.Send:
			if !ok {
				return nil
			}
			if err := sendSSEFrame(c, frame); err != nil {
				logger.Warnf("failed to send SSE frame to %s: %v", sub.ID, err)
				return err
			}
		}
	}
}

// sendSSEFrame writes one frame in SSE format.
func sendSSEFrame(c echo.Context, frame hub.Frame) error {
	w := c.Response().Writer
	if frame.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", frame.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", frame.Event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", frame.Data); err != nil {
		return err
	}
	flush(c)
	return nil
}

func flush(c echo.Context) {
	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}
}
