// Package wsstream provides a WebSocket connector for stream.Source.
//
// Each text frame carries one named event as a JSON envelope:
//
//	{"event": "MESSAGE", "data": {"text": "hello"}, "id": "12"}
package wsstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/livesession/internal/adapter/stream"
	"github.com/xiaot623/gogo/livesession/internal/logger"
)

// Frame is the envelope of one pushed event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
}

// Connector dials WebSocket push connections.
type Connector struct {
	dialer *websocket.Dialer
	header http.Header
}

var _ stream.Connector = (*Connector)(nil)

// NewConnector creates a connector. A nil dialer uses websocket.DefaultDialer.
func NewConnector(dialer *websocket.Dialer) *Connector {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Connector{dialer: dialer, header: make(http.Header)}
}

// SetHeader adds a header sent with every handshake.
func (c *Connector) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// Connect dials url, rewriting http(s) schemes to ws(s).
func (c *Connector) Connect(ctx context.Context, url, lastEventID string) (stream.Reader, error) {
	header := c.header.Clone()
	if lastEventID != "" {
		header.Set("Last-Event-ID", lastEventID)
	}

	conn, resp, err := c.dialer.DialContext(ctx, ToWebSocketURL(url), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return &reader{conn: conn, stop: stop}, nil
}

// ToWebSocketURL rewrites an http(s) URL to the matching ws(s) scheme.
func ToWebSocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return url
}

type reader struct {
	conn *websocket.Conn
	stop func() bool
}

func (r *reader) Next() (stream.RawEvent, error) {
	for {
		msgType, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return stream.RawEvent{}, stream.ErrStreamEnded
			}
			return stream.RawEvent{}, err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Logger.Warn().Err(err).Int("size", len(data)).Msg("dropping undecodable websocket frame")
			continue
		}
		if frame.Event == "" {
			continue
		}
		return stream.RawEvent{
			Name: frame.Event,
			Data: string(frame.Data),
			ID:   frame.ID,
		}, nil
	}
}

func (r *reader) Close() error {
	r.stop()
	err := r.conn.Close()
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
