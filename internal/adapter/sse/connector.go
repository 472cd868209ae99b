package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xiaot623/gogo/livesession/internal/adapter/stream"
)

// Connector opens SSE connections over HTTP.
type Connector struct {
	httpClient *http.Client
	header     http.Header
}

var _ stream.Connector = (*Connector)(nil)

// NewConnector creates a connector. A nil client uses one without a
// timeout, since event streams are long-lived.
func NewConnector(client *http.Client) *Connector {
	if client == nil {
		client = &http.Client{}
	}
	return &Connector{httpClient: client, header: make(http.Header)}
}

// SetHeader adds a header sent with every connection request.
func (c *Connector) SetHeader(key, value string) {
	c.header.Set(key, value)
}

// Connect issues the GET request and returns a reader over the body.
func (c *Connector) Connect(ctx context.Context, url, lastEventID string) (stream.Reader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d: %s", resp.StatusCode, string(body))
	}

	return &reader{body: resp.Body, dec: NewDecoder(resp.Body)}, nil
}

type reader struct {
	body io.ReadCloser
	dec  *Decoder
}

func (r *reader) Next() (stream.RawEvent, error) {
	ev, err := r.dec.Next()
	if errors.Is(err, io.EOF) {
		return ev, stream.ErrStreamEnded
	}
	return ev, err
}

func (r *reader) Close() error {
	return r.body.Close()
}
