// Package backend provides an HTTP client for the live session backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

// Client is an HTTP client for the backend REST API.
type Client struct {
	baseURL    string
	rosterURL  string
	httpClient *http.Client
	wsStreams  bool
}

var _ domain.Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRosterURL sets the base URL of the roster stream service.
func WithRosterURL(u string) Option {
	return func(c *Client) { c.rosterURL = strings.TrimSuffix(u, "/") }
}

// WithWebSocketStreams makes StreamURL point at the WebSocket endpoint.
func WithWebSocketStreams() Option {
	return func(c *Client) { c.wsStreams = true }
}

// NewClient creates a new backend client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rosterURL == "" {
		c.rosterURL = c.baseURL
	}
	return c
}

// ErrorResponse is the error body returned by the backend.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StartOrContinue calls POST /chat-start-or-continue.
func (c *Client) StartOrContinue(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	var resp domain.ChatResponse
	if err := c.postJSON(ctx, c.baseURL+"/chat-start-or-continue", req, &resp); err != nil {
		return nil, err
	}
	if resp.Status == domain.StartStatusError {
		msg := resp.Message
		if msg == "" {
			msg = "backend refused the session"
		}
		return nil, fmt.Errorf("failed to start session: %s", msg)
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("failed to start session: empty session id")
	}
	return &resp, nil
}

// Respond calls POST /respond/:session_id.
func (c *Client) Respond(ctx context.Context, sessionID string, req *domain.RespondRequest) error {
	u := fmt.Sprintf("%s/respond/%s", c.baseURL, url.PathEscape(sessionID))
	var ack domain.RespondResponse
	return c.postJSON(ctx, u, req, &ack)
}

// StreamURL returns the agent stream URL for a session. endpoint is the
// streamEndpoint returned by the backend and may be empty, relative or
// absolute.
func (c *Client) StreamURL(sessionID, endpoint string) string {
	if c.wsStreams {
		return fmt.Sprintf("%s/ws/stream/%s", c.baseURL, url.PathEscape(sessionID))
	}
	switch {
	case endpoint == "":
		return fmt.Sprintf("%s/stream/%s", c.baseURL, url.PathEscape(sessionID))
	case strings.Contains(endpoint, "://"):
		return endpoint
	case strings.HasPrefix(endpoint, "/"):
		return c.baseURL + endpoint
	}
	return c.baseURL + "/" + endpoint
}

// AdminStreamURL returns the roster stream URL for a session.
func (c *Client) AdminStreamURL(sessionID string) string {
	return fmt.Sprintf("%s/admin/%s", c.rosterURL, url.PathEscape(sessionID))
}

func (c *Client) postJSON(ctx context.Context, u string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", "req_"+uuid.New().String()[:8])

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
