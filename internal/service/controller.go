package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/policy"
)

// agentEvents are the stream event names a Controller subscribes to.
var agentEvents = []string{
	string(domain.TagThinking),
	string(domain.TagToolCall),
	string(domain.TagToolResult),
	string(domain.TagMessage),
	string(domain.TagAwaitingInput),
	string(domain.TagComplete),
	string(domain.TagError),
	string(domain.TagTimeout),
}

// Controller runs one agent chat session. It holds at most one open
// stream at any instant. All methods are safe for concurrent use.
type Controller struct {
	*core
	backend domain.Backend
}

// NewController creates an idle controller.
func NewController(backend domain.Backend, opener domain.StreamOpener, decider policy.Decider, opts ...Option) *Controller {
	c := &Controller{
		core:    newCore(domain.VariantAgent, opener, decider, opts),
		backend: backend,
	}
	c.settles = func(ev domain.Event) bool {
		switch ev.(type) {
		case domain.Complete, domain.Error, domain.Timeout, domain.AwaitingInput:
			return true
		}
		return false
	}
	return c
}

// SendMessage starts a new session, or continues the held one, with text.
// Backend failures move the session to the error status and are returned.
func (c *Controller) SendMessage(ctx context.Context, text string, opts *domain.SendOptions) error {
	c.mu.Lock()
	c.closeStreamLocked()
	c.gen++
	gen := c.gen
	c.applyLocked(domain.UserMessage{Text: text})
	c.applyLocked(domain.RequestStarted{})
	req := &domain.ChatRequest{
		SessionID: c.state.SessionID,
		ContextID: c.opts.contextID,
		Message:   text,
		Model:     c.opts.model,
	}
	c.mu.Unlock()

	if opts != nil {
		if opts.Model != "" {
			req.Model = opts.Model
		}
		req.Context = opts.Context
	}

	resp, err := c.backend.StartOrContinue(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.log.Debug().Str("session_id", req.SessionID).Msg("send superseded")
		return nil
	}
	if err != nil {
		c.applyLocked(domain.RequestFailed{Message: err.Error()})
		return fmt.Errorf("failed to send message: %w", err)
	}

	c.applyLocked(domain.SessionStarted{SessionID: resp.SessionID})
	c.log.Info().Str("session_id", resp.SessionID).Str("status", string(resp.Status)).Msg("session started")
	c.openStreamLocked(c.backend.StreamURL(resp.SessionID, resp.StreamEndpoint), agentEvents)
	return nil
}

// Respond answers an AWAITING_INPUT prompt and re-subscribes to the held
// session. Without a session it logs and does nothing.
func (c *Controller) Respond(ctx context.Context, answer, optionID string) error {
	c.mu.Lock()
	sessionID := c.state.SessionID
	if sessionID == "" {
		c.mu.Unlock()
		c.log.Error().Msg("respond called without an active session")
		return nil
	}
	c.closeStreamLocked()
	c.gen++
	gen := c.gen
	c.applyLocked(domain.UserMessage{Text: answer})
	c.applyLocked(domain.RequestStarted{})
	c.mu.Unlock()

	err := c.backend.Respond(ctx, sessionID, &domain.RespondRequest{Response: answer, OptionID: optionID})

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.log.Debug().Str("session_id", sessionID).Msg("respond superseded")
		return nil
	}
	if err != nil {
		c.applyLocked(domain.RequestFailed{Message: err.Error()})
		return fmt.Errorf("failed to respond: %w", err)
	}

	c.applyLocked(domain.SessionStarted{SessionID: sessionID})
	c.openStreamLocked(c.backend.StreamURL(sessionID, ""), agentEvents)
	return nil
}

// Reset closes any stream and returns the controller to the idle state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Close releases the stream. It is Reset under its teardown name.
func (c *Controller) Close() {
	c.Reset()
}
