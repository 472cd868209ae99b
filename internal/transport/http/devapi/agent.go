package devapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/hub"
	"github.com/xiaot623/gogo/livesession/internal/logger"
)

// agentTopic is the hub key of a session's agent stream.
func agentTopic(sessionID string) string { return "agent:" + sessionID }

// rosterTopic is the hub key of a session's roster stream.
func rosterTopic(sessionID string) string { return "roster:" + sessionID }

type step struct {
	event string
	body  interface{}
	final bool
}

type agentSession struct {
	ID        string
	ContextID string
	Model     string
	CreatedAt time.Time
	Awaiting  bool
}

// Agent is a scripted stand-in for a real agent backend. Every script is
// published to the hub in order; frames published before the client
// subscribes are buffered by the hub.
type Agent struct {
	hub   *hub.Hub
	delay time.Duration

	mu       sync.Mutex
	sessions map[string]*agentSession
	wg       sync.WaitGroup
}

// NewAgent creates a scripted agent. delay is the pause between frames.
func NewAgent(h *hub.Hub, delay time.Duration) *Agent {
	return &Agent{
		hub:      h,
		delay:    delay,
		sessions: make(map[string]*agentSession),
	}
}

// StartOrContinue creates a session when sessionID is empty, then plays
// the message script. ok is false for an unknown sessionID.
func (a *Agent) StartOrContinue(sessionID, contextID, model, text string) (sess agentSession, status domain.StartStatus, ok bool) {
	a.mu.Lock()
	s, exists := a.sessions[sessionID]
	switch {
	case sessionID == "":
		s = &agentSession{
			ID:        "sess_" + uuid.New().String()[:8],
			ContextID: contextID,
			Model:     model,
			CreatedAt: time.Now(),
		}
		a.sessions[s.ID] = s
		status = domain.StartStatusStarted
	case exists:
		status = domain.StartStatusResumed
	default:
		a.mu.Unlock()
		return agentSession{}, domain.StartStatusError, false
	}
	s.Awaiting = wantsConfirmation(text)
	sess = *s
	a.mu.Unlock()

	a.play(sess.ID, messageScript(text))
	return sess, status, true
}

// Respond answers a pending confirmation. ok is false for an unknown session.
func (a *Agent) Respond(sessionID, response, optionID string) bool {
	a.mu.Lock()
	s, exists := a.sessions[sessionID]
	if exists {
		s.Awaiting = false
	}
	a.mu.Unlock()
	if !exists {
		return false
	}

	a.play(sessionID, respondScript(response, optionID))
	return true
}

// Wait blocks until every script has been published.
func (a *Agent) Wait() {
	a.wg.Wait()
}

func (a *Agent) play(sessionID string, steps []step) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for i, st := range steps {
			if i > 0 && a.delay > 0 {
				time.Sleep(a.delay)
			}
			if err := a.hub.Publish(agentTopic(sessionID), st.event, st.body, st.final); err != nil {
				logger.Errorf("failed to publish %s for %s: %v", st.event, sessionID, err)
				return
			}
		}
	}()
}

func wantsConfirmation(text string) bool {
	return strings.Contains(strings.ToLower(text), "confirm")
}

func messageScript(text string) []step {
	steps := []step{
		{event: string(domain.TagThinking), body: struct{}{}},
		{event: string(domain.TagToolCall), body: map[string]interface{}{
			"toolName":      "echo.lookup",
			"toolArguments": map[string]string{"query": text},
		}},
	}

	if strings.Contains(strings.ToLower(text), "error") {
		return append(steps,
			step{event: string(domain.TagToolResult), body: map[string]interface{}{
				"toolSuccess": false,
				"toolError":   "lookup failed",
			}},
			step{event: string(domain.TagError), body: map[string]string{"message": "scripted failure"}, final: true},
		)
	}

	steps = append(steps,
		step{event: string(domain.TagToolResult), body: map[string]interface{}{
			"toolResult":  map[string]int{"matches": 1},
			"toolSuccess": true,
		}},
		step{event: string(domain.TagMessage), body: map[string]string{"text": "You said: " + text}},
	)

	if wantsConfirmation(text) {
		return append(steps, step{event: string(domain.TagAwaitingInput), body: domain.AwaitingInput{
			Question: "Confirm?",
			Options: []domain.Option{
				{ID: "yes", Label: "Yes"},
				{ID: "no", Label: "No"},
			},
		}, final: true})
	}
	return append(steps, step{event: string(domain.TagComplete), body: struct{}{}, final: true})
}

func respondScript(response, optionID string) []step {
	text := "Received: " + response
	if optionID != "" {
		text += " (" + optionID + ")"
	}
	return []step{
		{event: string(domain.TagMessage), body: map[string]string{"text": text}},
		{event: string(domain.TagComplete), body: struct{}{}, final: true},
	}
}

// shutdown waits for running scripts or until ctx is done.
func (a *Agent) shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
