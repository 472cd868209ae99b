// Package service drives live sessions: it owns the push stream, feeds
// decoded events through the reducer and publishes state snapshots.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/livesession/internal/adapter/stream"
	"github.com/xiaot623/gogo/livesession/internal/decoder"
	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/logger"
	"github.com/xiaot623/gogo/livesession/internal/policy"
	"github.com/xiaot623/gogo/livesession/internal/session"
)

// ConnectionLostMessage is shown when a stream is given up.
const ConnectionLostMessage = "Connection lost. Please try again."

// Option configures a Controller or RosterWatcher.
type Option func(*options)

type options struct {
	recorder  domain.Recorder
	now       func() time.Time
	newID     func() string
	contextID string
	model     string
}

// WithRecorder journals raw events and log entries.
func WithRecorder(r domain.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithClock overrides the timestamp source for log entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides the log entry id source.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithContextID sets the context id sent with every chat request.
func WithContextID(id string) Option {
	return func(o *options) { o.contextID = id }
}

// WithModel sets the default model sent with chat requests.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

func buildOptions(opts []Option) options {
	o := options{
		now:   time.Now,
		newID: func() string { return "msg_" + uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// core is the state machine shared by both session variants. Every field
// below mu is guarded by it, and every listener callback runs with mu held.
type core struct {
	variant    domain.Variant
	opener     domain.StreamOpener
	decider    policy.Decider
	maxRetries int
	opts       options
	log        zerolog.Logger

	// settles reports events after which the stream is closed.
	settles func(domain.Event) bool

	mu        sync.Mutex
	state     session.State
	stream    domain.Stream
	gen       uint64
	listeners []func(session.State)
}

func newCore(variant domain.Variant, opener domain.StreamOpener, decider policy.Decider, opts []Option) *core {
	return &core{
		variant: variant,
		opener:  opener,
		decider: decider,
		opts:    buildOptions(opts),
		log:     logger.Logger.With().Str("variant", string(variant)).Logger(),
		state:   session.Initial(),
		settles: func(domain.Event) bool { return false },
	}
}

// Snapshot returns the current state. The returned value must be treated
// as read-only.
func (c *core) Snapshot() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChange registers fn to receive every new state. fn runs synchronously
// after each reduction and must not call back into the owner.
func (c *core) OnChange(fn func(session.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *core) applyLocked(ev domain.Event) {
	prev := c.state
	c.state = session.Reduce(prev, session.Envelope{
		ID:    c.opts.newID(),
		At:    c.opts.now(),
		Event: ev,
	})
	if prev.SessionID == "" {
		// entries added before the backend assigned an id
		c.recordEntriesLocked(nil, c.state.Messages)
	} else {
		c.recordEntriesLocked(prev.Messages, c.state.Messages)
	}
	for _, fn := range c.listeners {
		fn(c.state)
	}
}

// recordEntriesLocked journals appended entries and the one entry a
// TOOL_RESULT may have replaced.
func (c *core) recordEntriesLocked(prev, next []domain.LogEntry) {
	if c.opts.recorder == nil || c.state.SessionID == "" {
		return
	}
	for i := range next {
		if i < len(prev) && prev[i].ToolCall == next[i].ToolCall && prev[i].Text == next[i].Text {
			continue
		}
		entry := next[i]
		if err := c.opts.recorder.RecordEntry(context.Background(), c.state.SessionID, &entry); err != nil {
			c.log.Warn().Err(err).Str("session_id", c.state.SessionID).Msg("failed to journal log entry")
		}
	}
}

func (c *core) closeStreamLocked() {
	if c.stream == nil {
		return
	}
	c.stream.Close()
	c.stream = nil
}

// sessionToucher is implemented by recorders that track session metadata.
type sessionToucher interface {
	TouchSession(ctx context.Context, sessionID string, variant domain.Variant) error
}

// openStreamLocked replaces the current stream with a new one on url.
// Callbacks of the new stream are ignored once it has been superseded.
func (c *core) openStreamLocked(url string, names []string) {
	c.closeStreamLocked()
	if t, ok := c.opts.recorder.(sessionToucher); ok && c.state.SessionID != "" {
		if err := t.TouchSession(context.Background(), c.state.SessionID, c.variant); err != nil {
			c.log.Warn().Err(err).Str("session_id", c.state.SessionID).Msg("failed to journal session")
		}
	}

	s := c.opener.Open(url)
	c.stream = s
	for _, name := range names {
		s.AddEventListener(name, func(data string) { c.handleEvent(s, name, data) })
	}
	s.OnOpen(func() { c.handleOpen(s) })
	s.OnError(func(err error) { c.handleError(s, err) })
	s.Start()
}

func (c *core) handleOpen(s domain.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != s {
		return
	}
	c.applyLocked(domain.StreamOpened{})
}

func (c *core) handleEvent(s domain.Stream, name, data string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != s {
		return
	}

	ev, err := decoder.Decode(name, data)
	c.recordEventLocked(name, data, err == nil)
	if err != nil {
		c.log.Warn().Err(err).Str("session_id", c.state.SessionID).Str("event", name).Msg("dropping event")
		return
	}

	c.applyLocked(ev)
	if c.settles(ev) {
		c.closeStreamLocked()
	}
}

func (c *core) recordEventLocked(name, data string, decoded bool) {
	if c.opts.recorder == nil || c.state.SessionID == "" {
		return
	}
	err := c.opts.recorder.RecordEvent(context.Background(), &domain.StreamEvent{
		SessionID:  c.state.SessionID,
		Name:       name,
		Payload:    data,
		Decoded:    decoded,
		ReceivedAt: c.opts.now(),
	})
	if err != nil {
		c.log.Warn().Err(err).Str("session_id", c.state.SessionID).Msg("failed to journal event")
	}
}

func (c *core) handleError(s domain.Stream, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != s {
		return
	}

	attempt := 1
	var connErr *stream.ConnError
	if errors.As(err, &connErr) {
		attempt = connErr.Attempt
	}

	decision := policy.DecisionGiveUp
	if !errors.Is(err, stream.ErrRetriesExhausted) {
		d, derr := c.decider.Decide(context.Background(), policy.Input{
			Variant:    c.variant,
			Attempt:    attempt,
			MaxRetries: c.maxRetries,
			Status:     c.state.Status,
			Error:      err.Error(),
		})
		if derr != nil {
			c.log.Error().Err(derr).Msg("policy evaluation failed")
		}
		decision = d
	}

	c.log.Warn().Err(err).
		Str("session_id", c.state.SessionID).
		Int("attempt", attempt).
		Str("decision", string(decision)).
		Msg("stream error")

	switch decision {
	case policy.DecisionRetry:
	case policy.DecisionDegrade:
		c.applyLocked(domain.ConnectionLost{Message: ConnectionLostMessage})
	default:
		c.closeStreamLocked()
		c.applyLocked(domain.ConnectionLost{Message: ConnectionLostMessage, Fatal: true})
	}
}

// resetLocked closes the stream, supersedes in-flight requests and returns
// to the initial state.
func (c *core) resetLocked() {
	c.closeStreamLocked()
	c.gen++
	c.state = session.Initial()
	for _, fn := range c.listeners {
		fn(c.state)
	}
}
