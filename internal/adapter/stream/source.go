// Package stream provides a reconnecting server-push event source.
//
// A Source owns at most one live connection at a time. Connections are
// produced by a Connector (SSE or WebSocket), and failures are retried
// according to an explicit domain.ReconnectPolicy.
package stream

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

var (
	// ErrRetriesExhausted is reported once a limited policy gives up.
	ErrRetriesExhausted = errors.New("stream: reconnect attempts exhausted")
	// ErrStreamEnded is reported when the server closes the connection.
	ErrStreamEnded = errors.New("stream: server closed the connection")
)

// RawEvent is one named event read from a connection.
type RawEvent struct {
	Name  string
	Data  string
	ID    string
	Retry time.Duration
}

// Reader yields events from one live connection.
type Reader interface {
	Next() (RawEvent, error)
	Close() error
}

// Connector establishes connections for a Source.
type Connector interface {
	Connect(ctx context.Context, url, lastEventID string) (Reader, error)
}

// ConnError wraps a connection failure with its attempt number.
type ConnError struct {
	Attempt int
	Err     error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection attempt %d: %v", e.Attempt, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// ReadyState mirrors the EventSource ready states.
type ReadyState int32

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	}
	return "closed"
}

// Source is a reconnecting push connection. It implements domain.Stream.
type Source struct {
	url       string
	connector Connector
	policy    domain.ReconnectPolicy

	mu        sync.RWMutex
	listeners map[string][]func(string)
	onOpen    []func()
	onError   []func(error)
	started   bool

	closed atomic.Bool
	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	lastEventID string
	retry       time.Duration
}

var _ domain.Stream = (*Source)(nil)

// New creates an unstarted source for url.
func New(url string, connector Connector, policy domain.ReconnectPolicy) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	return &Source{
		url:       url,
		connector: connector,
		policy:    policy,
		listeners: make(map[string][]func(string)),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// URL returns the endpoint the source connects to.
func (s *Source) URL() string {
	return s.url
}

// AddEventListener registers fn for events named name.
func (s *Source) AddEventListener(name string, fn func(data string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = append(s.listeners[name], fn)
}

// OnOpen registers fn to run each time a connection becomes ready.
func (s *Source) OnOpen(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = append(s.onOpen, fn)
}

// OnError registers fn to run on every connection failure.
// It does not close the source.
func (s *Source) OnError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// Start launches the connection loop. Calling it more than once, or after
// Close, has no effect.
func (s *Source) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed.Load() {
		return
	}
	s.started = true
	go s.run()
}

// Close stops the source. It is idempotent, does not block, and may be
// called from inside a callback. No callback starts after Close returns.
func (s *Source) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.state.Store(int32(StateClosed))
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.started = true
		close(s.done)
	}
}

// ReadyState returns the current connection state.
func (s *Source) ReadyState() ReadyState {
	return ReadyState(s.state.Load())
}

// Done is closed when the connection loop has exited.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

func (s *Source) run() {
	defer close(s.done)
	defer s.state.Store(int32(StateClosed))

	attempt := 0
	for {
		if s.closed.Load() {
			return
		}
		s.state.Store(int32(StateConnecting))

		reader, err := s.connector.Connect(s.ctx, s.url, s.lastEventID)
		if err == nil {
			attempt = 0
			s.state.Store(int32(StateOpen))
			s.fireOpen()
			err = s.consume(reader)
			reader.Close()
		}
		if s.closed.Load() {
			return
		}

		attempt++
		s.fireError(&ConnError{Attempt: attempt, Err: err})
		if s.closed.Load() {
			return
		}

		if !s.policy.ShouldRetry(attempt) {
			if s.policy.Mode == domain.ReconnectLimited {
				s.fireError(&ConnError{Attempt: attempt, Err: ErrRetriesExhausted})
			}
			s.closed.Store(true)
			s.cancel()
			return
		}

		timer := time.NewTimer(s.policy.Delay(attempt, s.retry))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Source) consume(reader Reader) error {
	for {
		ev, err := reader.Next()
		if err != nil {
			return err
		}
		if ev.ID != "" {
			s.lastEventID = ev.ID
		}
		if ev.Retry > 0 {
			s.retry = ev.Retry
		}
		s.dispatch(ev)
	}
}

func (s *Source) dispatch(ev RawEvent) {
	s.mu.RLock()
	fns := slices.Clone(s.listeners[ev.Name])
	s.mu.RUnlock()

	for _, fn := range fns {
		if s.closed.Load() {
			return
		}
		fn(ev.Data)
	}
}

func (s *Source) fireOpen() {
	s.mu.RLock()
	fns := slices.Clone(s.onOpen)
	s.mu.RUnlock()

	for _, fn := range fns {
		if s.closed.Load() {
			return
		}
		fn()
	}
}

func (s *Source) fireError(err error) {
	s.mu.RLock()
	fns := slices.Clone(s.onError)
	s.mu.RUnlock()

	for _, fn := range fns {
		if s.closed.Load() {
			return
		}
		fn(err)
	}
}

// Opener creates sources sharing one connector and policy.
type Opener struct {
	connector Connector
	policy    domain.ReconnectPolicy
}

var _ domain.StreamOpener = (*Opener)(nil)

// NewOpener creates a new opener.
func NewOpener(connector Connector, policy domain.ReconnectPolicy) *Opener {
	return &Opener{connector: connector, policy: policy}
}

// Open returns an unstarted source for url.
func (o *Opener) Open(url string) domain.Stream {
	return New(url, o.connector, o.policy)
}
