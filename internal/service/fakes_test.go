package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/policy"
)

type fakeStream struct {
	url       string
	mu        sync.Mutex
	listeners map[string][]func(string)
	onOpen    []func()
	onError   []func(error)
	started   bool
	closed    bool
	closes    int
}

func (s *fakeStream) AddEventListener(name string, fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = append(s.listeners[name], fn)
}

func (s *fakeStream) OnOpen(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = append(s.onOpen, fn)
}

func (s *fakeStream) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

func (s *fakeStream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

func (s *fakeStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closes++
}

func (s *fakeStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit delivers an event the way a live source would: never after Close.
func (s *fakeStream) Emit(name, data string) {
	if s.IsClosed() {
		return
	}
	s.EmitUnchecked(name, data)
}

// EmitUnchecked delivers even after Close, simulating a callback that was
// already in flight.
func (s *fakeStream) EmitUnchecked(name, data string) {
	s.mu.Lock()
	fns := slices.Clone(s.listeners[name])
	s.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

func (s *fakeStream) Open() {
	s.mu.Lock()
	fns := slices.Clone(s.onOpen)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *fakeStream) Fail(err error) {
	s.mu.Lock()
	fns := slices.Clone(s.onError)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// fakeOpener is a spy recording every stream it hands out.
type fakeOpener struct {
	mu      sync.Mutex
	streams []*fakeStream
	// overlaps counts Open calls made while a previous stream was still open.
	overlaps int
}

func (o *fakeOpener) Open(url string) domain.Stream {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.streams {
		if !s.IsClosed() {
			o.overlaps++
		}
	}
	s := &fakeStream{url: url, listeners: make(map[string][]func(string))}
	o.streams = append(o.streams, s)
	return s
}

func (o *fakeOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.streams)
}

func (o *fakeOpener) Last(t *testing.T) *fakeStream {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.streams, "no stream opened")
	return o.streams[len(o.streams)-1]
}

type fakeBackend struct {
	mu        sync.Mutex
	starts    []domain.ChatRequest
	responds  []domain.RespondRequest
	startFn   func(req *domain.ChatRequest) (*domain.ChatResponse, error)
	respondFn func(sessionID string) error
}

func (b *fakeBackend) StartOrContinue(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	b.mu.Lock()
	b.starts = append(b.starts, *req)
	fn := b.startFn
	b.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	id := req.SessionID
	status := domain.StartStatusResumed
	if id == "" {
		id, status = "s1", domain.StartStatusStarted
	}
	return &domain.ChatResponse{SessionID: id, Status: status}, nil
}

func (b *fakeBackend) Respond(ctx context.Context, sessionID string, req *domain.RespondRequest) error {
	b.mu.Lock()
	b.responds = append(b.responds, *req)
	fn := b.respondFn
	b.mu.Unlock()
	if fn != nil {
		return fn(sessionID)
	}
	return nil
}

func (b *fakeBackend) StreamURL(sessionID, endpoint string) string {
	return "http://backend/stream/" + sessionID
}

func (b *fakeBackend) AdminStreamURL(sessionID string) string {
	return "http://backend/admin/" + sessionID
}

func (b *fakeBackend) Starts() []domain.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.ChatRequest(nil), b.starts...)
}

func newDecider(t *testing.T) policy.Decider {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	return engine
}

func testOptions() []Option {
	n := 0
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return []Option{
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		WithClock(func() time.Time { return at }),
	}
}
