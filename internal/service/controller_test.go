package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/livesession/internal/adapter/stream"
	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/session"
	"github.com/xiaot623/gogo/livesession/tests/helpers"
)

func newTestController(t *testing.T, backend *fakeBackend, opener *fakeOpener, opts ...Option) *Controller {
	t.Helper()
	c := NewController(backend, opener, newDecider(t), append(testOptions(), opts...)...)
	t.Cleanup(c.Close)
	return c
}

func texts(entries []domain.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Role) + ":" + e.Text
	}
	return out
}

func TestControllerCompletesSession(t *testing.T) {
	ctx := context.Background()
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener, WithContextID("ctx-1"), WithModel("m-1"))

	require.NoError(t, c.SendMessage(ctx, "hi", nil))
	assert.Equal(t, domain.StatusConnecting, c.Snapshot().Status)
	assert.Equal(t, "s1", c.Snapshot().SessionID)

	starts := backend.Starts()
	require.Len(t, starts, 1)
	assert.Empty(t, starts[0].SessionID)
	assert.Equal(t, "ctx-1", starts[0].ContextID)
	assert.Equal(t, "m-1", starts[0].Model)

	s := opener.Last(t)
	assert.Equal(t, "http://backend/stream/s1", s.url)
	assert.True(t, s.started)

	s.Open()
	assert.Equal(t, domain.StatusProcessing, c.Snapshot().Status)
	s.Emit("THINKING", `{}`)
	s.Emit("MESSAGE", `{"text":"hello"}`)
	s.Emit("COMPLETE", `{}`)

	st := c.Snapshot()
	assert.Equal(t, domain.StatusComplete, st.Status)
	assert.False(t, st.IsStreaming)
	assert.Equal(t, []string{"user:hi", "assistant:hello"}, texts(st.Messages))
	assert.True(t, s.IsClosed())
}

func TestControllerAwaitingInputAndRespond(t *testing.T) {
	ctx := context.Background()
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener)

	require.NoError(t, c.SendMessage(ctx, "hi", nil))
	first := opener.Last(t)
	first.Open()
	first.Emit("THINKING", `{}`)
	first.Emit("AWAITING_INPUT", `{"question":"Confirm?","options":[{"id":"y","label":"Yes"}]}`)

	st := c.Snapshot()
	assert.Equal(t, domain.StatusAwaitingInput, st.Status)
	assert.False(t, st.IsStreaming)
	assert.True(t, first.IsClosed())
	last := st.Messages[len(st.Messages)-1]
	assert.Equal(t, []domain.Option{{ID: "y", Label: "Yes"}}, last.ConfirmationOptions)

	require.NoError(t, c.Respond(ctx, "Yes", "y"))
	require.Equal(t, 2, opener.Opens())
	second := opener.Last(t)
	assert.Equal(t, first.url, second.url)
	assert.Equal(t, "s1", c.Snapshot().SessionID)
	assert.Equal(t, []domain.RespondRequest{{Response: "Yes", OptionID: "y"}}, backend.responds)

	second.Open()
	second.Emit("MESSAGE", `{"text":"done"}`)
	second.Emit("COMPLETE", `{}`)
	st = c.Snapshot()
	assert.Equal(t, domain.StatusComplete, st.Status)
	assert.Equal(t, []string{"user:hi", "assistant:Confirm?", "user:Yes", "assistant:done"}, texts(st.Messages))
}

func TestControllerContinuesHeldSession(t *testing.T) {
	ctx := context.Background()
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener)

	require.NoError(t, c.SendMessage(ctx, "one", nil))
	opener.Last(t).Emit("COMPLETE", `{}`)
	require.NoError(t, c.SendMessage(ctx, "two", &domain.SendOptions{Model: "override", Context: map[string]any{"k": "v"}}))

	starts := backend.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, "s1", starts[1].SessionID)
	assert.Equal(t, "override", starts[1].Model)
	assert.Equal(t, "v", starts[1].Context["k"])
}

func TestControllerBackendFailure(t *testing.T) {
	backend := &fakeBackend{startFn: func(*domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, errors.New("backend returned status 500: internal error")
	}}
	opener := &fakeOpener{}
	c := newTestController(t, backend, opener)

	err := c.SendMessage(context.Background(), "hi", nil)
	require.Error(t, err)

	st := c.Snapshot()
	assert.Equal(t, domain.StatusError, st.Status)
	assert.Contains(t, st.Error, "500")
	assert.False(t, st.IsStreaming)
	assert.Equal(t, 0, opener.Opens())
}

func TestControllerNeverHoldsTwoStreams(t *testing.T) {
	ctx := context.Background()
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener)

	require.NoError(t, c.SendMessage(ctx, "one", nil))
	first := opener.Last(t)
	first.Open()
	require.NoError(t, c.SendMessage(ctx, "two", nil))

	assert.Equal(t, 2, opener.Opens())
	assert.Equal(t, 0, opener.overlaps)
	assert.GreaterOrEqual(t, first.closes, 1)

	first.EmitUnchecked("MESSAGE", `{"text":"stale"}`)
	assert.NotContains(t, texts(c.Snapshot().Messages), "assistant:stale")
}

func TestControllerRespondWithoutSession(t *testing.T) {
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener)

	before := c.Snapshot()
	assert.NoError(t, c.Respond(context.Background(), "Yes", "y"))
	assert.Equal(t, before, c.Snapshot())
	assert.Empty(t, backend.responds)
	assert.Equal(t, 0, opener.Opens())
}

func TestControllerRespondFailure(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{respondFn: func(string) error { return errors.New("backend returned status 404: gone") }}
	opener := &fakeOpener{}
	c := newTestController(t, backend, opener)

	require.NoError(t, c.SendMessage(ctx, "hi", nil))
	opener.Last(t).Emit("AWAITING_INPUT", `{"question":"Confirm?"}`)

	assert.Error(t, c.Respond(ctx, "Yes", ""))
	assert.Equal(t, 1, opener.Opens())
	assert.Equal(t, domain.StatusError, c.Snapshot().Status)
	assert.Contains(t, c.Snapshot().Error, "404")
}

func TestControllerResetRestoresInitialState(t *testing.T) {
	ctx := context.Background()
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener)

	require.NoError(t, c.SendMessage(ctx, "hi", nil))
	s := opener.Last(t)
	s.Open()
	s.Emit("ERROR", `{"message":"bad"}`)
	require.Equal(t, domain.StatusError, c.Snapshot().Status)

	c.Reset()
	assert.Equal(t, session.Initial(), c.Snapshot())
	assert.True(t, s.IsClosed())

	c.Reset()
	assert.Equal(t, session.Initial(), c.Snapshot())
}

func TestControllerDropsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener)

	require.NoError(t, c.SendMessage(ctx, "hi", nil))
	s := opener.Last(t)
	s.Open()
	s.Emit("MESSAGE", `{"text":"ok"}`)
	before := c.Snapshot()

	s.Emit("MESSAGE", `{"text":`)
	after := c.Snapshot()
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.Error, after.Error)
	assert.Equal(t, before.Messages, after.Messages)
	assert.False(t, s.IsClosed())
}

func TestControllerCloseHaltsCallbacks(t *testing.T) {
	ctx := context.Background()
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener)

	require.NoError(t, c.SendMessage(ctx, "hi", nil))
	s := opener.Last(t)
	s.Open()
	c.Close()

	s.EmitUnchecked("MESSAGE", `{"text":"late"}`)
	s.Fail(errors.New("late failure"))
	assert.Equal(t, session.Initial(), c.Snapshot())
}

func TestControllerStreamErrorGivesUp(t *testing.T) {
	ctx := context.Background()
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener)

	require.NoError(t, c.SendMessage(ctx, "hi", nil))
	s := opener.Last(t)
	s.Open()
	s.Fail(&stream.ConnError{Attempt: 1, Err: stream.ErrStreamEnded})

	st := c.Snapshot()
	assert.Equal(t, domain.StatusError, st.Status)
	assert.Equal(t, ConnectionLostMessage, st.Error)
	assert.False(t, st.IsStreaming)
	assert.True(t, s.IsClosed())
}

func TestControllerSupersededSendOpensNothing(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	backend := &fakeBackend{startFn: func(*domain.ChatRequest) (*domain.ChatResponse, error) {
		close(entered)
		<-release
		return &domain.ChatResponse{SessionID: "s1", Status: domain.StartStatusStarted}, nil
	}}
	opener := &fakeOpener{}
	c := newTestController(t, backend, opener)

	errCh := make(chan error, 1)
	go func() { errCh <- c.SendMessage(context.Background(), "hi", nil) }()
	<-entered
	c.Reset()
	close(release)

	require.NoError(t, <-errCh)
	assert.Equal(t, 0, opener.Opens())
	assert.Equal(t, session.Initial(), c.Snapshot())
}

func TestControllerNotifiesObservers(t *testing.T) {
	ctx := context.Background()
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener)

	var statuses []domain.Status
	c.OnChange(func(st session.State) { statuses = append(statuses, st.Status) })

	require.NoError(t, c.SendMessage(ctx, "hi", nil))
	s := opener.Last(t)
	s.Open()
	s.Emit("COMPLETE", `{}`)

	assert.Equal(t, []domain.Status{
		domain.StatusIdle,       // user message
		domain.StatusConnecting, // request started
		domain.StatusConnecting, // session started
		domain.StatusProcessing, // stream opened
		domain.StatusComplete,
	}, statuses)
}

func TestControllerJournalsTraffic(t *testing.T) {
	ctx := context.Background()
	store := helpers.NewTestSQLiteStore(t)
	backend, opener := &fakeBackend{}, &fakeOpener{}
	c := newTestController(t, backend, opener, WithRecorder(store))

	require.NoError(t, c.SendMessage(ctx, "hi", nil))
	s := opener.Last(t)
	s.Open()
	s.Emit("TOOL_CALL", `{"toolName":"search"}`)
	s.Emit("TOOL_RESULT", `{"toolSuccess":false,"toolError":"timeout"}`)
	s.Emit("MESSAGE", `{"text":`)
	s.Emit("MESSAGE", `{"text":"hello"}`)
	s.Emit("COMPLETE", `{}`)

	events, err := store.GetEvents(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.False(t, events[2].Decoded)

	entries, err := store.GetEntries(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"user:hi",
		"system:Using tool: search (Failed: timeout)",
		"assistant:hello",
	}, texts(entries))

	replayed := ReplayEvents("s1", events)
	assert.Equal(t, domain.StatusComplete, replayed.Status)
	assert.Equal(t, []string{
		"system:Using tool: search (Failed: timeout)",
		"assistant:hello",
	}, texts(replayed.Messages))
}
