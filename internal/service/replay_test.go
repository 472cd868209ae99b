package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/tests/helpers"
)

func TestReplayEventsIsDeterministic(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	events := []domain.StreamEvent{
		{EventID: "e1", Name: "THINKING", Payload: `{}`, ReceivedAt: at},
		{EventID: "e2", Name: "MESSAGE", Payload: `not json`, ReceivedAt: at},
		{EventID: "e3", Name: "MESSAGE", Payload: `{"text":"hello"}`, ReceivedAt: at},
		{EventID: "e4", Name: "AWAITING_INPUT", Payload: `{"question":"Confirm?"}`, ReceivedAt: at},
	}

	first := ReplayEvents("s1", events)
	second := ReplayEvents("s1", events)
	assert.Equal(t, first, second)

	assert.Equal(t, "s1", first.SessionID)
	assert.Equal(t, domain.StatusAwaitingInput, first.Status)
	assert.Len(t, first.Messages, 2)
	assert.Equal(t, "e3", first.Messages[0].ID)
	assert.Equal(t, at, first.Messages[0].Timestamp)
}

func TestReplayEventsFromJournal(t *testing.T) {
	store := helpers.NewTestSQLiteStore(t)
	events := helpers.JournalEvents(t, store, "s1",
		"THINKING", `{}`,
		"TOOL_CALL", `{"toolName":"search"}`,
		"TOOL_RESULT", `{"toolSuccess":true}`,
		"COMPLETE", `{}`,
	)
	require.Len(t, events, 4)

	st := ReplayEvents("s1", events)
	assert.Equal(t, domain.StatusComplete, st.Status)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, events[1].EventID, st.Messages[0].ID)
	assert.False(t, st.IsStreaming)
}
