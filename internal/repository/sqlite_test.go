package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i, name := range []string{"THINKING", "MESSAGE", "COMPLETE"} {
		ev := &domain.StreamEvent{
			SessionID: "s1",
			Name:      name,
			Payload:   `{"n":` + string(rune('0'+i)) + `}`,
			Decoded:   i != 1,
		}
		require.NoError(t, store.RecordEvent(ctx, ev))
		assert.NotEmpty(t, ev.EventID)
		assert.False(t, ev.ReceivedAt.IsZero())
	}
	require.NoError(t, store.RecordEvent(ctx, &domain.StreamEvent{SessionID: "s2", Name: "MESSAGE", Payload: "{}"}))

	events, err := store.GetEvents(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "THINKING", events[0].Name)
	assert.Equal(t, "MESSAGE", events[1].Name)
	assert.False(t, events[1].Decoded)
	assert.Equal(t, "COMPLETE", events[2].Name)
	assert.Equal(t, `{"n":2}`, events[2].Payload)

	limited, err := store.GetEvents(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	sess, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, domain.VariantAgent, sess.Variant)

	missing, err := store.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStoreEntriesUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	call := &domain.LogEntry{
		ID:        "e1",
		Role:      domain.RoleSystem,
		Text:      "Using tool: search",
		Timestamp: at,
		Tag:       domain.TagToolCall,
		ToolCall:  &domain.ToolCallSnapshot{Name: "search"},
	}
	require.NoError(t, store.RecordEntry(ctx, "s1", call))
	require.NoError(t, store.RecordEntry(ctx, "s1", &domain.LogEntry{
		ID:                  "e2",
		Role:                domain.RoleAssistant,
		Text:                "Proceed?",
		Timestamp:           at,
		Tag:                 domain.TagAwaitingInput,
		ConfirmationOptions: []domain.Option{{ID: "yes", Label: "Yes"}},
	}))

	failed := false
	updated := *call
	updated.Text = "Using tool: search (Failed: nope)"
	updated.ToolCall = &domain.ToolCallSnapshot{Name: "search", Success: &failed, Error: "nope"}
	require.NoError(t, store.RecordEntry(ctx, "s1", &updated))

	entries, err := store.GetEntries(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, "Using tool: search (Failed: nope)", entries[0].Text)
	require.NotNil(t, entries[0].ToolCall)
	require.NotNil(t, entries[0].ToolCall.Success)
	assert.False(t, *entries[0].ToolCall.Success)
	assert.True(t, entries[0].Timestamp.Equal(at))

	assert.Equal(t, domain.TagAwaitingInput, entries[1].Tag)
	assert.Equal(t, []domain.Option{{ID: "yes", Label: "Yes"}}, entries[1].ConfirmationOptions)
	assert.Nil(t, entries[1].ToolCall)
}

func TestSQLiteStoreSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	require.NoError(t, store.TouchSession(ctx, "roster-1", domain.VariantRoster))
	clock = clock.Add(time.Minute)
	require.NoError(t, store.TouchSession(ctx, "agent-1", domain.VariantAgent))
	clock = clock.Add(time.Minute)
	require.NoError(t, store.TouchSession(ctx, "roster-1", domain.VariantRoster))

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "roster-1", sessions[0].SessionID)
	assert.Equal(t, domain.VariantRoster, sessions[0].Variant)
	assert.True(t, sessions[0].LastSeenAt.After(sessions[0].CreatedAt))
}
