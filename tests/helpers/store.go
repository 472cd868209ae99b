// Package helpers holds fixtures shared by package tests.
package helpers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/repository"
)

// NewTestSQLiteStore opens an in-memory journal that is closed when the
// test ends.
func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	store, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err, "open in-memory journal")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// JournalEvents records raw stream traffic for sessionID as name/payload
// pairs, in order, and returns what the journal reads back.
func JournalEvents(t *testing.T, store *repository.SQLiteStore, sessionID string, pairs ...string) []domain.StreamEvent {
	t.Helper()
	require.Zero(t, len(pairs)%2, "events are name/payload pairs")

	ctx := context.Background()
	for i := 0; i < len(pairs); i += 2 {
		require.NoError(t, store.RecordEvent(ctx, &domain.StreamEvent{
			SessionID: sessionID,
			Name:      pairs[i],
			Payload:   pairs[i+1],
		}))
	}
	events, err := store.GetEvents(ctx, sessionID, 0)
	require.NoError(t, err)
	return events
}
