package service

import (
	"errors"

	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/policy"
)

// ErrNoSession is returned by Resubscribe before any Watch.
var ErrNoSession = errors.New("no session to resubscribe to")

var rosterEvents = []string{
	domain.RosterEventParticipants,
	domain.RosterEventSessionState,
}

// RosterWatcher follows the participant roster of one session. While the
// stream is failing it keeps the last roster and flags the state as
// disconnected until the policy gives up.
type RosterWatcher struct {
	*core
	backend domain.Backend
}

// NewRosterWatcher creates an idle watcher. maxRetries is passed to the
// policy as the retry budget; zero means unbounded.
func NewRosterWatcher(backend domain.Backend, opener domain.StreamOpener, decider policy.Decider, maxRetries int, opts ...Option) *RosterWatcher {
	w := &RosterWatcher{
		core:    newCore(domain.VariantRoster, opener, decider, opts),
		backend: backend,
	}
	w.maxRetries = maxRetries
	return w
}

// Watch subscribes to the roster of sessionID, replacing any previous
// subscription and state.
func (w *RosterWatcher) Watch(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
	w.subscribeLocked(sessionID)
}

// Resubscribe reopens the stream for the watched session, keeping the
// last known roster.
func (w *RosterWatcher) Resubscribe() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.SessionID == "" {
		return ErrNoSession
	}
	w.subscribeLocked(w.state.SessionID)
	return nil
}

// Stop closes the stream and resets the state.
func (w *RosterWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

func (w *RosterWatcher) subscribeLocked(sessionID string) {
	w.applyLocked(domain.RequestStarted{})
	w.applyLocked(domain.SessionStarted{SessionID: sessionID})
	w.log.Info().Str("session_id", sessionID).Msg("watching roster")
	w.openStreamLocked(w.backend.AdminStreamURL(sessionID), rosterEvents)
}
