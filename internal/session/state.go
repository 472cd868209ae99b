// Package session holds the live session state and its pure reducer.
package session

import (
	"time"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

// SessionTimedOutMessage is the error shown when the backend sends TIMEOUT.
const SessionTimedOutMessage = "Session timed out"

// State is an immutable snapshot of one live session. Callers must not
// modify the slices of a snapshot they did not build.
type State struct {
	SessionID    string               `json:"sessionId"`
	Status       domain.Status        `json:"status"`
	Error        string               `json:"error,omitempty"`
	IsStreaming  bool                 `json:"isStreaming"`
	Messages     []domain.LogEntry    `json:"messages"`
	Roster       []domain.Participant `json:"roster,omitempty"`
	Disconnected bool                 `json:"disconnected,omitempty"`
}

// Initial returns the idle state.
func Initial() State {
	return State{
		Status:   domain.StatusIdle,
		Messages: []domain.LogEntry{},
	}
}

// Envelope carries one event plus the identity the reducer stamps on any
// log entry it creates.
type Envelope struct {
	ID    string
	At    time.Time
	Event domain.Event
}
