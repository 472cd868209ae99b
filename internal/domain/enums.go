// Package domain defines the core domain models for live sessions.
package domain

// Status represents the status of a live session.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusConnecting    Status = "connecting"
	StatusProcessing    Status = "processing"
	StatusAwaitingInput Status = "awaiting_input"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusConnecting, StatusProcessing, StatusAwaitingInput, StatusComplete, StatusError:
		return true
	}
	return false
}

// Settled reports whether s is a terminal status.
func (s Status) Settled() bool {
	return s == StatusComplete || s == StatusError
}

// Role is the author of a log entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// EventTag names a stream event. Tags are the wire event names.
type EventTag string

const (
	TagThinking      EventTag = "THINKING"
	TagToolCall      EventTag = "TOOL_CALL"
	TagToolResult    EventTag = "TOOL_RESULT"
	TagMessage       EventTag = "MESSAGE"
	TagAwaitingInput EventTag = "AWAITING_INPUT"
	TagComplete      EventTag = "COMPLETE"
	TagError         EventTag = "ERROR"
	TagTimeout       EventTag = "TIMEOUT"
	TagParticipants  EventTag = "PARTICIPANTS"
	TagSessionState  EventTag = "SESSION_STATE"
)

// Roster stream event names.
const (
	RosterEventParticipants = "participants"
	RosterEventSessionState = "session_state_presenter"
)

// ParticipantStatus represents the presence of a participant.
type ParticipantStatus string

const (
	ParticipantInit                 ParticipantStatus = "init"
	ParticipantActive               ParticipantStatus = "active"
	ParticipantInactive             ParticipantStatus = "inactive"
	ParticipantInactiveDisconnected ParticipantStatus = "inactive_disconnected"
)

// StartStatus is the backend's answer to a start-or-continue request.
type StartStatus string

const (
	StartStatusStarted StartStatus = "STARTED"
	StartStatusResumed StartStatus = "RESUMED"
	StartStatusError   StartStatus = "ERROR"
)

// Variant distinguishes the two kinds of live session.
type Variant string

const (
	VariantAgent  Variant = "agent"
	VariantRoster Variant = "roster"
)
