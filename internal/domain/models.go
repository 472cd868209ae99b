package domain

import (
	"encoding/json"
	"time"
)

// ToolCallSnapshot is the tool state attached to a TOOL_CALL log entry.
type ToolCallSnapshot struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// LogEntry is one item of the agent message log.
type LogEntry struct {
	ID                  string            `json:"id"`
	Role                Role              `json:"role"`
	Text                string            `json:"text"`
	Timestamp           time.Time         `json:"timestamp"`
	Tag                 EventTag          `json:"tag,omitempty"`
	ToolCall            *ToolCallSnapshot `json:"toolCall,omitempty"`
	ConfirmationOptions []Option          `json:"confirmationOptions,omitempty"`
}

// Participant is one member of a tracked session.
type Participant struct {
	Username     string            `json:"username"`
	UserID       string            `json:"userId,omitempty"`
	Name         string            `json:"name,omitempty"`
	Email        string            `json:"email,omitempty"`
	Status       ParticipantStatus `json:"status"`
	JoinedAt     string            `json:"joinedAt,omitempty"`
	LastActiveAt string            `json:"lastActiveAt,omitempty"`
}

// StreamEvent is a raw named event as received from a push connection.
type StreamEvent struct {
	EventID    string    `json:"event_id"`
	SessionID  string    `json:"session_id"`
	Name       string    `json:"name"`
	Payload    string    `json:"payload"`
	Decoded    bool      `json:"decoded"`
	ReceivedAt time.Time `json:"received_at"`
}

// SessionRecord is the journal row describing one observed session.
type SessionRecord struct {
	SessionID  string    `json:"session_id"`
	Variant    Variant   `json:"variant"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
