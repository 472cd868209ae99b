package domain

import "encoding/json"

// Event is a decoded stream event or a client-side action.
// The set of implementations is closed.
type Event interface {
	isEvent()
}

// Thinking signals that the agent is working.
type Thinking struct{}

// ToolCall announces a tool invocation by the agent.
type ToolCall struct {
	ToolName      string          `json:"toolName"`
	ToolArguments json.RawMessage `json:"toolArguments,omitempty"`
}

// ToolResult carries the outcome of the most recent tool call.
type ToolResult struct {
	ToolResult  json.RawMessage `json:"toolResult,omitempty"`
	ToolSuccess *bool           `json:"toolSuccess,omitempty"`
	ToolError   string          `json:"toolError,omitempty"`
}

// Failed reports whether the result explicitly signals failure.
func (r ToolResult) Failed() bool {
	return r.ToolSuccess != nil && !*r.ToolSuccess
}

// Message is assistant text.
type Message struct {
	Text string `json:"text"`
}

// Option is one answer offered by an AwaitingInput prompt.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// AwaitingInput pauses the session until the user responds.
type AwaitingInput struct {
	Question string   `json:"question"`
	Options  []Option `json:"options,omitempty"`
}

// Complete ends the session successfully.
type Complete struct{}

// Error ends the session with a backend-reported failure.
type Error struct {
	Message string `json:"message"`
}

// Timeout ends the session because the backend gave up waiting.
type Timeout struct{}

// Participants is a full roster snapshot.
// HasRoster is false when the payload carried no participant array.
type Participants struct {
	List      []Participant
	HasRoster bool
}

// SessionState is a reconciliation snapshot of the roster.
type SessionState struct {
	List      []Participant
	HasRoster bool
}

// Unknown is any event name this client does not understand.
type Unknown struct {
	Name string
}

// UserMessage records text typed by the user.
type UserMessage struct {
	Text string
}

// RequestStarted marks the start of a backend round trip.
type RequestStarted struct{}

// RequestFailed marks a failed backend round trip.
type RequestFailed struct {
	Message string
}

// SessionStarted records the session id returned by the backend.
type SessionStarted struct {
	SessionID string
}

// StreamOpened is emitted when the push connection reports ready.
type StreamOpened struct{}

// ConnectionLost is emitted when the push connection fails.
// Fatal losses settle the session in error.
type ConnectionLost struct {
	Message string
	Fatal   bool
}

func (Thinking) isEvent()       {}
func (ToolCall) isEvent()       {}
func (ToolResult) isEvent()     {}
func (Message) isEvent()        {}
func (AwaitingInput) isEvent()  {}
func (Complete) isEvent()       {}
func (Error) isEvent()          {}
func (Timeout) isEvent()        {}
func (Participants) isEvent()   {}
func (SessionState) isEvent()   {}
func (Unknown) isEvent()        {}
func (UserMessage) isEvent()    {}
func (RequestStarted) isEvent() {}
func (RequestFailed) isEvent()  {}
func (SessionStarted) isEvent() {}
func (StreamOpened) isEvent()   {}
func (ConnectionLost) isEvent() {}
