package domain

import "context"

// Stream is a single live server-push connection.
// Listeners must be registered before Start.
type Stream interface {
	AddEventListener(name string, fn func(data string))
	OnOpen(fn func())
	OnError(fn func(err error))
	Start()
	Close()
}

// StreamOpener creates unstarted streams.
type StreamOpener interface {
	Open(url string) Stream
}

// Backend is the REST collaborator that owns sessions.
type Backend interface {
	StartOrContinue(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Respond(ctx context.Context, sessionID string, req *RespondRequest) error
	StreamURL(sessionID, endpoint string) string
	AdminStreamURL(sessionID string) string
}

// Recorder journals raw stream traffic and log entries.
type Recorder interface {
	RecordEvent(ctx context.Context, event *StreamEvent) error
	RecordEntry(ctx context.Context, sessionID string, entry *LogEntry) error
}
