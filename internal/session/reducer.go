package session

import (
	"fmt"
	"slices"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

// Reduce folds one event into prev and returns the next state.
// prev is never modified.
func Reduce(prev State, env Envelope) State {
	next := prev

	switch ev := env.Event.(type) {
	case domain.Thinking:
		next.Status = domain.StatusProcessing

	case domain.ToolCall:
		next.Messages = appendEntry(prev.Messages, domain.LogEntry{
			ID:        env.ID,
			Role:      domain.RoleSystem,
			Text:      fmt.Sprintf("Using tool: %s", ev.ToolName),
			Timestamp: env.At,
			Tag:       domain.TagToolCall,
			ToolCall: &domain.ToolCallSnapshot{
				Name:      ev.ToolName,
				Arguments: ev.ToolArguments,
			},
		})

	case domain.ToolResult:
		next.Messages = applyToolResult(prev.Messages, ev)

	case domain.Message:
		next.Messages = appendEntry(prev.Messages, domain.LogEntry{
			ID:        env.ID,
			Role:      domain.RoleAssistant,
			Text:      ev.Text,
			Timestamp: env.At,
			Tag:       domain.TagMessage,
		})

	case domain.AwaitingInput:
		next.Status = domain.StatusAwaitingInput
		next.IsStreaming = false
		next.Messages = appendEntry(prev.Messages, domain.LogEntry{
			ID:                  env.ID,
			Role:                domain.RoleAssistant,
			Text:                ev.Question,
			Timestamp:           env.At,
			Tag:                 domain.TagAwaitingInput,
			ConfirmationOptions: slices.Clone(ev.Options),
		})

	case domain.Complete:
		next.Status = domain.StatusComplete
		next.IsStreaming = false

	case domain.Error:
		next.Status = domain.StatusError
		next.Error = ev.Message
		next.IsStreaming = false

	case domain.Timeout:
		next.Status = domain.StatusError
		next.Error = SessionTimedOutMessage
		next.IsStreaming = false

	case domain.Participants:
		if ev.HasRoster {
			next.Roster = slices.Clone(ev.List)
		}

	case domain.SessionState:
		if ev.HasRoster {
			next.Roster = slices.Clone(ev.List)
		}

	case domain.Unknown:
		// forward compatible

	case domain.UserMessage:
		next.Messages = appendEntry(prev.Messages, domain.LogEntry{
			ID:        env.ID,
			Role:      domain.RoleUser,
			Text:      ev.Text,
			Timestamp: env.At,
		})

	case domain.RequestStarted:
		next.Status = domain.StatusConnecting
		next.Error = ""

	case domain.RequestFailed:
		next.Status = domain.StatusError
		next.Error = ev.Message
		next.IsStreaming = false

	case domain.SessionStarted:
		next.SessionID = ev.SessionID
		next.IsStreaming = true

	case domain.StreamOpened:
		next.IsStreaming = true
		next.Disconnected = false
		if prev.Status == domain.StatusConnecting {
			next.Status = domain.StatusProcessing
		}

	case domain.ConnectionLost:
		next.Disconnected = true
		if ev.Fatal {
			next.Status = domain.StatusError
			next.Error = ev.Message
			next.IsStreaming = false
		}
	}

	if next.Status != domain.StatusError {
		next.Error = ""
	}
	return next
}

// Replay folds envs into the initial state.
func Replay(envs []Envelope) State {
	st := Initial()
	for _, env := range envs {
		st = Reduce(st, env)
	}
	return st
}

// appendEntry never writes into the backing array of log.
func appendEntry(log []domain.LogEntry, entry domain.LogEntry) []domain.LogEntry {
	return append(slices.Clip(log), entry)
}

// applyToolResult replaces the most recent TOOL_CALL entry. With no such
// entry the log is returned unchanged.
func applyToolResult(log []domain.LogEntry, res domain.ToolResult) []domain.LogEntry {
	idx := lastToolCall(log)
	if idx < 0 {
		return log
	}

	entry := log[idx]
	snap := domain.ToolCallSnapshot{}
	if entry.ToolCall != nil {
		snap = *entry.ToolCall
	}
	snap.Result = res.ToolResult
	snap.Success = res.ToolSuccess
	snap.Error = res.ToolError
	entry.ToolCall = &snap
	if res.Failed() {
		entry.Text += fmt.Sprintf(" (Failed: %s)", res.ToolError)
	}

	out := slices.Clone(log)
	out[idx] = entry
	return out
}

func lastToolCall(log []domain.LogEntry) int {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Tag == domain.TagToolCall {
			return i
		}
	}
	return -1
}
