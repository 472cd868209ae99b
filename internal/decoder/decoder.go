// Package decoder turns raw stream events into typed domain events.
package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/livesession/internal/domain"
)

// ErrMalformedPayload is returned when a payload is not valid JSON.
var ErrMalformedPayload = errors.New("malformed event payload")

// Decode converts one named event into a domain event. Unknown names decode
// to domain.Unknown. Payloads that are not JSON return ErrMalformedPayload
// and must be dropped by the caller.
func Decode(name, payload string) (domain.Event, error) {
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("%w: event %q", ErrMalformedPayload, name)
	}
	data := []byte(payload)

	switch normalize(name) {
	case domain.TagThinking:
		return domain.Thinking{}, nil
	case domain.TagToolCall:
		var ev domain.ToolCall
		bestEffort(data, &ev)
		return ev, nil
	case domain.TagToolResult:
		var ev domain.ToolResult
		bestEffort(data, &ev)
		return ev, nil
	case domain.TagMessage:
		var ev domain.Message
		bestEffort(data, &ev)
		return ev, nil
	case domain.TagAwaitingInput:
		var ev domain.AwaitingInput
		bestEffort(data, &ev)
		return ev, nil
	case domain.TagComplete:
		return domain.Complete{}, nil
	case domain.TagError:
		var ev domain.Error
		bestEffort(data, &ev)
		return ev, nil
	case domain.TagTimeout:
		return domain.Timeout{}, nil
	case domain.TagParticipants:
		list, ok := participantArray(data)
		return domain.Participants{List: list, HasRoster: ok}, nil
	case domain.TagSessionState:
		var body struct {
			Participants json.RawMessage `json:"participants"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return domain.SessionState{}, nil
		}
		list, ok := participantArray(body.Participants)
		return domain.SessionState{List: list, HasRoster: ok}, nil
	}
	return domain.Unknown{Name: name}, nil
}

func normalize(name string) domain.EventTag {
	switch strings.TrimSpace(name) {
	case domain.RosterEventParticipants:
		return domain.TagParticipants
	case domain.RosterEventSessionState:
		return domain.TagSessionState
	}
	return domain.EventTag(strings.ToUpper(strings.TrimSpace(name)))
}

// bestEffort fills the fields it can. A payload of the wrong shape leaves
// the remaining fields at their zero values.
func bestEffort(data []byte, v interface{}) {
	if err := json.Unmarshal(data, v); err == nil {
		return
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(data, &fields) != nil {
		return
	}
	for k, raw := range fields {
		one, _ := json.Marshal(map[string]json.RawMessage{k: raw})
		_ = json.Unmarshal(one, v)
	}
}

func participantArray(data []byte) ([]domain.Participant, bool) {
	var raws []json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &raws) != nil || raws == nil {
		return nil, false
	}
	list := make([]domain.Participant, 0, len(raws))
	for _, raw := range raws {
		var p domain.Participant
		bestEffort(raw, &p)
		list = append(list, p)
	}
	return list, true
}
