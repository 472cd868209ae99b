package service

import (
	"github.com/xiaot623/gogo/livesession/internal/decoder"
	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/logger"
	"github.com/xiaot623/gogo/livesession/internal/session"
)

// ReplayEvents decodes journaled events and folds them into a state.
// Entry ids and timestamps come from the events themselves, so replaying
// the same journal twice gives the same state. Malformed payloads are
// skipped as they were live.
func ReplayEvents(sessionID string, events []domain.StreamEvent) session.State {
	envs := make([]session.Envelope, 0, len(events)+1)
	envs = append(envs, session.Envelope{Event: domain.SessionStarted{SessionID: sessionID}})
	for _, ev := range events {
		decoded, err := decoder.Decode(ev.Name, ev.Payload)
		if err != nil {
			logger.Debugf("replay: skipping event %s: %v", ev.EventID, err)
			continue
		}
		envs = append(envs, session.Envelope{ID: ev.EventID, At: ev.ReceivedAt, Event: decoded})
	}
	return session.Replay(envs)
}
