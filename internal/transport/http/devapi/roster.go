package devapi

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/livesession/internal/domain"
	"github.com/xiaot623/gogo/livesession/internal/hub"
	"github.com/xiaot623/gogo/livesession/internal/logger"
)

// Roster keeps the participant lists of every session in memory and
// publishes a full snapshot after each change.
type Roster struct {
	hub *hub.Hub

	mu    sync.Mutex
	lists map[string][]domain.Participant
}

// NewRoster creates an empty roster registry.
func NewRoster(h *hub.Hub) *Roster {
	return &Roster{hub: h, lists: make(map[string][]domain.Participant)}
}

// Snapshot returns a copy of the participants of sessionID.
func (r *Roster) Snapshot(sessionID string) []domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Participant{}, r.lists[sessionID]...)
}

// Join adds or reactivates a participant.
func (r *Roster) Join(sessionID string, p domain.Participant) domain.Participant {
	now := time.Now().UTC().Format(time.RFC3339)

	r.mu.Lock()
	list := r.lists[sessionID]
	idx := -1
	for i := range list {
		if list[i].Username == p.Username {
			idx = i
			break
		}
	}
	if idx < 0 {
		if p.UserID == "" {
			p.UserID = "user_" + uuid.New().String()[:8]
		}
		if p.Status == "" {
			p.Status = domain.ParticipantInit
		}
		p.JoinedAt = now
		p.LastActiveAt = now
		list = append(list, p)
		idx = len(list) - 1
	} else {
		list[idx].Status = domain.ParticipantActive
		list[idx].LastActiveAt = now
		if p.Status != "" {
			list[idx].Status = p.Status
		}
	}
	r.lists[sessionID] = list
	joined := list[idx]
	snapshot := append([]domain.Participant{}, list...)
	r.mu.Unlock()

	r.publish(sessionID, snapshot)
	return joined
}

// Leave marks a participant inactive. ok is false for an unknown username.
func (r *Roster) Leave(sessionID, username string) bool {
	r.mu.Lock()
	list := r.lists[sessionID]
	found := false
	for i := range list {
		if list[i].Username == username {
			list[i].Status = domain.ParticipantInactive
			list[i].LastActiveAt = time.Now().UTC().Format(time.RFC3339)
			found = true
		}
	}
	snapshot := append([]domain.Participant{}, list...)
	r.mu.Unlock()

	if found {
		r.publish(sessionID, snapshot)
	}
	return found
}

// publish skips sessions nobody watches; a new watcher gets a snapshot.
func (r *Roster) publish(sessionID string, list []domain.Participant) {
	if !r.hub.HasSubscribers(rosterTopic(sessionID)) {
		return
	}
	if err := r.hub.Publish(rosterTopic(sessionID), domain.RosterEventParticipants, list, false); err != nil {
		logger.Errorf("failed to publish roster for %s: %v", sessionID, err)
	}
}
