// Package hub fans stream frames out to the subscribers of a session.
package hub

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/livesession/internal/logger"
)

// DefaultMaxPending bounds the frames kept for a session with no subscriber.
const DefaultMaxPending = 256

// Frame is one named event addressed to a session.
type Frame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	// Final detaches the subscriber that receives it.
	Final bool `json:"-"`
}

// Subscriber receives the frames of one session until Send is closed.
type Subscriber struct {
	ID        string
	SessionID string
	Send      chan Frame
}

// Hub manages stream subscribers.
type Hub struct {
	// Subscribers indexed by subscriber ID
	subscribers map[string]*Subscriber

	// Sessions maps session_id to set of subscriber IDs
	sessions map[string]map[string]bool

	// Frames published while a session had no subscriber
	pending    map[string][]Frame
	maxPending int

	seq map[string]int

	broadcast chan *SessionMessage
	done      chan struct{}

	mu sync.RWMutex
}

// SessionMessage is used to broadcast a frame to a session.
type SessionMessage struct {
	SessionID string
	Frame     Frame
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		sessions:    make(map[string]map[string]bool),
		pending:     make(map[string][]Frame),
		maxPending:  DefaultMaxPending,
		seq:         make(map[string]int),
		broadcast:   make(chan *SessionMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.deliverLocked(msg)
			h.mu.Unlock()
		}
	}
}

// deliverLocked numbers the frame in broadcast order, so ids of a session
// always increase along the stream.
func (h *Hub) deliverLocked(msg *SessionMessage) {
	h.seq[msg.SessionID]++
	msg.Frame.ID = strconv.Itoa(h.seq[msg.SessionID])

	ids := h.sessions[msg.SessionID]
	if len(ids) == 0 {
		q := append(h.pending[msg.SessionID], msg.Frame)
		if len(q) > h.maxPending {
			q = q[len(q)-h.maxPending:]
		}
		h.pending[msg.SessionID] = q
		return
	}

	for id := range ids {
		sub, ok := h.subscribers[id]
		if !ok {
			continue
		}
		select {
		case sub.Send <- msg.Frame:
			if msg.Frame.Final {
				h.detachLocked(sub)
			}
		default:
			logger.Warnf("subscriber %s buffer full, closing", id)
			h.detachLocked(sub)
		}
	}
}

// flushPendingLocked hands buffered frames to a new subscriber, stopping
// after a final frame.
func (h *Hub) flushPendingLocked(sub *Subscriber) {
	q := h.pending[sub.SessionID]
	sent := 0
	for _, f := range q {
		select {
		case sub.Send <- f:
		default:
			logger.Warnf("subscriber %s buffer full during flush", sub.ID)
			h.pending[sub.SessionID] = q[sent:]
			return
		}
		sent++
		if f.Final {
			break
		}
	}
	if rest := q[sent:]; len(rest) > 0 {
		h.pending[sub.SessionID] = rest
	} else {
		delete(h.pending, sub.SessionID)
	}
	if sent > 0 && q[sent-1].Final {
		h.detachLocked(sub)
	}
}

func (h *Hub) detachLocked(sub *Subscriber) {
	if _, ok := h.subscribers[sub.ID]; !ok {
		return
	}
	delete(h.subscribers, sub.ID)
	if h.sessions[sub.SessionID] != nil {
		delete(h.sessions[sub.SessionID], sub.ID)
		if len(h.sessions[sub.SessionID]) == 0 {
			delete(h.sessions, sub.SessionID)
		}
	}
	close(sub.Send)
}

// Subscribe registers a new subscriber for sessionID. Frames buffered for
// the session are queued to it before any later frame.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Send:      make(chan Frame, 256),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID] = sub
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]bool)
	}
	h.sessions[sessionID][sub.ID] = true
	h.flushPendingLocked(sub)
	logger.Debugf("subscriber registered: %s (session: %s)", sub.ID, sessionID)
	return sub
}

// Unsubscribe detaches sub. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub.ID]; ok {
		h.detachLocked(sub)
		logger.Debugf("subscriber unregistered: %s", sub.ID)
	}
}

// Publish marshals v and broadcasts it to the session under event.
// The frame gets the next sequence id of the session when Run delivers it.
func (h *Hub) Publish(sessionID, event string, v interface{}, final bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- &SessionMessage{
		SessionID: sessionID,
		Frame:     Frame{Event: event, Data: data, Final: final},
	}:
	case <-h.done:
	}
	return nil
}

// SendTo queues a frame for a single subscriber.
func (h *Hub) SendTo(sub *Subscriber, event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subscribers[sub.ID]; !ok {
		return ErrNotSubscribed
	}
	select {
	case sub.Send <- Frame{Event: event, Data: data}:
		return nil
	default:
		return ErrBufferFull
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// HasSubscribers checks if a session has any active subscribers.
func (h *Hub) HasSubscribers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// PendingCount returns the number of frames buffered for sessionID.
func (h *Hub) PendingCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pending[sessionID])
}

// ErrBufferFull is returned when the send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}

// ErrNotSubscribed is returned by SendTo for a detached subscriber.
var ErrNotSubscribed = &NotSubscribedError{}

// NotSubscribedError represents a send to a detached subscriber.
type NotSubscribedError struct{}

func (e *NotSubscribedError) Error() string {
	return "subscriber is not registered"
}
