package identity

import (
	"sync"

	"carmarket/internal/platform/logger"

	"go.uber.org/zap"
)

type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
	EventUpdated   EventType = "updated"
)

// Event is a session-state change notification.
type Event struct {
	Type      EventType
	Principal Principal
}

// SessionManager is the single owner of process-visible session state.
// Sign-in, sign-out and profile updates all flow through it, and other
// components observe changes through Subscribe rather than reading
// ambient globals. Lookups elsewhere in the request path resolve the
// principal from the bearer token; the manager's registry exists for
// change notification and for answering "who is currently signed in".
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]Principal // keyed by user id
	subs     map[int]chan Event
	nextSub  int
	logger   *logger.Logger
}

func NewSessionManager(log *logger.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]Principal),
		subs:     make(map[int]chan Event),
		logger:   log.Named("SessionManager"),
	}
}

// Establish records a principal after a successful sign-in and notifies
// subscribers.
func (m *SessionManager) Establish(p Principal) {
	m.mu.Lock()
	m.sessions[p.UserID] = p
	m.mu.Unlock()
	m.logger.Info("Session established", zap.String("user_id", p.UserID))
	m.notify(Event{Type: EventSignedIn, Principal: p})
}

// Update replaces the stored principal after a profile change.
func (m *SessionManager) Update(p Principal) {
	m.mu.Lock()
	m.sessions[p.UserID] = p
	m.mu.Unlock()
	m.notify(Event{Type: EventUpdated, Principal: p})
}

// Clear drops the principal on sign-out and notifies subscribers.
func (m *SessionManager) Clear(userID string) {
	m.mu.Lock()
	p, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.logger.Info("Session cleared", zap.String("user_id", userID))
	m.notify(Event{Type: EventSignedOut, Principal: p})
}

// Current returns the recorded principal for a user, if any.
func (m *SessionManager) Current(userID string) (Principal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.sessions[userID]
	return p, ok
}

// Subscribe returns a channel of session-change events and a cancel
// function. Slow subscribers never block session mutation: events are
// dropped when a subscriber's buffer is full.
func (m *SessionManager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 16)
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *SessionManager) notify(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
