// Package stream tracks the lifecycle of active playback sessions, providing
// create/remove/list operations used by the HTTP and websocket layers.
package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// Session represents one viewer playing back a container file.
type Session struct {
	ID        string
	File      string
	StartedAt time.Time
	done      chan struct{}
}

// Done is closed when the session is removed from its manager.
func (s *Session) Done() <-chan struct{} { return s.done }

// Manager manages the lifecycle of active sessions.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "session-manager"),
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session playing the named file and assigns it a
// unique ID.
func (m *Manager) Create(file string) *Session {
	s := &Session{
		ID:        ksuid.New().String(),
		File:      file,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Info("session created", "id", s.ID, "file", file)
	return s
}

// Remove removes a session from the manager and closes its done channel.
// Removing an unknown ID is a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		close(s.done)
		m.log.Info("session removed", "id", id, "file", s.File)
	}
}

// Get returns the session with the given ID, if it exists.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// List returns all active sessions.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
