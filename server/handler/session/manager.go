package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Valid configuration port range for camera endpoints.
const (
	PortMin = 1024
	PortMax = 65535
)

// Manager owns the set of camera sessions and the active-session
// selector. Sessions are mutually independent: each runs its own
// accept-and-read goroutine, and closing one never touches another.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	active   string
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Add creates a session bound to host:port and starts it. New sessions
// can be added while others are streaming. The first session added
// becomes active.
func (m *Manager) Add(name, host string, port int) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("session: empty name")
	}
	if port < PortMin || port > PortMax {
		return nil, fmt.Errorf("session: port %d outside %d-%d", port, PortMin, PortMax)
	}
	m.mu.Lock()
	for _, existing := range m.sessions {
		if existing.Host == host && existing.Port == port {
			m.mu.Unlock()
			return nil, fmt.Errorf("session: endpoint %s:%d already in use by %s", host, port, existing.Name)
		}
	}
	m.mu.Unlock()

	sess := newSession(uuid.NewString(), name, host, port)
	if err := sess.start(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.order = append(m.order, sess.ID)
	if m.active == "" {
		m.active = sess.ID
	}
	m.mu.Unlock()
	return sess, nil
}

// Remove closes and forgets one session. If it was active, the first
// remaining session (in add order) becomes active.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session: unknown id %s", id)
	}
	delete(m.sessions, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == id {
		m.active = ""
		if len(m.order) > 0 {
			m.active = m.order[0]
		}
	}
	m.mu.Unlock()
	sess.close()
	return nil
}

// SelectActive marks one session as the operator's current focus.
func (m *Manager) SelectActive(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session: unknown id %s", id)
	}
	m.active = id
	return nil
}

// Active returns the currently selected session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[m.active]
}

// Get returns one session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// List returns the sessions in add order.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*Session, 0, len(m.order))
	for _, id := range m.order {
		if sess, ok := m.sessions[id]; ok {
			list = append(list, sess)
		}
	}
	return list
}

// ActiveID returns the selected session id, or empty.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Close tears down every session, for process shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, sess := range m.sessions {
		sessions = append(sessions, sess)
		delete(m.sessions, id)
	}
	m.order = nil
	m.active = ""
	m.mu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}
}
