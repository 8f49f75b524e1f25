package scanner

import (
	"sync"

	"ms-admission/internal/models"
)

// Manager hands out one Session per physical device. Sessions live for the
// life of the process; devices are few and long-lived.
type Manager struct {
	svc     *Service
	timings Timings

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(svc *Service, timings Timings) *Manager {
	return &Manager{
		svc:      svc,
		timings:  timings,
		sessions: make(map[string]*Session),
	}
}

// Session returns the device's session, creating it on first use. eventID and
// scanType only apply at creation; an existing session keeps its binding.
func (m *Manager) Session(deviceID, eventID string, scanType models.ScanType) *Session {
	m.mu.RLock()
	if sess, ok := m.sessions[deviceID]; ok {
		m.mu.RUnlock()
		return sess
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[deviceID]; ok {
		return sess
	}
	if scanType == "" {
		scanType = models.ScanEntry
	}
	sess := NewSession(m.svc, deviceID, eventID, scanType, m.timings)
	m.sessions[deviceID] = sess
	return sess
}

// Lookup returns the session for a device without creating one.
func (m *Manager) Lookup(deviceID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[deviceID]
	return sess, ok
}
