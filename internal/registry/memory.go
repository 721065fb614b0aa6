package registry

import (
	"context"
	"sync"
)

// Memory is an in-process Registry. State does not survive the process; it
// exists for tests and dry runs.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	sessions []Session
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Lookup(_ context.Context, sourceID string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[sourceID]
	return entry, ok, nil
}

func (m *Memory) Record(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.SourceID] = entry
	return nil
}

func (m *Memory) Delete(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sourceID)
	return nil
}

func (m *Memory) RecordSession(_ context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, session)
	return nil
}

// Sessions returns the recorded run history.
func (m *Memory) Sessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Len returns the number of recorded entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
