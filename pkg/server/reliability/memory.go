package reliability

import (
	"context"
	"sync"
)

type sourceStats struct {
	mu    sync.Mutex
	stats Stats
}

// MemoryStore keeps history in process memory with one lock per source.
type MemoryStore struct {
	mu      sync.RWMutex
	sources map[string]*sourceStats
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sources: make(map[string]*sourceStats)}
}

func (m *MemoryStore) entry(source string) *sourceStats {
	m.mu.RLock()
	e, ok := m.sources[source]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.sources[source]; !ok {
		e = &sourceStats{}
		m.sources[source] = e
	}
	return e
}

// Record implements Store.
func (m *MemoryStore) Record(_ context.Context, source string, ok bool) error {
	if source == "" {
		return ErrEmptySource
	}
	e := m.entry(source)
	e.mu.Lock()
	e.stats.Attempts++
	if ok {
		e.stats.Successes++
	}
	e.mu.Unlock()
	return nil
}

// Scores implements Store.
func (m *MemoryStore) Scores(_ context.Context, sources []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(sources))
	for _, source := range sources {
		stats := m.Stats(source)
		if stats.Attempts == 0 {
			continue
		}
		scores[source] = stats.Score()
	}
	return scores, nil
}

// Stats returns a snapshot of the history for source.
func (m *MemoryStore) Stats(source string) Stats {
	m.mu.RLock()
	e, ok := m.sources[source]
	m.mu.RUnlock()
	if !ok {
		return Stats{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
