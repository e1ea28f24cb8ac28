package transcript

import (
	"context"
	"sort"
	"sync"
)

// Compile-time assertion that MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store. Fragments live only as long as the
// process; use the PostgreSQL store for durable transcripts.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string][]Fragment
	order    []string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]Fragment)}
}

// Append implements Store.
func (m *MemStore) Append(_ context.Context, sessionID string, f Fragment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.order = append(m.order, sessionID)
	}
	m.sessions[sessionID] = append(m.sessions[sessionID], f)
	return nil
}

// Fragments implements Store.
func (m *MemStore) Fragments(_ context.Context, sessionID string) ([]Fragment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := append([]Fragment(nil), stored...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Transcript implements Store.
func (m *MemStore) Transcript(ctx context.Context, sessionID string) (string, error) {
	fragments, err := m.Fragments(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return joinFragments(fragments), nil
}

// Sessions implements Store.
func (m *MemStore) Sessions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	for i, id := range m.order {
		out[len(m.order)-1-i] = id
	}
	return out, nil
}
