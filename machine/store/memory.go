package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests, development, and
// single-process use. Data is lost when the process exits.
type MemStore struct {
	mu          sync.RWMutex
	checkpoints map[string][]byte
	sessions    map[string][]SessionRecord
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		checkpoints: make(map[string][]byte),
		sessions:    make(map[string][]SessionRecord),
	}
}

// SaveCheckpoint stores a copy of the payload under id.
func (m *MemStore) SaveCheckpoint(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[id] = append([]byte{}, data...)
	return nil
}

// LoadCheckpoint returns a copy of the payload saved under id.
func (m *MemStore) LoadCheckpoint(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.checkpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, data...), nil
}

// DeleteCheckpoint removes the payload saved under id.
func (m *MemStore) DeleteCheckpoint(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checkpoints[id]; !ok {
		return ErrNotFound
	}
	delete(m.checkpoints, id)
	return nil
}

// ListCheckpoints returns all stored checkpoint ids, sorted for stable
// iteration.
func (m *MemStore) ListCheckpoints(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.checkpoints))
	for id := range m.checkpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendRecord adds a decision record to a session.
func (m *MemStore) AppendRecord(_ context.Context, session string, seq int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session] = append(m.sessions[session], SessionRecord{
		Seq:  seq,
		Data: append([]byte{}, data...),
	})
	return nil
}

// Session returns a session's records ordered by sequence number.
func (m *MemStore) Session(_ context.Context, session string) ([]SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records, ok := m.sessions[session]
	if !ok || len(records) == 0 {
		return nil, ErrNotFound
	}
	out := make([]SessionRecord, len(records))
	copy(out, records)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}
