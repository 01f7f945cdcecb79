package memory

import (
	"context"
	"sort"
	"sync"

	id "amlcore/pkg/domain"
	audit "amlcore/pkg/platform/audit"
)

// InMemoryStore keeps audit entries per operation. Used by tests and by the
// server when no database is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.OperationID][]audit.Entry
	failing error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.OperationID][]audit.Entry)}
}

// FailWith makes every subsequent Append return err; nil restores normal behavior.
func (s *InMemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[id.OperationID][]audit.Entry)
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	s.entries[entry.OperationID] = append(s.entries[entry.OperationID], entry)
	return nil
}

func (s *InMemoryStore) ListByOperation(_ context.Context, operationID id.OperationID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]audit.Entry{}, s.entries[operationID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Count returns the number of entries across all operations.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		n += len(e)
	}
	return n
}
