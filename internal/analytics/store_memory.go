package analytics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps analytics events in process memory, mirroring the
// Postgres store's semantics.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) ListByUserHash(_ context.Context, userIDHash string, limit int) ([]Event, error) {
	s.mu.RLock()
	var matched []Event
	for _, e := range s.events {
		if e.UserIDHash == userIDHash {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var deleted int64
	for _, e := range s.events {
		if e.OccurredAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return deleted, nil
}

func (s *MemoryStore) CountOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.events {
		if e.OccurredAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored events. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
