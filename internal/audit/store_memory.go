package audit

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the trail in process memory, mirroring the Postgres
// store's ordering and purge semantics.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []memoryEntry
	seq     uint64
}

type memoryEntry struct {
	Entry
	seq uint64 // insertion order breaks occurred_at ties deterministically
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries = append(s.entries, memoryEntry{Entry: entry, seq: s.seq})
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, filters Filters) ([]Entry, error) {
	return s.Search(ctx, filters)
}

func (s *MemoryStore) ListByRequestID(_ context.Context, requestID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []memoryEntry
	for _, e := range s.entries {
		if e.RequestID == requestID {
			matched = append(matched, e)
		}
	}
	// Ascending: oldest first, reconstructing the request lifecycle.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.Before(matched[j].OccurredAt)
		}
		return matched[i].seq < matched[j].seq
	})
	out := make([]Entry, len(matched))
	for i, e := range matched {
		out[i] = e.Entry
	}
	return out, nil
}

func (s *MemoryStore) Search(_ context.Context, filters Filters) ([]Entry, error) {
	s.mu.RLock()
	var matched []memoryEntry
	for _, e := range s.entries {
		if matches(e.Entry, filters) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	// Most-recent-first.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].seq > matched[j].seq
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}

	out := make([]Entry, len(matched))
	for i, e := range matched {
		out[i] = e.Entry
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, filters Filters) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.entries {
		if matches(e.Entry, filters) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time, record Entry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		// Boundary-inclusive entries are kept: only strictly older go.
		if e.OccurredAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	if deleted > 0 {
		record.Details = purgeDetails(cutoff, deleted)
		s.seq++
		s.entries = append(s.entries, memoryEntry{Entry: record, seq: s.seq})
	}
	return deleted, nil
}

func purgeDetails(cutoff time.Time, deleted int64) json.RawMessage {
	details, _ := json.Marshal(map[string]any{
		"deleted_count": deleted,
		"cutoff":        cutoff.UTC().Format(time.RFC3339),
	})
	return details
}

func matches(e Entry, f Filters) bool {
	if !f.UserID.IsNil() && e.UserID != f.UserID {
		return false
	}
	if f.Who != "" && e.Who != f.Who {
		return false
	}
	if f.What != "" && e.What != f.What {
		return false
	}
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if !f.Since.IsZero() && e.OccurredAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.OccurredAt.After(f.Until) {
		return false
	}
	return true
}
