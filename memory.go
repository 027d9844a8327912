package dispatch

import (
	"context"
	"sync"
)

type (
	// MemoryStore is an EventStore that keeps events in process memory, in
	// insertion order. It is safe for concurrent use
	MemoryStore struct {
		events []*Event
		ids    map[ID]struct{}
		mu     sync.RWMutex
	}
)

var _ EventStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ids: map[ID]struct{}{},
	}
}

// Append stores evs as one batch
func (s *MemoryStore) Append(_ context.Context, evs ...*Event) ([]*Event, error) {
	if len(evs) == 0 {
		return evs, nil
	}
	if err := CheckBatch(evs); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range evs {
		if _, ok := s.ids[ev.ID]; ok {
			return nil, &DuplicateEventError{ID: ev.ID}
		}
	}
	for _, ev := range evs {
		s.ids[ev.ID] = struct{}{}
		s.events = append(s.events, ev)
	}
	return evs, nil
}

// Query returns the stored events matching q
func (s *MemoryStore) Query(_ context.Context, q EventQuery) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*Event{}
	for _, ev := range s.events {
		if q.Matches(ev) {
			matched = append(matched, ev)
		}
	}
	start, end := q.Window(len(matched))
	return matched[start:end], nil
}

// Len returns the number of stored events
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
