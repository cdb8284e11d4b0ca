package memory

import (
	"context"
	"sync"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/admission"
)

const defaultRecentCap = 1000

// EventStore implements admission.EventStore with a bounded ring buffer of
// the most recent events.
type EventStore struct {
	mu     sync.Mutex
	recent []admission.Event
	next   int
	full   bool
}

// NewEventStore creates an event store keeping at most capacity events
// (default 1000 when capacity <= 0).
func NewEventStore(capacity int) *EventStore {
	if capacity <= 0 {
		capacity = defaultRecentCap
	}
	return &EventStore{recent: make([]admission.Event, capacity)}
}

// Record appends events, overwriting the oldest once the buffer is full.
func (s *EventStore) Record(_ context.Context, events []admission.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		s.recent[s.next] = ev
		s.next++
		if s.next == len(s.recent) {
			s.next = 0
			s.full = true
		}
	}
	return nil
}

// Len returns the number of buffered events.
func (s *EventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return len(s.recent)
	}
	return s.next
}

// GetRecent returns up to n of the most recent events, newest first.
func (s *EventStore) GetRecent(n int) []admission.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.next
	if s.full {
		total = len(s.recent)
	}
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}
	result := make([]admission.Event, n)
	idx := s.next
	for i := 0; i < n; i++ {
		idx--
		if idx < 0 {
			idx = len(s.recent) - 1
		}
		result[i] = s.recent[idx]
	}
	return result
}

var _ admission.EventStore = (*EventStore)(nil)
