package memory

import (
	"context"
	"sync"

	audit "confreg/pkg/platform/audit"
)

const defaultCapacity = 10000

// InMemoryStore keeps the most recent events in a bounded ring. When full,
// the oldest event is dropped to make room.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   []audit.Event
	head     int
	count    int
	capacity int
	dropped  int64
}

// NewInMemoryStore creates a store holding at most capacity events.
// A non-positive capacity selects the default.
func NewInMemoryStore(capacity ...int) *InMemoryStore {
	c := defaultCapacity
	if len(capacity) > 0 && capacity[0] > 0 {
		c = capacity[0]
	}
	return &InMemoryStore{events: make([]audit.Event, c), capacity: c}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == s.capacity {
		s.dropped++
		s.count--
	}
	s.events[s.head] = event
	s.head = (s.head + 1) % s.capacity
	s.count++
	return nil
}

func (s *InMemoryStore) ListByEmail(_ context.Context, email string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.ordered() {
		if e.Email == email {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every retained event, oldest first.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ordered(), nil
}

// Dropped returns the number of events evicted because the ring was full.
func (s *InMemoryStore) Dropped() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]audit.Event, s.capacity)
	s.head, s.count = 0, 0
}

func (s *InMemoryStore) ordered() []audit.Event {
	out := make([]audit.Event, 0, s.count)
	start := (s.head - s.count + s.capacity) % s.capacity
	for i := 0; i < s.count; i++ {
		out = append(out, s.events[(start+i)%s.capacity])
	}
	return out
}
