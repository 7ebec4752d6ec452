package encoder

import (
	"slices"
	"sync"
)

// slotPool is a non-blocking semaphore with explicit ownership. Each slot is
// held by one session id; an id holds at most one slot.
type slotPool struct {
	mu         sync.Mutex
	maxCap     int
	acquiredBy map[string]struct{}
}

func newSlotPool(max int) *slotPool {
	if max < 1 {
		max = 1
	}
	return &slotPool{
		maxCap:     max,
		acquiredBy: make(map[string]struct{}),
	}
}

// tryAcquire registers id as an owner. It fails when the pool is full or
// when id already holds a slot.
func (s *slotPool) tryAcquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, holds := s.acquiredBy[id]; holds {
		return false
	}
	if len(s.acquiredBy) >= s.maxCap {
		return false
	}
	s.acquiredBy[id] = struct{}{}
	return true
}

// release frees the slot owned by id.
// Releasing an id that does not own a slot is an invariant violation.
func (s *slotPool) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, holds := s.acquiredBy[id]; !holds {
		panic("slotPool: release for non-owner id")
	}
	delete(s.acquiredBy, id)
}

// listAcquired returns a sorted snapshot of all current owners.
func (s *slotPool) listAcquired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.acquiredBy))
	for id := range s.acquiredBy {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *slotPool) capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxCap
}

func (s *slotPool) current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.acquiredBy)
}
