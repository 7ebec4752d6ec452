package logsink

import (
	"sync"

	"github.com/edirooss/livepush/internal/domain/logevent"
)

// ring is a thread-safe circular buffer of events with O(1) append.
// The oldest entry is overwritten once the buffer is full.
type ring struct {
	entries []logevent.LogEvent
	head    int // next write position
	size    int // current number of entries
	mu      sync.RWMutex
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultTailCapacity
	}
	return &ring{entries: make([]logevent.LogEvent, capacity)}
}

func (b *ring) Append(ev logevent.LogEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capN := len(b.entries)
	b.entries[b.head] = ev
	b.head = (b.head + 1) % capN
	if b.size < capN {
		b.size++
	}
}

// Read returns up to n entries matching f, newest → oldest.
// n <= 0 means the whole buffer. The result is a new slice owned by the caller.
func (b *ring) Read(n int, f logevent.Filter) []*logevent.LogEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	capN := len(b.entries)
	if b.size == 0 {
		return nil
	}
	if n <= 0 || n > capN {
		n = capN
	}

	// head is one past the newest entry in both the wrapped and unwrapped case
	newest := (b.head - 1 + capN) % capN

	out := make([]*logevent.LogEvent, 0, min(n, b.size))
	for i := 0; i < b.size && len(out) < n; i++ {
		ev := b.entries[(newest-i+capN)%capN]
		if !f.Match(&ev) {
			continue
		}
		out = append(out, &ev)
	}
	return out
}

func (b *ring) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
