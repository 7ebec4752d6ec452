package scheduler

import (
	"container/heap"
	"time"
)

// dueEntry is a pending scheduled session waiting for its start time.
// index is required for heap.Fix + O(log n) removals.
type dueEntry struct {
	id    string
	when  time.Time
	index int
}

// dueQueue is a min-heap of start times keyed by session id.
type dueQueue struct {
	h       dueHeap
	entries map[string]*dueEntry
}

func newDueQueue() *dueQueue {
	return &dueQueue{entries: make(map[string]*dueEntry)}
}

// push inserts or reschedules id.
func (q *dueQueue) push(id string, when time.Time) {
	if old, ok := q.entries[id]; ok {
		old.when = when
		heap.Fix(&q.h, old.index)
		return
	}
	ev := &dueEntry{id: id, when: when}
	q.entries[id] = ev
	heap.Push(&q.h, ev)
}

// next returns the soonest entry without removing it.
func (q *dueQueue) next() (id string, when time.Time, ok bool) {
	if len(q.h) == 0 {
		return "", time.Time{}, false
	}
	ev := q.h[0]
	return ev.id, ev.when, true
}

// popDue removes and returns every id whose time is not after now.
func (q *dueQueue) popDue(now time.Time) []string {
	var out []string
	for len(q.h) > 0 && !q.h[0].when.After(now) {
		ev := heap.Pop(&q.h).(*dueEntry)
		delete(q.entries, ev.id)
		out = append(out, ev.id)
	}
	return out
}

// remove drops id if it is still queued.
func (q *dueQueue) remove(id string) {
	ev, ok := q.entries[id]
	if !ok {
		return
	}
	heap.Remove(&q.h, ev.index)
	delete(q.entries, id)
}

func (q *dueQueue) len() int { return len(q.h) }

// dueHeap is a min-heap ordered by entry.when.
type dueHeap []*dueEntry

func (h dueHeap) Len() int           { return len(h) }
func (h dueHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }

func (h dueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *dueHeap) Push(x any) {
	ev := x.(*dueEntry)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	ev.index = -1 // mark as removed
	*h = old[:n-1]
	return ev
}
