package logsink

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/domain/logevent"
)

// memStore is an in-memory Store whose availability can be toggled.
type memStore struct {
	mu     sync.Mutex
	events []*logevent.LogEvent
	down   bool
	last   int64
	writes int // Append calls, failed ones included
}

var errDown = errors.New("store down")

func (m *memStore) Append(_ context.Context, evs ...*logevent.LogEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.down {
		return errDown
	}
	m.events = append(m.events, evs...)
	return nil
}

func (m *memStore) Query(_ context.Context, f logevent.Filter) ([]*logevent.LogEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	var out []*logevent.LogEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < f.Limit; i-- {
		if f.Match(m.events[i]) {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *memStore) LastSequence(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return 0, errDown
	}
	return m.last, nil
}

func (m *memStore) setDown(v bool) {
	m.mu.Lock()
	m.down = v
	m.mu.Unlock()
}

func (m *memStore) stored() []*logevent.LogEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time      { return c.t }
func (c *fakeClock) Add(d time.Duration) { c.t = c.t.Add(d) }

func newTestSink(t *testing.T, store *memStore, opts Options) *Sink {
	t.Helper()
	return New(context.Background(), zap.NewNop(), store, opts)
}

// newClockedSink drives retry timing from a manual clock.
func newClockedSink(t *testing.T, store *memStore, opts Options) (*Sink, *fakeClock) {
	t.Helper()
	s := newTestSink(t, store, opts)
	clk := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clk.Now
	return s, clk
}

func info(s *Sink, sessionID, msg string) *logevent.LogEvent {
	return s.Append(context.Background(), logevent.LogEvent{SessionID: sessionID, Kind: logevent.Info, Message: msg})
}

func TestAppendAssignsSequenceFromStore(t *testing.T) {
	store := &memStore{last: 41}
	s := newTestSink(t, store, Options{})
	ctx := context.Background()

	a := info(s, "s1", "created")
	b := s.Append(ctx, logevent.LogEvent{SessionID: "s1", Kind: logevent.Encoder, Message: "frame=1"})

	assert.Equal(t, int64(42), a.Sequence)
	assert.Equal(t, int64(43), b.Sequence)
	assert.False(t, a.Timestamp.IsZero())
	assert.Len(t, store.stored(), 2)
}

func TestQueryOrderingAndLimit(t *testing.T) {
	store := &memStore{}
	s := newTestSink(t, store, Options{})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		s.Append(ctx, logevent.LogEvent{SessionID: fmt.Sprintf("s%d", i%2), Kind: logevent.Encoder, Message: "line"})
	}

	evs, err := s.Query(ctx, logevent.Filter{Limit: 5})
	require.NoError(t, err)
	require.Len(t, evs, 5)
	for i := 1; i < len(evs); i++ {
		assert.Greater(t, evs[i-1].Sequence, evs[i].Sequence)
	}
	assert.Equal(t, int64(20), evs[0].Sequence)

	s1, err := s.Query(ctx, logevent.Filter{SessionID: "s1", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, s1, 10)
	for _, ev := range s1 {
		assert.Equal(t, "s1", ev.SessionID)
	}
}

func TestQueryFallsBackToTail(t *testing.T) {
	store := &memStore{}
	s := newTestSink(t, store, Options{TailCapacity: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		info(s, "s1", fmt.Sprintf("event %d", i))
	}
	store.setDown(true)

	evs, err := s.Query(ctx, logevent.Filter{})
	require.NoError(t, err)
	require.Len(t, evs, 3)
	assert.Equal(t, []int64{5, 4, 3}, seqs(evs))
}

func TestTailEvictsOldest(t *testing.T) {
	s := newTestSink(t, &memStore{}, Options{TailCapacity: 2})
	info(s, "", "a")
	info(s, "", "b")
	info(s, "", "c")

	tail := s.Tail(0)
	require.Len(t, tail, 2)
	assert.Equal(t, "c", tail[0].Message)
	assert.Equal(t, "b", tail[1].Message)
	assert.Len(t, s.Tail(1), 1)
}

func TestDegradationIsRecordedOnRecovery(t *testing.T) {
	store := &memStore{}
	s, clk := newClockedSink(t, store, Options{})
	ctx := context.Background()

	info(s, "s1", "before")
	store.setDown(true)
	lost1 := info(s, "s1", "during 1")
	lost2 := info(s, "s1", "during 2")
	assert.Len(t, store.stored(), 1)

	// the caller is never blocked by the outage
	assert.NotZero(t, lost1.Sequence)

	store.setDown(false)
	clk.Add(DefaultRetryBackoff)
	after := info(s, "s1", "after")

	stored := store.stored()
	require.Len(t, stored, 5)
	assert.Equal(t, []int64{1, lost1.Sequence, lost2.Sequence, after.Sequence, after.Sequence + 1}, seqs(stored))

	outage := stored[4]
	assert.Equal(t, logevent.Error, outage.Kind)
	assert.True(t, strings.Contains(outage.Message, "2 events replayed"), outage.Message)
	assert.True(t, strings.Contains(outage.Message, "0 dropped"), outage.Message)

	// exactly one outage event
	info(s, "s1", "later")
	errs, err := s.Query(ctx, logevent.Filter{Kinds: []logevent.Kind{logevent.Error}})
	require.NoError(t, err)
	assert.Len(t, errs, 1)
}

func TestBacklogIsBounded(t *testing.T) {
	store := &memStore{}
	s, clk := newClockedSink(t, store, Options{BacklogCapacity: 2})

	store.setDown(true)
	for i := 0; i < 5; i++ {
		info(s, "", "x")
	}
	store.setDown(false)
	clk.Add(DefaultRetryBackoff)
	info(s, "", "y")

	stored := store.stored()
	// 2 kept from the backlog + y + the outage record
	require.Len(t, stored, 4)
	assert.Contains(t, stored[3].Message, "3 dropped")
}

func TestStartupSeedWhenStoreDown(t *testing.T) {
	store := &memStore{down: true}
	s := newTestSink(t, store, Options{})
	ev := info(s, "", "x")
	assert.Greater(t, ev.Sequence, int64(1_000_000_000))
}

func TestMergeDedups(t *testing.T) {
	a := []*logevent.LogEvent{{Sequence: 5}, {Sequence: 3}}
	b := []*logevent.LogEvent{{Sequence: 6}, {Sequence: 5}, {Sequence: 1}}
	assert.Equal(t, []int64{6, 5, 3}, seqs(merge(3, a, b)))
}

func seqs(evs []*logevent.LogEvent) []int64 {
	out := make([]int64, len(evs))
	for i, ev := range evs {
		out[i] = ev.Sequence
	}
	return out
}

func TestOutageRetriesWithBackoff(t *testing.T) {
	store := &memStore{}
	s, clk := newClockedSink(t, store, Options{RetryBackoff: time.Second})

	store.setDown(true)
	info(s, "", "a")
	require.Equal(t, 1, store.writeCount())

	// appends inside the backoff window stay in memory
	for i := 0; i < 10; i++ {
		info(s, "", "line")
	}
	assert.Equal(t, 1, store.writeCount())

	clk.Add(time.Second)
	info(s, "", "b")
	assert.Equal(t, 2, store.writeCount(), "retry once the window has passed")

	// the window doubled
	clk.Add(time.Second)
	info(s, "", "c")
	assert.Equal(t, 2, store.writeCount())
	clk.Add(time.Second)
	info(s, "", "d")
	assert.Equal(t, 3, store.writeCount())

	store.setDown(false)
	clk.Add(4 * time.Second)
	last := info(s, "", "e")
	stored := store.stored()
	// 14 replayed events, e, and the outage record
	require.Len(t, stored, 16)
	assert.Equal(t, last.Sequence, stored[14].Sequence)
	assert.Contains(t, stored[15].Message, "14 events replayed")

	info(s, "", "f")
	assert.Len(t, store.stored(), 17, "healthy store is written on every append")
}

func TestConcurrentAppendAssignsContiguousSequences(t *testing.T) {
	store := &memStore{last: 100}
	s := newTestSink(t, store, Options{TailCapacity: 1000})

	const workers, each = 16, 25
	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := range each {
				s.Append(context.Background(), logevent.LogEvent{
					SessionID: fmt.Sprintf("s%d", w),
					Kind:      logevent.Encoder,
					Message:   fmt.Sprintf("line %d", i),
				})
			}
		}()
	}
	close(start)
	wg.Wait()

	const total = workers * each
	stored := store.stored()
	require.Len(t, stored, total)
	// writes are serialized, so the store received sequences in order
	for i, ev := range stored {
		assert.Equal(t, int64(101+i), ev.Sequence)
	}

	evs, err := s.Query(context.Background(), logevent.Filter{Limit: total})
	require.NoError(t, err)
	require.Len(t, evs, total)
	for i, ev := range evs {
		assert.Equal(t, int64(100+total-i), ev.Sequence)
	}

	// each session's lines keep their order
	perSession := make(map[string]int)
	for i := len(evs) - 1; i >= 0; i-- {
		ev := evs[i]
		assert.Equal(t, fmt.Sprintf("line %d", perSession[ev.SessionID]), ev.Message)
		perSession[ev.SessionID]++
	}
	assert.Len(t, perSession, workers)
}
