// Package logsink assigns sequence numbers to log events, keeps a bounded
// in-memory tail, and writes events to a durable store.
//
// A durable write failure never reaches the caller. Unsaved events are kept in
// a bounded backlog. While the store is down, writes are retried with an
// exponential backoff rather than on every append; the first successful retry
// replays the backlog together with a single ERROR event describing the outage.
package logsink

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/domain/logevent"
)

const (
	DefaultTailCapacity    = 500
	DefaultBacklogCapacity = 5000
	DefaultQueryLimit      = 100
	DefaultRetryBackoff    = time.Second

	maxRetryBackoff = 30 * time.Second
)

// Store is the durable, append-only event collection.
type Store interface {
	Append(ctx context.Context, evs ...*logevent.LogEvent) error
	Query(ctx context.Context, f logevent.Filter) ([]*logevent.LogEvent, error)
	LastSequence(ctx context.Context) (int64, error)
}

type Options struct {
	TailCapacity    int
	BacklogCapacity int
	WriteTimeout    time.Duration
	// RetryBackoff is the first wait before retrying a failed store. It
	// doubles on every failed retry.
	RetryBackoff time.Duration
}

type Sink struct {
	log   *zap.Logger
	store Store
	tail  *ring
	now   func() time.Time

	writeTimeout time.Duration
	backlogCap   int
	retryBackoff time.Duration

	mu          sync.Mutex // serializes sequence assignment and durable writes
	seq         int64
	backlog     []*logevent.LogEvent
	dropped     int
	outageSince time.Time
	backoff     time.Duration
	retryAt     time.Time
}

// New seeds the sequence from the store. If the store cannot be read the seed
// falls back to the wall clock in microseconds, which stays ahead of anything
// a previous run could have written.
func New(ctx context.Context, log *zap.Logger, store Store, opts Options) *Sink {
	if opts.BacklogCapacity <= 0 {
		opts.BacklogCapacity = DefaultBacklogCapacity
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}

	s := &Sink{
		log:          log.Named("logsink"),
		store:        store,
		tail:         newRing(opts.TailCapacity),
		now:          time.Now,
		writeTimeout: opts.WriteTimeout,
		backlogCap:   opts.BacklogCapacity,
		retryBackoff: opts.RetryBackoff,
	}

	seed, err := store.LastSequence(ctx)
	if err != nil {
		seed = time.Now().UnixMicro()
		s.log.Warn("durable log store unavailable at startup; seeding sequence from clock",
			zap.Int64("seed", seed), zap.Error(err))
	}
	s.seq = seed
	return s
}

// Append assigns the next sequence to a copy of ev, records it and returns
// the stored event. It never fails.
func (s *Sink) Append(ctx context.Context, ev logevent.LogEvent) *logevent.LogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.assign(ev)
	if s.degraded() && s.now().Before(s.retryAt) {
		s.keep(rec)
		return rec
	}

	batch := append(slices.Clone(s.backlog), rec)
	if err := s.write(ctx, batch); err != nil {
		s.degrade(rec, err)
		return rec
	}
	if s.degraded() {
		s.recover(ctx, len(batch)-1)
	}
	return rec
}

// assign must be called with mu held.
func (s *Sink) assign(ev logevent.LogEvent) *logevent.LogEvent {
	s.seq++
	ev.Sequence = s.seq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	s.tail.Append(ev)
	return &ev
}

func (s *Sink) write(ctx context.Context, evs []*logevent.LogEvent) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()
	return apperr.Persistence("logs", "append", s.store.Append(ctx, evs...))
}

func (s *Sink) degraded() bool { return !s.outageSince.IsZero() }

// degrade records a failed write and schedules the next retry.
// It must be called with mu held.
func (s *Sink) degrade(ev *logevent.LogEvent, err error) {
	now := s.now()
	if !s.degraded() {
		s.outageSince = now
		s.backoff = s.retryBackoff
		s.log.Warn("durable log store unavailable; events kept in memory", zap.Error(err))
	} else {
		s.backoff = min(2*s.backoff, maxRetryBackoff)
		s.log.Debug("durable log store still unavailable", zap.Duration("retry_in", s.backoff), zap.Error(err))
	}
	s.retryAt = now.Add(s.backoff)
	s.keep(ev)
}

// keep adds ev to the bounded backlog. It must be called with mu held.
func (s *Sink) keep(ev *logevent.LogEvent) {
	s.backlog = append(s.backlog, ev)
	if over := len(s.backlog) - s.backlogCap; over > 0 {
		s.backlog = slices.Delete(s.backlog, 0, over)
		s.dropped += over
	}
}

// recover records the outage once the backlog has been replayed.
// It must be called with mu held.
func (s *Sink) recover(ctx context.Context, replayed int) {
	msg := fmt.Sprintf("log persistence degraded since %s: %d events replayed, %d dropped",
		s.outageSince.Format(time.RFC3339), replayed, s.dropped)

	s.backlog = nil
	s.dropped = 0
	s.outageSince = time.Time{}
	s.backoff = 0
	s.retryAt = time.Time{}
	s.log.Info("durable log store recovered", zap.Int("replayed", replayed))

	rec := s.assign(logevent.LogEvent{Kind: logevent.Error, Message: msg})
	if err := s.write(ctx, []*logevent.LogEvent{rec}); err != nil {
		s.degrade(rec, err)
	}
}

// Query returns events matching f by sequence descending, merging durable
// results with the in-memory tail. When the store fails the tail alone is
// served.
func (s *Sink) Query(ctx context.Context, f logevent.Filter) ([]*logevent.LogEvent, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}

	durable, err := s.store.Query(ctx, f)
	if err != nil {
		s.log.Warn("durable log query failed; serving tail", zap.Error(err))
		durable = nil
	}
	return merge(f.Limit, durable, s.tail.Read(0, f)), nil
}

// Tail returns the newest n events held in memory.
func (s *Sink) Tail(n int) []*logevent.LogEvent {
	return s.tail.Read(n, logevent.Filter{})
}

// merge combines both lists, drops duplicate sequences, and returns at most
// limit events by sequence descending.
func merge(limit int, lists ...[]*logevent.LogEvent) []*logevent.LogEvent {
	seen := make(map[int64]struct{})
	var out []*logevent.LogEvent
	for _, l := range lists {
		for _, ev := range l {
			if _, ok := seen[ev.Sequence]; ok {
				continue
			}
			seen[ev.Sequence] = struct{}{}
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, func(a, b *logevent.LogEvent) int {
		switch {
		case a.Sequence > b.Sequence:
			return -1
		case a.Sequence < b.Sequence:
			return 1
		}
		return 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
