package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/domain/session"
)

// enqueue keeps the due queue in line with s. Only pending scheduled
// sessions wait in it, and only when auto-start is enabled.
func (sc *Scheduler) enqueue(s *session.Session) {
	if !sc.opts.AutoStartDue {
		return
	}
	if s.Status != session.StatusPending || s.Kind != session.KindScheduled || s.ScheduledAt == nil {
		sc.dequeue(s.ID)
		return
	}
	sc.dueMu.Lock()
	sc.due.push(s.ID, *s.ScheduledAt)
	sc.dueMu.Unlock()
	sc.wakeUp()
}

func (sc *Scheduler) dequeue(id string) {
	sc.dueMu.Lock()
	sc.due.remove(id)
	sc.dueMu.Unlock()
}

func (sc *Scheduler) wakeUp() {
	select {
	case sc.wake <- struct{}{}:
	default:
	}
}

// Run starts pending scheduled sessions as their time arrives, until ctx is
// done. It returns immediately when auto-start is disabled.
func (sc *Scheduler) Run(ctx context.Context) {
	if !sc.opts.AutoStartDue {
		return
	}
	sc.log.Info("due queue running")

	for {
		sc.dueMu.Lock()
		due := sc.due.popDue(sc.now())
		sc.dueMu.Unlock()

		for _, id := range due {
			sc.startDue(ctx, id)
		}

		var t *time.Timer
		var fire <-chan time.Time
		sc.dueMu.Lock()
		if _, when, ok := sc.due.next(); ok {
			t = time.NewTimer(max(when.Sub(sc.now()), 0))
			fire = t.C
		}
		sc.dueMu.Unlock()

		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			sc.log.Info("due queue stopped")
			return
		case <-sc.wake:
		case <-fire:
		}
		if t != nil {
			t.Stop()
		}
	}
}

func (sc *Scheduler) startDue(ctx context.Context, id string) {
	log := sc.log.With(zap.String("session_id", id))
	if _, err := sc.Start(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrLocked) {
			log.Warn("due session busy; skipped", zap.Error(err))
			return
		}
		// Start has already recorded the failure as an ERROR event.
		log.Warn("due session failed to start", zap.Error(err))
		return
	}
	log.Info("due session started")
}
