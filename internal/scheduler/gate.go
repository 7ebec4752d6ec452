package scheduler

import (
	"fmt"

	"github.com/edirooss/livepush/internal/apperr"
)

// gate is a tiny 1-token semaphore with TryLock semantics.
type gate struct{ ch chan struct{} }

func newGate() *gate {
	g := &gate{ch: make(chan struct{}, 1)}
	g.ch <- struct{}{} // token present => unlocked
	return g
}

func (g *gate) Lock() { <-g.ch }

func (g *gate) TryLock() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

func (g *gate) Unlock() {
	select {
	case g.ch <- struct{}{}:
	default:
		panic("unlock of unlocked gate")
	}
}

// lock acquires the per-session gate, blocking. Used by the encoder exit path,
// which must not be refused.
func (sc *Scheduler) lock(id string) func() {
	v, _ := sc.gates.LoadOrStore(id, newGate())
	g := v.(*gate)
	g.Lock()
	return g.Unlock
}

// tryLock fails fast with apperr.ErrLocked while another mutation of the same
// session is in flight.
func (sc *Scheduler) tryLock(id string) (func(), error) {
	v, _ := sc.gates.LoadOrStore(id, newGate())
	g := v.(*gate)
	if !g.TryLock() {
		return func() {}, fmt.Errorf("session %q: %w", id, apperr.ErrLocked)
	}
	return g.Unlock, nil
}
