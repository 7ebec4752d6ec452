package session

import (
	"time"

	"github.com/edirooss/livepush/internal/apperr"
)

// MinLeadTime is the lead the remote platform requires between "now" and a
// broadcast's scheduled start.
const MinLeadTime = time.Minute

// transitions is the complete state machine. Anything absent is illegal;
// completed and cancelled have no outgoing edges.
var transitions = map[Status][]Status{
	StatusDraft:   {StatusPending, StatusCancelled},
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCompleted},
}

// CanTransition reports whether from → to is a defined edge.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether st has no outgoing transitions.
func (st Status) Terminal() bool {
	return len(transitions[st]) == 0
}

// Transition moves s to next, or returns a ValidationError for an undefined edge.
func (s *Session) Transition(next Status, now time.Time) error {
	if !CanTransition(s.Status, next) {
		return apperr.Validation("status", "cannot transition from "+string(s.Status)+" to "+string(next))
	}
	s.Status = next
	s.UpdatedAt = now
	return nil
}

// InitialStatus returns the status a freshly created session starts in.
func InitialStatus(k Kind) Status {
	if k == KindDraft {
		return StatusDraft
	}
	return StatusPending
}

// NormalizeSchedule returns the effective start time: at itself when strictly
// after now, otherwise now + MinLeadTime. A nil at yields now + MinLeadTime.
func NormalizeSchedule(at *time.Time, now time.Time) time.Time {
	if at == nil || !at.After(now) {
		return now.Add(MinLeadTime)
	}
	return *at
}
