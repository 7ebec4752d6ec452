package logevent

import (
	"slices"
	"time"
)

// Kind classifies a log event.
type Kind string

const (
	Info    Kind = "INFO"
	Error   Kind = "ERROR"
	Encoder Kind = "ENCODER"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case Info, Error, Encoder:
		return true
	}
	return false
}

// LogEvent is immutable once appended. Sequence is assigned by the sink and
// is the only ordering key; Timestamp is for display.
type LogEvent struct {
	Sequence    int64     `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
	SessionID   string    `json:"session_id"`
	Kind        Kind      `json:"kind"`
	Message     string    `json:"message"`
	VideoRef    string    `json:"video_ref,omitempty"`
	ChannelName string    `json:"channel_name,omitempty"`
}

// Filter selects events for a query. Zero values match everything; Limit <= 0
// lets the store apply its default.
type Filter struct {
	SessionID string
	Kinds     []Kind
	Limit     int
}

// Match reports whether ev passes the session and kind filters.
func (f Filter) Match(ev *LogEvent) bool {
	if f.SessionID != "" && ev.SessionID != f.SessionID {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	return true
}
