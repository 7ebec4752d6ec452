package session

import (
	"slices"
	"time"
)

type Kind string

const (
	KindDraft     Kind = "draft"
	KindScheduled Kind = "scheduled"
	KindImmediate Kind = "immediate"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Privacy string

const (
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
	PrivacyPrivate  Privacy = "private"
)

// Session is one streaming attempt. SessionID is caller-assigned and
// immutable; BroadcastID/IngestKey/WatchURL stay empty until provisioned
// (or, for IngestKey, supplied by the operator).
type Session struct {
	ID          string     `json:"session_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ScheduledAt *time.Time `json:"scheduled_at"` // nullable (on kind=scheduled, required)

	VideoRef    string   `json:"video_ref"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Category    string   `json:"category"`
	Privacy     Privacy  `json:"privacy"`
	MadeForKids bool     `json:"made_for_kids"`
	ChannelName string   `json:"channel_name"`

	Kind   Kind   `json:"kind"`
	Status Status `json:"status"`

	ShortsMode    bool   `json:"shorts_mode"`    // scale to 720x1280
	AutoProvision bool   `json:"auto_provision"` // provision before launching the encoder
	IngestURL     string `json:"ingest_url"`     // operator override of the full push target

	StreamID    string `json:"stream_id"`             // remote ingest resource
	IngestBase  string `json:"ingest_base,omitempty"` // ingest address returned by provisioning; empty = configured base
	BroadcastID string `json:"broadcast_id"`          // nullable
	IngestKey   string `json:"ingest_key"`            // nullable
	WatchURL    string `json:"watch_url"`             // nullable

	// Partial holds identifiers of an interrupted provisioning so the next
	// attempt resumes at the failed step.
	Partial *Partial `json:"partial,omitempty"`
}

// Partial mirrors the identifiers a failed provisioning already obtained.
type Partial struct {
	StreamID    string `json:"stream_id"`
	IngestKey   string `json:"ingest_key"`
	IngestURL   string `json:"ingest_url"`
	BroadcastID string `json:"broadcast_id"`
}

// Provisioned reports whether a complete remote broadcast is bound to s.
func (s *Session) Provisioned() bool {
	return s.BroadcastID != "" && s.IngestKey != ""
}

// Clone returns a deep copy; the scheduler never hands out its own records.
func (s *Session) Clone() *Session {
	out := *s
	if s.ScheduledAt != nil {
		t := *s.ScheduledAt
		out.ScheduledAt = &t
	}
	out.Tags = slices.Clone(s.Tags)
	if s.Partial != nil {
		p := *s.Partial
		out.Partial = &p
	}
	return &out
}

// Filter selects sessions for List. Zero values match everything.
type Filter struct {
	ChannelName string
	Status      Status
}

func (f Filter) Match(s *Session) bool {
	if f.ChannelName != "" && s.ChannelName != f.ChannelName {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// SortBySchedule orders sessions by ScheduledAt ascending. Unscheduled
// sessions go last; ties break on CreatedAt, then ID.
func SortBySchedule(ss []*Session) {
	slices.SortStableFunc(ss, func(a, b *Session) int {
		switch {
		case a.ScheduledAt != nil && b.ScheduledAt == nil:
			return -1
		case a.ScheduledAt == nil && b.ScheduledAt != nil:
			return 1
		case a.ScheduledAt != nil && b.ScheduledAt != nil && !a.ScheduledAt.Equal(*b.ScheduledAt):
			return a.ScheduledAt.Compare(*b.ScheduledAt)
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
