package dto

import (
	"fmt"
	"time"

	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/domain/session"
	"github.com/edirooss/livepush/internal/scheduler"
)

// SessionCreate is the DTO for creating a streaming session via
// POST /api/sessions.
//   - Only kind is required. session_id is assigned when omitted.
//   - scheduled_at is required for kind=scheduled.
type SessionCreate struct {
	SessionID     W[string]    `json:"session_id"`     // optional; string | null   (default: uuid)
	Kind          W[string]    `json:"kind"`           // required; draft | scheduled | immediate
	ScheduledAt   W[time.Time] `json:"scheduled_at"`   // optional; RFC 3339 | null (default: null)
	VideoRef      W[string]    `json:"video_ref"`      // optional; string          (default: "")
	Title         W[string]    `json:"title"`          // optional; string          (default: "")
	Description   W[string]    `json:"description"`    // optional; string          (default: "")
	Tags          W[[]string]  `json:"tags"`           // optional; []string        (default: [])
	Category      W[string]    `json:"category"`       // optional; string          (default: "")
	Privacy       W[string]    `json:"privacy"`        // optional; string          (default: default_settings.privacy)
	MadeForKids   W[bool]      `json:"made_for_kids"`  // optional; bool            (default: false)
	ChannelName   W[string]    `json:"channel_name"`   // optional; string          (default: "")
	ShortsMode    W[bool]      `json:"shorts_mode"`    // optional; bool            (default: false)
	AutoProvision W[bool]      `json:"auto_provision"` // optional; bool            (default: false)
	IngestKey     W[string]    `json:"ingest_key"`     // optional; string | null   (default: channel stream key)
	IngestURL     W[string]    `json:"ingest_url"`     // optional; string | null   (default: platform ingest)
}

// ToRequest maps SessionCreate → scheduler.CreateRequest.
// Disallows explicit null on non-nullable fields.
func (req *SessionCreate) ToRequest(defaults config.DefaultSetting) (scheduler.CreateRequest, error) {
	var out scheduler.CreateRequest

	if !req.Kind.Set || req.Kind.Null {
		return out, fmt.Errorf("kind: required")
	}
	for _, f := range []struct {
		name string
		null bool
	}{
		{"video_ref", req.VideoRef.Null},
		{"title", req.Title.Null},
		{"description", req.Description.Null},
		{"tags", req.Tags.Null},
		{"category", req.Category.Null},
		{"privacy", req.Privacy.Null},
		{"made_for_kids", req.MadeForKids.Null},
		{"channel_name", req.ChannelName.Null},
		{"shorts_mode", req.ShortsMode.Null},
		{"auto_provision", req.AutoProvision.Null},
	} {
		if f.null {
			return out, fmt.Errorf("%s: must not be null", f.name)
		}
	}

	out.SessionID = req.SessionID.Or("")
	out.Kind = session.Kind(req.Kind.V)
	out.ScheduledAt = req.ScheduledAt.Ptr()
	out.VideoRef = req.VideoRef.Or("")
	out.Title = req.Title.Or("")
	out.Description = req.Description.Or("")
	out.Tags = req.Tags.Or(nil)
	out.Category = req.Category.Or("")
	out.Privacy = session.Privacy(req.Privacy.Or(defaults.Privacy))
	out.MadeForKids = req.MadeForKids.Or(false)
	out.ChannelName = req.ChannelName.Or("")
	out.ShortsMode = req.ShortsMode.Or(false)
	out.AutoProvision = req.AutoProvision.Or(false)
	out.IngestKey = req.IngestKey.Or("")
	out.IngestURL = req.IngestURL.Or("")
	return out, nil
}

// SessionSchedule is the DTO for POST /api/sessions/{id}/schedule.
type SessionSchedule struct {
	Kind        string     `json:"kind"`         // required; scheduled | immediate
	ScheduledAt *time.Time `json:"scheduled_at"` // required for kind=scheduled
}
