package session

import (
	"strings"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/pkg/avurl"
)

// Validate checks the static shape of a session at creation time.
// Launch preconditions (video, ingest key) are checked by ValidateLaunch.
func (s *Session) Validate() error {
	// session_id: required, maxLength 128, no whitespace
	if s.ID == "" {
		return apperr.Validation("session_id", "required")
	}
	if len(s.ID) > 128 {
		return apperr.Validation("session_id", "must be at most 128 characters")
	}
	if strings.ContainsAny(s.ID, " \t\r\n") {
		return apperr.Validation("session_id", "must not contain whitespace")
	}

	switch s.Kind {
	case KindDraft, KindImmediate:
	case KindScheduled:
		if s.ScheduledAt == nil {
			return apperr.Validation("scheduled_at", "required for scheduled sessions")
		}
	default:
		return apperr.Validation("kind", "must be one of draft, scheduled, immediate")
	}

	switch s.Privacy {
	case PrivacyPublic, PrivacyUnlisted, PrivacyPrivate:
	case "":
		s.Privacy = PrivacyPublic
	default:
		return apperr.Validation("privacy", "must be one of public, unlisted, private")
	}

	// title: maxLength 100 (platform limit)
	if len(s.Title) > 100 {
		return apperr.Validation("title", "must be at most 100 characters")
	}
	if len(s.Description) > 5000 {
		return apperr.Validation("description", "must be at most 5000 characters")
	}

	// ingest_url: optional full push target handed to the encoder as is
	if s.IngestURL != "" {
		if _, err := avurl.ParseIngest(s.IngestURL); err != nil {
			return apperr.Validation("ingest_url", err.Error())
		}
	}
	return nil
}

// ValidateLaunch checks what an encoder needs before it can be started.
func (s *Session) ValidateLaunch() error {
	if strings.TrimSpace(s.VideoRef) == "" {
		return apperr.Validation("video_ref", "required to start streaming")
	}
	if strings.TrimSpace(s.IngestKey) == "" && strings.TrimSpace(s.IngestURL) == "" {
		return apperr.Validation("ingest_key", "required to start streaming")
	}
	return nil
}
