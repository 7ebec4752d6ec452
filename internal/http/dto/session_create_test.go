package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/domain/session"
)

func TestSessionCreateToRequest(t *testing.T) {
	var req SessionCreate
	require.NoError(t, json.Unmarshal([]byte(`{
		"session_id": "s1",
		"kind": "scheduled",
		"scheduled_at": "2026-01-02T15:04:05Z",
		"video_ref": "/videos/a.mp4",
		"tags": ["a", "b"],
		"channel_name": "Main",
		"ingest_key": null
	}`), &req))

	out, err := req.ToRequest(config.DefaultSetting{Privacy: "unlisted"})
	require.NoError(t, err)
	assert.Equal(t, "s1", out.SessionID)
	assert.Equal(t, session.KindScheduled, out.Kind)
	require.NotNil(t, out.ScheduledAt)
	assert.Equal(t, 2026, out.ScheduledAt.Year())
	assert.Equal(t, session.PrivacyUnlisted, out.Privacy, "privacy falls back to default_settings")
	assert.Equal(t, []string{"a", "b"}, out.Tags)
	assert.Empty(t, out.IngestKey)
}

func TestSessionCreateRejectsNulls(t *testing.T) {
	var req SessionCreate
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"draft","title":null}`), &req))
	_, err := req.ToRequest(config.DefaultSetting{})
	assert.EqualError(t, err, "title: must not be null")

	req = SessionCreate{}
	_, err = req.ToRequest(config.DefaultSetting{})
	assert.EqualError(t, err, "kind: required")
}

func TestW(t *testing.T) {
	var v struct {
		A W[int] `json:"a"`
		B W[int] `json:"b"`
		C W[int] `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":1,"b":null}`), &v))

	assert.Equal(t, 1, v.A.Or(9))
	assert.True(t, v.B.Set && v.B.Null)
	assert.Equal(t, 9, v.B.Or(9))
	assert.False(t, v.C.Set)
	assert.Nil(t, v.C.Ptr())
	assert.Equal(t, 1, *v.A.Ptr())
}
