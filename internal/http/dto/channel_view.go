package dto

import (
	"time"

	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/domain/credential"
)

// ChannelView is one entry of GET /api/channels. It merges the channel file
// with the connected credentials and never carries secrets.
type ChannelView struct {
	Name         string     `json:"name"`
	ChannelID    string     `json:"channel_id,omitempty"`
	Description  string     `json:"description,omitempty"`
	HasStreamKey bool       `json:"has_stream_key"`
	Connected    bool       `json:"connected"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}

// ChannelViews lists configured channels in file order, then connected
// channels that are not in the file.
func ChannelViews(cc *config.Channels, active []*credential.Credential) []ChannelView {
	byID := make(map[string]*credential.Credential, len(active))
	byName := make(map[string]*credential.Credential, len(active))
	for _, c := range active {
		byID[c.ChannelID] = c
		byName[c.ChannelName] = c
	}

	out := []ChannelView{}
	seen := make(map[string]bool)
	if cc != nil {
		for _, ch := range cc.Channels {
			v := ChannelView{
				Name:         ch.Name,
				ChannelID:    ch.ChannelID,
				Description:  ch.Description,
				HasStreamKey: ch.StreamKey != "",
			}
			cred := byID[ch.ChannelID]
			if cred == nil || ch.ChannelID == "" {
				cred = byName[ch.Name]
			}
			if cred != nil {
				v.ChannelID = cred.ChannelID
				v.Connected = true
				v.LastUsedAt = lastUsed(cred)
				seen[cred.ChannelID] = true
			}
			out = append(out, v)
		}
	}
	for _, c := range active {
		if seen[c.ChannelID] {
			continue
		}
		out = append(out, ChannelView{
			Name:       c.ChannelName,
			ChannelID:  c.ChannelID,
			Connected:  true,
			LastUsedAt: lastUsed(c),
		})
	}
	return out
}

func lastUsed(c *credential.Credential) *time.Time {
	if c.LastUsedAt.IsZero() {
		return nil
	}
	t := c.LastUsedAt
	return &t
}

// IngestKeyCreate is the DTO for POST /api/channels/{id}/ingest-key.
type IngestKeyCreate struct {
	Title string `json:"title"` // optional; string (default: "livepush")
}
