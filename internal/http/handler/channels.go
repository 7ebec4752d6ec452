package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/credstore"
	"github.com/edirooss/livepush/internal/domain/credential"
	"github.com/edirooss/livepush/internal/http/dto"
	"github.com/edirooss/livepush/internal/provisioner"
)

// Credentials is the part of the credential store the channel API uses.
type Credentials interface {
	ListActive(ctx context.Context) ([]*credential.Credential, error)
	Default(ctx context.Context) (*credential.Credential, error)
	Deactivate(ctx context.Context, channelID string) error
}

// Platform reaches the remote channel on behalf of a stored credential.
type Platform interface {
	IngestKey(ctx context.Context, channelID, title string) (*provisioner.Stream, error)
	ChannelInfo(ctx context.Context, channelID string) (*credstore.Identity, error)
}

// ChannelsHandler provides HTTP handlers for channels and their credentials.
//
// Supported operations:
//   - GET    /channels                   → Configured and connected channels
//   - GET    /channels/default           → Most recently used credential (redacted)
//   - DELETE /channels/{id}/credential   → Disconnect (soft delete)
//   - POST   /channels/{id}/ingest-key   → Create a standalone ingest key
//   - GET    /channels/{id}/info         → Identify the channel remotely
type ChannelsHandler struct {
	log      *zap.Logger
	channels *config.Channels
	creds    Credentials
	platform Platform
}

func NewChannelsHandler(log *zap.Logger, channels *config.Channels, creds Credentials, platform Platform) *ChannelsHandler {
	return &ChannelsHandler{log: log.Named("channels"), channels: channels, creds: creds, platform: platform}
}

// GetChannelList handles GET /channels.
//
// Status Codes:
//   - 200 OK → JSON array of channels
//   - 500 Internal Server Error
func (h *ChannelsHandler) GetChannelList(c *gin.Context) {
	active, err := h.creds.ListActive(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ChannelViews(h.channels, active))
}

// GetDefaultChannel handles GET /channels/default.
//
// Status Codes:
//   - 200 OK → JSON of the credential without tokens or client secret
//   - 404 Not Found → No active credential
func (h *ChannelsHandler) GetDefaultChannel(c *gin.Context) {
	cred, err := h.creds.Default(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cred.Redacted())
}

// DisconnectChannel handles DELETE /channels/{id}/credential.
//
// Behavior:
//   - The credential is deactivated, never removed.
//
// Status Codes:
//   - 204 No Content
//   - 404 Not Found
//   - 500 Internal Server Error
func (h *ChannelsHandler) DisconnectChannel(c *gin.Context) {
	id := c.Param("id")
	if err := h.creds.Deactivate(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	h.log.Info("channel disconnected", zap.String("channel_id", id))
	c.Status(http.StatusNoContent)
}

// CreateIngestKey handles POST /channels/{id}/ingest-key.
//
// Behavior:
//   - Body is optional: {"title": "..."}.
//
// Status Codes:
//   - 201 Created → {"stream_id", "ingest_key", "ingest_url"}
//   - 400 Bad Request
//   - 401 Unauthorized
//   - 502 Bad Gateway
func (h *ChannelsHandler) CreateIngestKey(c *gin.Context) {
	var body dto.IngestKeyCreate
	if err := bind(c.Request, &body); err != nil && !errors.Is(err, errEmptyBody) {
		badRequest(c, err)
		return
	}
	if body.Title == "" {
		body.Title = "livepush"
	}

	st, err := h.platform.IngestKey(c.Request.Context(), c.Param("id"), body.Title)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"stream_id": st.ID, "ingest_key": st.IngestKey, "ingest_url": st.IngestURL})
}

// GetChannelInfo handles GET /channels/{id}/info.
//
// Status Codes:
//   - 200 OK → {"channel_id", "name"}
//   - 401 Unauthorized
//   - 404 Not Found
//   - 500 Internal Server Error
func (h *ChannelsHandler) GetChannelInfo(c *gin.Context) {
	id, err := h.platform.ChannelInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": id.ChannelID, "name": id.Name})
}
