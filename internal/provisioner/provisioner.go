// Package provisioner creates the remote ingest and broadcast resources a
// session streams into.
package provisioner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/credstore"
	"github.com/edirooss/livepush/internal/domain/session"
)

// WatchURLPrefix is joined with a broadcast id to form the public viewer URL.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

// Stream is a remote ingest resource.
type Stream struct {
	ID        string
	IngestKey string
	IngestURL string
}

// Broadcast is the metadata of a remote broadcast.
type Broadcast struct {
	Title       string
	Description string
	ScheduledAt time.Time
	Privacy     string
	MadeForKids bool
	Tags        []string
	Category    string
}

// Platform is the remote API. Every call carries the access token to use;
// authentication rejections must wrap apperr.ErrUnauthorized.
type Platform interface {
	CreateStream(ctx context.Context, token, title, description string) (*Stream, error)
	CreateBroadcast(ctx context.Context, token string, b *Broadcast) (string, error)
	UpdateVideo(ctx context.Context, token, broadcastID string, b *Broadcast) error
	Bind(ctx context.Context, token, broadcastID, streamID string) error
	Identify(ctx context.Context, token string) (*credstore.Identity, error)
}

// Credentials runs fn with a valid access token, refreshing at most once.
type Credentials interface {
	Use(ctx context.Context, channelID string, fn func(ctx context.Context, accessToken string) error) error
}

type Request struct {
	Title       string
	Description string
	ScheduledAt *time.Time
	Tags        []string
	Category    string
	Privacy     session.Privacy
	MadeForKids bool
}

type Result struct {
	StreamID    string
	IngestKey   string
	IngestURL   string
	BroadcastID string
	WatchURL    string
	ScheduledAt time.Time
}

type Options struct {
	RequestTimeout time.Duration
}

type Provisioner struct {
	log      *zap.Logger
	creds    Credentials
	platform Platform
	timeout  time.Duration
	now      func() time.Time
}

func New(log *zap.Logger, creds Credentials, platform Platform, opts Options) *Provisioner {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Provisioner{
		log:      log.Named("provisioner"),
		creds:    creds,
		platform: platform,
		timeout:  opts.RequestTimeout,
		now:      time.Now,
	}
}

// Provision creates an ingest resource, a broadcast, and binds them.
// A failure after the ingest resource exists returns a partial
// ProvisioningError carrying the identifiers obtained so far.
func (p *Provisioner) Provision(ctx context.Context, channelID string, req Request) (*Result, error) {
	log := p.log.With(zap.String("channel_id", channelID), zap.String("title", req.Title))

	var st *Stream
	err := p.call(ctx, channelID, func(ctx context.Context, tok string) (err error) {
		st, err = p.platform.CreateStream(ctx, tok, req.Title, req.Description)
		return err
	})
	if err != nil {
		log.Warn("ingest creation failed", zap.Error(err))
		return nil, &apperr.ProvisioningError{Step: "stream", Err: err}
	}
	log.Info("ingest created", zap.String("stream_id", st.ID))

	return p.complete(ctx, channelID, req, st, "")
}

// Resume finishes a provisioning that failed after the ingest resource was
// created. The ingest resource is reused; the broadcast is created only if
// none was obtained before.
func (p *Provisioner) Resume(ctx context.Context, channelID string, partial session.Partial, req Request) (*Result, error) {
	if partial.StreamID == "" {
		return p.Provision(ctx, channelID, req)
	}
	st := &Stream{ID: partial.StreamID, IngestKey: partial.IngestKey, IngestURL: partial.IngestURL}
	p.log.Info("resuming provisioning",
		zap.String("channel_id", channelID),
		zap.String("stream_id", partial.StreamID),
		zap.String("broadcast_id", partial.BroadcastID))
	return p.complete(ctx, channelID, req, st, partial.BroadcastID)
}

func (p *Provisioner) complete(ctx context.Context, channelID string, req Request, st *Stream, broadcastID string) (*Result, error) {
	log := p.log.With(zap.String("channel_id", channelID), zap.String("stream_id", st.ID))

	b := &Broadcast{
		Title:       req.Title,
		Description: req.Description,
		ScheduledAt: session.NormalizeSchedule(req.ScheduledAt, p.now()),
		Privacy:     string(req.Privacy),
		MadeForKids: req.MadeForKids,
		Tags:        req.Tags,
		Category:    req.Category,
	}
	if b.Privacy == "" {
		b.Privacy = string(session.PrivacyPublic)
	}

	partial := func(step string, err error) error {
		return &apperr.ProvisioningError{
			Step:        step,
			Partial:     true,
			StreamID:    st.ID,
			IngestKey:   st.IngestKey,
			IngestURL:   st.IngestURL,
			BroadcastID: broadcastID,
			Err:         err,
		}
	}

	if broadcastID == "" {
		err := p.call(ctx, channelID, func(ctx context.Context, tok string) (err error) {
			broadcastID, err = p.platform.CreateBroadcast(ctx, tok, b)
			return err
		})
		if err != nil {
			log.Warn("broadcast creation failed", zap.Error(err))
			return nil, partial("broadcast", err)
		}
		log.Info("broadcast created", zap.String("broadcast_id", broadcastID))

		if b.Category != "" || len(b.Tags) > 0 {
			err := p.call(ctx, channelID, func(ctx context.Context, tok string) error {
				return p.platform.UpdateVideo(ctx, tok, broadcastID, b)
			})
			if err != nil {
				// The broadcast is usable without category and tags.
				log.Warn("broadcast metadata update failed", zap.String("broadcast_id", broadcastID), zap.Error(err))
			}
		}
	}

	err := p.call(ctx, channelID, func(ctx context.Context, tok string) error {
		return p.platform.Bind(ctx, tok, broadcastID, st.ID)
	})
	if err != nil {
		log.Warn("bind failed", zap.String("broadcast_id", broadcastID), zap.Error(err))
		return nil, partial("bind", err)
	}
	log.Info("broadcast bound", zap.String("broadcast_id", broadcastID))

	return &Result{
		StreamID:    st.ID,
		IngestKey:   st.IngestKey,
		IngestURL:   st.IngestURL,
		BroadcastID: broadcastID,
		WatchURL:    WatchURLPrefix + broadcastID,
		ScheduledAt: b.ScheduledAt,
	}, nil
}

// IngestKey creates a standalone ingest resource, for operators who manage
// the broadcast themselves.
func (p *Provisioner) IngestKey(ctx context.Context, channelID, title string) (*Stream, error) {
	var st *Stream
	err := p.call(ctx, channelID, func(ctx context.Context, tok string) (err error) {
		st, err = p.platform.CreateStream(ctx, tok, title, "")
		return err
	})
	if err != nil {
		return nil, &apperr.ProvisioningError{Step: "stream", Err: err}
	}
	return st, nil
}

// ChannelInfo identifies the channel a stored credential belongs to.
func (p *Provisioner) ChannelInfo(ctx context.Context, channelID string) (*credstore.Identity, error) {
	var id *credstore.Identity
	err := p.call(ctx, channelID, func(ctx context.Context, tok string) (err error) {
		id, err = p.platform.Identify(ctx, tok)
		return err
	})
	return id, err
}

// call bounds each remote request. Retries happen only inside Use, once, on
// an authorization failure.
func (p *Provisioner) call(ctx context.Context, channelID string, fn func(ctx context.Context, tok string) error) error {
	return p.creds.Use(ctx, channelID, func(ctx context.Context, tok string) error {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return fn(ctx, tok)
	})
}
