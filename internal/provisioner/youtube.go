package provisioner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/credstore"
)

// defaultCategory is "People & Blogs"; the API requires a category whenever
// a video snippet is updated.
const defaultCategory = "22"

// YouTube implements Platform over the YouTube Data API v3.
type YouTube struct {
	endpoint   string
	httpClient *http.Client
}

type YouTubeOption func(*YouTube)

// WithEndpoint overrides the API base URL.
func WithEndpoint(url string) YouTubeOption {
	return func(y *YouTube) { y.endpoint = url }
}

// WithHTTPClient sets the base transport used under the bearer token.
func WithHTTPClient(c *http.Client) YouTubeOption {
	return func(y *YouTube) { y.httpClient = c }
}

func NewYouTube(opts ...YouTubeOption) *YouTube {
	y := &YouTube{}
	for _, o := range opts {
		o(y)
	}
	return y
}

// service builds a client authorized with a fixed access token. Refresh is
// the credential store's job, so the token source never refreshes.
func (y *YouTube) service(ctx context.Context, token string) (*youtube.Service, error) {
	if y.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, y.httpClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if y.endpoint != "" {
		opts = append(opts, option.WithEndpoint(y.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return svc, nil
}

func (y *YouTube) CreateStream(ctx context.Context, token, title, description string) (*Stream, error) {
	svc, err := y.service(ctx, token)
	if err != nil {
		return nil, err
	}
	resp, err := svc.LiveStreams.Insert([]string{"snippet", "cdn"}, &youtube.LiveStream{
		Snippet: &youtube.LiveStreamSnippet{
			Title:       title + " - Stream",
			Description: description,
		},
		Cdn: &youtube.CdnSettings{
			IngestionType: "rtmp",
			Resolution:    "variable",
			FrameRate:     "variable",
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify("insert stream", err)
	}
	if resp.Cdn == nil || resp.Cdn.IngestionInfo == nil {
		return nil, fmt.Errorf("insert stream: response for %q has no ingestion info", resp.Id)
	}
	return &Stream{
		ID:        resp.Id,
		IngestKey: resp.Cdn.IngestionInfo.StreamName,
		IngestURL: resp.Cdn.IngestionInfo.IngestionAddress,
	}, nil
}

func (y *YouTube) CreateBroadcast(ctx context.Context, token string, b *Broadcast) (string, error) {
	svc, err := y.service(ctx, token)
	if err != nil {
		return "", err
	}
	resp, err := svc.LiveBroadcasts.Insert([]string{"snippet", "status"}, &youtube.LiveBroadcast{
		Snippet: &youtube.LiveBroadcastSnippet{
			Title:              b.Title,
			Description:        b.Description,
			ScheduledStartTime: b.ScheduledAt.UTC().Format(time.RFC3339),
		},
		Status: &youtube.LiveBroadcastStatus{
			PrivacyStatus:           b.Privacy,
			SelfDeclaredMadeForKids: b.MadeForKids,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", classify("insert broadcast", err)
	}
	return resp.Id, nil
}

// UpdateVideo sets category, tags and description on the broadcast's video.
func (y *YouTube) UpdateVideo(ctx context.Context, token, broadcastID string, b *Broadcast) error {
	svc, err := y.service(ctx, token)
	if err != nil {
		return err
	}
	category := b.Category
	if category == "" {
		category = defaultCategory
	}
	_, err = svc.Videos.Update([]string{"snippet"}, &youtube.Video{
		Id: broadcastID,
		Snippet: &youtube.VideoSnippet{
			Title:       b.Title,
			Description: b.Description,
			CategoryId:  category,
			Tags:        b.Tags,
		},
	}).Context(ctx).Do()
	if err != nil {
		return classify("update video", err)
	}
	return nil
}

func (y *YouTube) Bind(ctx context.Context, token, broadcastID, streamID string) error {
	svc, err := y.service(ctx, token)
	if err != nil {
		return err
	}
	_, err = svc.LiveBroadcasts.Bind(broadcastID, []string{"id", "contentDetails"}).StreamId(streamID).Context(ctx).Do()
	if err != nil {
		return classify("bind", err)
	}
	return nil
}

// Identify returns the channel owning token.
func (y *YouTube) Identify(ctx context.Context, token string) (*credstore.Identity, error) {
	svc, err := y.service(ctx, token)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, classify("list channels", err)
	}
	if len(resp.Items) == 0 {
		return nil, errors.New("list channels: token has no channel")
	}
	ch := resp.Items[0]
	id := &credstore.Identity{ChannelID: ch.Id}
	if ch.Snippet != nil {
		id.Name = ch.Snippet.Title
	}
	return id, nil
}

// classify marks authentication rejections so the credential store can
// refresh and retry.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrUnauthorized, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
