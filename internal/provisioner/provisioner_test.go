package provisioner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/credstore"
	"github.com/edirooss/livepush/internal/domain/credential"
	"github.com/edirooss/livepush/internal/domain/session"
	"github.com/edirooss/livepush/internal/repo"
)

type staticCreds struct{ calls int }

func (c *staticCreds) Use(ctx context.Context, _ string, fn func(context.Context, string) error) error {
	c.calls++
	return fn(ctx, "tok")
}

type fakePlatform struct {
	failStream, failBroadcast, failBind, failUpdate error

	streams, broadcasts, binds, updates int
	lastBroadcast                       *Broadcast
	deadlines                           []bool
}

func (f *fakePlatform) record(ctx context.Context) {
	_, ok := ctx.Deadline()
	f.deadlines = append(f.deadlines, ok)
}

func (f *fakePlatform) CreateStream(ctx context.Context, _, _, _ string) (*Stream, error) {
	f.record(ctx)
	f.streams++
	if f.failStream != nil {
		return nil, f.failStream
	}
	return &Stream{ID: "st1", IngestKey: "key1", IngestURL: "rtmp://ingest/live2"}, nil
}

func (f *fakePlatform) CreateBroadcast(ctx context.Context, _ string, b *Broadcast) (string, error) {
	f.record(ctx)
	f.broadcasts++
	f.lastBroadcast = b
	if f.failBroadcast != nil {
		return "", f.failBroadcast
	}
	return "bc1", nil
}

func (f *fakePlatform) UpdateVideo(ctx context.Context, _, _ string, _ *Broadcast) error {
	f.record(ctx)
	f.updates++
	return f.failUpdate
}

func (f *fakePlatform) Bind(ctx context.Context, _, _, _ string) error {
	f.record(ctx)
	f.binds++
	return f.failBind
}

func (f *fakePlatform) Identify(context.Context, string) (*credstore.Identity, error) {
	return &credstore.Identity{ChannelID: "UC1", Name: "Main"}, nil
}

func newTestProvisioner(pf Platform) *Provisioner {
	p := New(zap.NewNop(), &staticCreds{}, pf, Options{RequestTimeout: time.Second})
	p.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestProvisionHappyPath(t *testing.T) {
	pf := &fakePlatform{}
	p := newTestProvisioner(pf)

	res, err := p.Provision(context.Background(), "UC1", Request{Title: "Test Stream", Tags: []string{"a"}})
	require.NoError(t, err)

	assert.Equal(t, "key1", res.IngestKey)
	assert.Equal(t, "rtmp://ingest/live2", res.IngestURL)
	assert.Equal(t, "bc1", res.BroadcastID)
	assert.Equal(t, "https://www.youtube.com/watch?v=bc1", res.WatchURL)
	assert.Equal(t, 1, pf.updates)
	assert.Equal(t, "public", pf.lastBroadcast.Privacy)

	// every remote call runs under a deadline
	for _, ok := range pf.deadlines {
		assert.True(t, ok)
	}
}

func TestProvisionNormalizesSchedule(t *testing.T) {
	pf := &fakePlatform{}
	p := newTestProvisioner(pf)
	past := p.now().Add(-time.Hour)

	res, err := p.Provision(context.Background(), "UC1", Request{Title: "x", ScheduledAt: &past})
	require.NoError(t, err)
	assert.Equal(t, p.now().Add(time.Minute), res.ScheduledAt)
	assert.Equal(t, p.now().Add(time.Minute), pf.lastBroadcast.ScheduledAt)
	assert.Zero(t, pf.updates, "no metadata update without category or tags")
}

func TestProvisionStreamFailureIsNotPartial(t *testing.T) {
	pf := &fakePlatform{failStream: errors.New("quota")}
	_, err := newTestProvisioner(pf).Provision(context.Background(), "UC1", Request{Title: "x"})

	var perr *apperr.ProvisioningError
	require.True(t, errors.As(err, &perr))
	assert.False(t, perr.Partial)
	assert.Equal(t, "stream", perr.Step)
	assert.Zero(t, pf.broadcasts)
}

func TestProvisionBindFailureIsPartial(t *testing.T) {
	pf := &fakePlatform{failBind: errors.New("bind rejected")}
	_, err := newTestProvisioner(pf).Provision(context.Background(), "UC1", Request{Title: "x"})

	var perr *apperr.ProvisioningError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Partial)
	assert.Equal(t, "bind", perr.Step)
	assert.Equal(t, "st1", perr.StreamID)
	assert.Equal(t, "key1", perr.IngestKey)
	assert.Equal(t, "bc1", perr.BroadcastID)
}

func TestProvisionBroadcastFailureIsPartial(t *testing.T) {
	pf := &fakePlatform{failBroadcast: errors.New("nope")}
	_, err := newTestProvisioner(pf).Provision(context.Background(), "UC1", Request{Title: "x"})

	var perr *apperr.ProvisioningError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Partial)
	assert.Equal(t, "broadcast", perr.Step)
	assert.Empty(t, perr.BroadcastID)
	assert.Zero(t, pf.binds)
}

func TestMetadataFailureIsNotFatal(t *testing.T) {
	pf := &fakePlatform{failUpdate: errors.New("bad category")}
	res, err := newTestProvisioner(pf).Provision(context.Background(), "UC1", Request{Title: "x", Category: "999"})
	require.NoError(t, err)
	assert.Equal(t, "bc1", res.BroadcastID)
}

func TestResumeReusesIngestAndBroadcast(t *testing.T) {
	pf := &fakePlatform{}
	p := newTestProvisioner(pf)

	res, err := p.Resume(context.Background(), "UC1", session.Partial{StreamID: "st0", IngestKey: "k0", BroadcastID: "bc0"}, Request{Title: "x"})
	require.NoError(t, err)
	assert.Zero(t, pf.streams)
	assert.Zero(t, pf.broadcasts)
	assert.Equal(t, 1, pf.binds)
	assert.Equal(t, "bc0", res.BroadcastID)
	assert.Equal(t, "k0", res.IngestKey)

	pf2 := &fakePlatform{}
	res, err = newTestProvisioner(pf2).Resume(context.Background(), "UC1", session.Partial{StreamID: "st0", IngestKey: "k0"}, Request{Title: "x"})
	require.NoError(t, err)
	assert.Zero(t, pf2.streams)
	assert.Equal(t, 1, pf2.broadcasts)
	assert.Equal(t, "bc1", res.BroadcastID)
}

func TestIngestKeyAndChannelInfo(t *testing.T) {
	p := newTestProvisioner(&fakePlatform{})

	st, err := p.IngestKey(context.Background(), "UC1", "Temp")
	require.NoError(t, err)
	assert.Equal(t, "key1", st.IngestKey)

	id, err := p.ChannelInfo(context.Background(), "UC1")
	require.NoError(t, err)
	assert.Equal(t, "Main", id.Name)
}

func TestProvisionRefreshHonorsRequestTimeout(t *testing.T) {
	// Token endpoint that never answers within the test.
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(tokens.Close)

	mr := miniredis.RunT(t)
	client := repo.NewRedisClient(zap.NewNop(), repo.Options(mr.Addr(), 0))
	t.Cleanup(func() { client.Close() })

	timeout := 300 * time.Millisecond
	creds := credstore.New(zap.NewNop(), repo.NewRepository(zap.NewNop(), client).Credentials, credstore.Options{
		HTTPClient:     &http.Client{Timeout: timeout},
		RefreshTimeout: timeout,
	})
	require.NoError(t, creds.Save(context.Background(), &credential.Credential{
		ChannelID: "UC1", AccessToken: "stale", RefreshToken: "r", TokenEndpoint: tokens.URL, Active: true,
	}))

	pf := &fakePlatform{failStream: fmt.Errorf("liveStreams.insert: %w", apperr.ErrUnauthorized)}
	p := New(zap.NewNop(), creds, pf, Options{RequestTimeout: timeout})

	start := time.Now()
	_, err := p.Provision(context.Background(), "UC1", Request{Title: "t"})
	elapsed := time.Since(start)

	var cerr *apperr.CredentialError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, 1, pf.streams, "no second attempt without a fresh token")
}
