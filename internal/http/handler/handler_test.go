package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/domain/credential"
	"github.com/edirooss/livepush/internal/domain/session"
	"github.com/edirooss/livepush/internal/encoder"
	"github.com/edirooss/livepush/internal/logsink"
	"github.com/edirooss/livepush/internal/provisioner"
	"github.com/edirooss/livepush/internal/repo"
	"github.com/edirooss/livepush/internal/scheduler"
)

func init() { gin.SetMode(gin.TestMode) }

type stubProvisioner struct{}

func (stubProvisioner) Provision(context.Context, string, provisioner.Request) (*provisioner.Result, error) {
	return &provisioner.Result{StreamID: "st1", IngestKey: "prov-key", BroadcastID: "bc1", WatchURL: provisioner.WatchURLPrefix + "bc1"}, nil
}

func (stubProvisioner) Resume(context.Context, string, session.Partial, provisioner.Request) (*provisioner.Result, error) {
	return nil, errors.New("unexpected resume")
}

type stubCreds struct{ active []*credential.Credential }

func (s stubCreds) ListActive(context.Context) ([]*credential.Credential, error) {
	return s.active, nil
}

type testAPI struct {
	router *gin.Engine
	sink   *logsink.Sink
}

// newTestAPI wires a real scheduler over miniredis. The encoder binary does
// not exist, so every launch fails with binaryMissing.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := repo.NewRedisClient(zap.NewNop(), repo.Options(mr.Addr(), 0))
	t.Cleanup(func() { client.Close() })
	rp := repo.NewRepository(zap.NewNop(), client)
	sink := logsink.New(ctx, zap.NewNop(), rp.Logs, logsink.Options{})
	enc := encoder.New(zap.NewNop(), sink, encoder.Options{Binary: filepath.Join(t.TempDir(), "no-such-ffmpeg")})

	creds := stubCreds{active: []*credential.Credential{{ChannelID: "UC1", ChannelName: "Main", Active: true}}}
	sc, err := scheduler.New(ctx, zap.NewNop(), scheduler.Deps{
		Repo:        rp.Sessions,
		Events:      sink,
		Encoder:     enc,
		Provisioner: stubProvisioner{},
		Credentials: creds,
	}, scheduler.Options{})
	require.NoError(t, err)

	h := NewSessionsHandler(zap.NewNop(), sc, sink, config.DefaultSetting{Privacy: "unlisted"})
	lh := NewLogsHandler(zap.NewNop(), sink)

	r := gin.New()
	api := r.Group("/api")
	api.GET("/sessions", h.ListSessions)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id", h.GetSession)
	api.POST("/sessions/:id/schedule", h.ScheduleSession)
	api.POST("/sessions/:id/start", h.StartSession)
	api.POST("/sessions/:id/stop", h.StopSession)
	api.POST("/sessions/:id/cancel", h.CancelSession)
	api.POST("/sessions/:id/provision", h.ProvisionSession)
	api.GET("/sessions/:id/logs", h.GetSessionLogs)
	api.GET("/logs", lh.QueryLogs)
	api.GET("/logs/tail", lh.TailLogs)

	return &testAPI{router: r, sink: sink}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validation("video_ref", "required"), http.StatusUnprocessableEntity},
		{fmt.Errorf("session %q: %w", "x", apperr.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", apperr.ErrLocked), http.StatusConflict},
		{fmt.Errorf("wrap: %w", scheduler.ErrExists), http.StatusConflict},
		{&apperr.CredentialError{Op: "lookup", Err: apperr.ErrNotFound}, http.StatusUnauthorized},
		{&apperr.ProvisioningError{Step: "bind", Err: &apperr.CredentialError{Op: "use", Err: apperr.ErrUnauthorized}}, http.StatusUnauthorized},
		{&apperr.ProvisioningError{Step: "broadcast", Err: errors.New("quota")}, http.StatusBadGateway},
		{&apperr.EncoderLaunchError{Reason: apperr.AlreadyRunning}, http.StatusConflict},
		{&apperr.EncoderLaunchError{Reason: apperr.BinaryMissing}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	assert.NoError(t, decodeJSON(strings.NewReader(`{"a":1}`), &v))
	assert.ErrorIs(t, decodeJSON(strings.NewReader(``), &v), errEmptyBody)
	assert.ErrorIs(t, decodeJSON(strings.NewReader(`{"a":1}{"a":2}`), &v), errTrailingJSON)
	assert.Error(t, decodeJSON(strings.NewReader(`{"b":1}`), &v))
}
