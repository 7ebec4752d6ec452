package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/domain/credential"
)

type fakeConnector struct{ codes []string }

func (f *fakeConnector) AuthCodeURL(state string) (string, error) {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state), nil
}

func (f *fakeConnector) Connect(_ context.Context, code string) (*credential.Credential, error) {
	if code == "bad" {
		return nil, &apperr.CredentialError{Op: "exchange", Err: errors.New("invalid_grant")}
	}
	f.codes = append(f.codes, code)
	return &credential.Credential{ChannelID: "UC1", ChannelName: "Main", AccessToken: "at", RefreshToken: "rt", Active: true}, nil
}

func newOAuthRouter(conn Connector) *gin.Engine {
	states := NewOAuthStates(true, cookie.NewStore([]byte("test-secret")))
	h := NewOAuthHandler(zap.NewNop(), conn, states)

	r := gin.New()
	api := r.Group("/api", states.Middleware())
	api.GET("/oauth/begin", h.Begin)
	api.GET("/oauth/callback", h.Callback)
	return r
}

// begin runs /oauth/begin and returns the issued state and session cookie.
func begin(t *testing.T, r http.Handler) (string, *http.Cookie) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/oauth/begin", nil))
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return state, cookies[0]
}

func callback(r http.Handler, query string, c *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/oauth/callback?"+query, nil)
	if c != nil {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOAuthFlow(t *testing.T) {
	conn := &fakeConnector{}
	r := newOAuthRouter(conn)

	state, c := begin(t, r)
	w := callback(r, "state="+url.QueryEscape(state)+"&code=abc", c)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"abc"}, conn.codes)

	cred := decode[credential.Credential](t, w)
	assert.Equal(t, "UC1", cred.ChannelID)
	assert.Empty(t, cred.AccessToken)
	assert.Empty(t, cred.RefreshToken)
}

func TestOAuthCallbackRejects(t *testing.T) {
	conn := &fakeConnector{}
	r := newOAuthRouter(conn)

	state, c := begin(t, r)
	assert.Equal(t, http.StatusBadRequest, callback(r, "state=forged&code=abc", c).Code)

	state, c = begin(t, r)
	assert.Equal(t, http.StatusBadRequest, callback(r, "state="+url.QueryEscape(state)+"&code=abc", nil).Code, "no cookie")

	state, c = begin(t, r)
	assert.Equal(t, http.StatusBadRequest, callback(r, "state="+url.QueryEscape(state), c).Code, "no code")

	assert.Equal(t, http.StatusBadRequest, callback(r, "error=access_denied", nil).Code)

	state, c = begin(t, r)
	assert.Equal(t, http.StatusUnauthorized, callback(r, "state="+url.QueryEscape(state)+"&code=bad", c).Code)

	assert.Empty(t, conn.codes)
}
