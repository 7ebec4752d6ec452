package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/domain/credential"
)

// Connector runs the authorization-code flow of the credential store.
type Connector interface {
	AuthCodeURL(state string) (string, error)
	Connect(ctx context.Context, code string) (*credential.Credential, error)
}

// OAuthHandler connects a remote channel.
//
// Supported operations:
//   - GET /oauth/begin     → Redirect to the consent page
//   - GET /oauth/callback  → Exchange the code and store the credential
type OAuthHandler struct {
	log    *zap.Logger
	conn   Connector
	states *OAuthStates
}

func NewOAuthHandler(log *zap.Logger, conn Connector, states *OAuthStates) *OAuthHandler {
	return &OAuthHandler{log: log.Named("oauth"), conn: conn, states: states}
}

// Begin handles GET /oauth/begin.
//
// Status Codes:
//   - 302 Found → consent page
//   - 500 Internal Server Error → OAuth client not configured
func (h *OAuthHandler) Begin(c *gin.Context) {
	state, err := h.states.issue(c)
	if err != nil {
		fail(c, err)
		return
	}
	url, err := h.conn.AuthCodeURL(state)
	if err != nil {
		fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Callback handles GET /oauth/callback.
//
// Behavior:
//   - Requires the state issued by Begin, once.
//   - Stores the credential as active and returns it without secrets.
//
// Status Codes:
//   - 200 OK → JSON of the redacted credential
//   - 400 Bad Request → Missing code, state mismatch or consent denied
//   - 401 Unauthorized → Code exchange failed
func (h *OAuthHandler) Callback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		badRequest(c, errors.New("authorization denied: "+e))
		return
	}

	ok, err := h.states.consume(c, c.Query("state"))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		badRequest(c, errors.New("invalid oauth state"))
		return
	}

	code := c.Query("code")
	if code == "" {
		badRequest(c, errors.New("missing code"))
		return
	}

	cred, err := h.conn.Connect(c.Request.Context(), code)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cred.Redacted())
}
