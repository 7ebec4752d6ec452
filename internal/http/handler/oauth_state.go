package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	cookieName      = "sid"
	sessionKeyState = "oauth_state"
)

// OAuthStates keeps the anti-forgery state of an OAuth round trip in a
// cookie session between /oauth/begin and /oauth/callback.
type OAuthStates struct {
	store         sessions.Store
	cookieOptions sessions.Options
}

// NewRedisOAuthStates stores session data in redis; the cookie only carries
// the signed session id. isDev drops the Secure cookie flag.
func NewRedisOAuthStates(isDev bool, redisAddr string, secret []byte) (*OAuthStates, error) {
	store, err := redis.NewStoreWithDB(10, "tcp", redisAddr, "", "", "0", secret)
	if err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}
	return NewOAuthStates(isDev, store), nil
}

func NewOAuthStates(isDev bool, store sessions.Store) *OAuthStates {
	opts := sessions.Options{
		Path:     "/api",
		MaxAge:   15 * 60,
		Secure:   !isDev,
		HttpOnly: true,
		// Lax: the callback is a top-level redirect from the consent page.
		SameSite: http.SameSiteLaxMode,
	}
	store.Options(opts)
	return &OAuthStates{store: store, cookieOptions: opts}
}

// Middleware attaches session handling.
func (s *OAuthStates) Middleware() gin.HandlerFunc {
	return sessions.Sessions(cookieName, s.store)
}

// issue stores a fresh state value and returns it.
func (s *OAuthStates) issue(c *gin.Context) (string, error) {
	state := uuid.NewString()
	sess := sessions.Default(c)
	sess.Set(sessionKeyState, state)
	if err := sess.Save(); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return state, nil
}

// consume reports whether got matches the stored state. The stored value is
// cleared either way so it cannot be replayed.
func (s *OAuthStates) consume(c *gin.Context, got string) (bool, error) {
	sess := sessions.Default(c)
	want, _ := sess.Get(sessionKeyState).(string)

	sess.Clear()
	opts := s.cookieOptions
	opts.MaxAge = -1
	sess.Options(opts)
	if err := sess.Save(); err != nil {
		return false, fmt.Errorf("save session: %w", err)
	}
	return want != "" && got == want, nil
}
