// Package credstore keeps channel OAuth credentials valid across remote
// platform calls.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/domain/credential"
)

// Scope grants management of live broadcasts.
const Scope = "https://www.googleapis.com/auth/youtube.force-ssl"

// Repository is the durable credential collection.
type Repository interface {
	Upsert(ctx context.Context, c *credential.Credential) error
	Get(ctx context.Context, channelID string) (*credential.Credential, error)
	GetAll(ctx context.Context) ([]*credential.Credential, error)
}

// Identity names the remote channel an access token belongs to.
type Identity struct {
	ChannelID string
	Name      string
}

// IdentifyFunc resolves the channel behind an access token.
type IdentifyFunc func(ctx context.Context, accessToken string) (*Identity, error)

type Options struct {
	// Client enables the authorization-code flow. Optional.
	Client *config.OAuthClient
	// Identify is required by Connect and by imports lacking a channel id.
	Identify IdentifyFunc
	// HTTPClient is used for token endpoint calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// RefreshTimeout bounds one token endpoint round trip. Defaults to
	// DefaultRefreshTimeout.
	RefreshTimeout time.Duration
}

const DefaultRefreshTimeout = 30 * time.Second

type Store struct {
	log  *zap.Logger
	repo Repository
	opts Options
	now  func() time.Time

	mu sync.Mutex // serializes read-modify-write of records
	sf singleflight.Group
}

func New(log *zap.Logger, repo Repository, opts Options) *Store {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	return &Store{
		log:  log.Named("credstore"),
		repo: repo,
		opts: opts,
		now:  time.Now,
	}
}

// Save upserts c keyed by channel id. The original CreatedAt is kept for
// existing records; new records get CreatedAt and LastUsedAt set to now.
func (s *Store) Save(ctx context.Context, c *credential.Credential) error {
	if c == nil || c.ChannelID == "" {
		return apperr.Validation("channel_id", "required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *c
	existing, err := s.repo.Get(ctx, c.ChannelID)
	switch {
	case err == nil:
		rec.CreatedAt = existing.CreatedAt
	case errors.Is(err, apperr.ErrNotFound):
		now := s.now()
		rec.CreatedAt = now
		if rec.LastUsedAt.IsZero() {
			rec.LastUsedAt = now
		}
	default:
		return apperr.Persistence("credentials", "get", err)
	}

	return apperr.Persistence("credentials", "upsert", s.repo.Upsert(ctx, &rec))
}

func (s *Store) Get(ctx context.Context, channelID string) (*credential.Credential, error) {
	c, err := s.repo.Get(ctx, channelID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Persistence("credentials", "get", err)
	}
	return c, nil
}

// ListActive returns active credentials, most recently used first.
func (s *Store) ListActive(ctx context.Context) ([]*credential.Credential, error) {
	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, apperr.Persistence("credentials", "list", err)
	}
	out := slices.DeleteFunc(all, func(c *credential.Credential) bool { return !c.Active })
	slices.SortStableFunc(out, func(a, b *credential.Credential) int {
		return b.LastUsedAt.Compare(a.LastUsedAt)
	})
	return out, nil
}

// Default returns the most recently used active credential.
func (s *Store) Default(ctx context.Context) (*credential.Credential, error) {
	list, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("active credential %w", apperr.ErrNotFound)
	}
	return list[0], nil
}

// Touch sets LastUsedAt to now.
func (s *Store) Touch(ctx context.Context, channelID string) error {
	return s.update(ctx, channelID, func(c *credential.Credential) { c.LastUsedAt = s.now() })
}

// Deactivate soft-deletes the credential. The record is kept.
func (s *Store) Deactivate(ctx context.Context, channelID string) error {
	return s.update(ctx, channelID, func(c *credential.Credential) { c.Active = false })
}

func (s *Store) update(ctx context.Context, channelID string, fn func(*credential.Credential)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.repo.Get(ctx, channelID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.Persistence("credentials", "get", err)
	}
	fn(c)
	return apperr.Persistence("credentials", "upsert", s.repo.Upsert(ctx, c))
}

// Refresh runs the refresh-token grant against the credential's token
// endpoint and returns the updated credential. It does not persist; callers
// Save the result. Concurrent refreshes of one channel share a single call.
func (s *Store) Refresh(ctx context.Context, c *credential.Credential) (*credential.Credential, error) {
	if c.RefreshToken == "" {
		return nil, &apperr.CredentialError{ChannelID: c.ChannelID, Op: "refresh", Err: errors.New("no refresh token")}
	}

	v, err, shared := s.sf.Do(c.ChannelID, func() (any, error) {
		// Callers that join this flight wait on the same deadline.
		ctx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
		defer cancel()

		cfg := s.oauthConfig(c.ClientID, c.ClientSecret, c.TokenEndpoint)
		// An empty access token is never valid, so the source always refreshes.
		src := cfg.TokenSource(s.httpContext(ctx), &oauth2.Token{RefreshToken: c.RefreshToken})
		tok, err := src.Token()
		if err != nil {
			return nil, err
		}
		return c.WithToken(tok), nil
	})
	if err != nil {
		s.log.Warn("token refresh failed", zap.String("channel_id", c.ChannelID), zap.Error(err))
		return nil, &apperr.CredentialError{ChannelID: c.ChannelID, Op: "refresh", Err: err}
	}

	out := *v.(*credential.Credential)
	s.log.Debug("token refreshed", zap.String("channel_id", c.ChannelID), zap.Bool("shared", shared))
	return &out, nil
}

// Use calls fn with the channel's access token. If fn reports
// apperr.ErrUnauthorized the token is refreshed, persisted, and fn is called
// exactly once more. A second authorization failure is a CredentialError.
func (s *Store) Use(ctx context.Context, channelID string, fn func(ctx context.Context, accessToken string) error) error {
	c, err := s.Get(ctx, channelID)
	if err != nil {
		return &apperr.CredentialError{ChannelID: channelID, Op: "lookup", Err: err}
	}
	if !c.Active {
		return &apperr.CredentialError{ChannelID: channelID, Op: "lookup", Err: errors.New("credential is inactive")}
	}

	err = fn(ctx, c.AccessToken)
	if errors.Is(err, apperr.ErrUnauthorized) {
		refreshed, rerr := s.Refresh(ctx, c)
		if rerr != nil {
			return rerr
		}
		if serr := s.Save(ctx, refreshed); serr != nil {
			s.log.Error("persisting refreshed token failed", zap.String("channel_id", channelID), zap.Error(serr))
		}

		err = fn(ctx, refreshed.AccessToken)
		if errors.Is(err, apperr.ErrUnauthorized) {
			return &apperr.CredentialError{ChannelID: channelID, Op: "use", Err: err}
		}
	}
	if err != nil {
		return err
	}

	if terr := s.Touch(ctx, channelID); terr != nil {
		s.log.Warn("touch failed", zap.String("channel_id", channelID), zap.Error(terr))
	}
	return nil
}

func (s *Store) oauthConfig(clientID, clientSecret, tokenURL string) *oauth2.Config {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{Scope},
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if oc := s.opts.Client; oc != nil {
		cfg.Endpoint.AuthURL = oc.AuthEndpoint
		cfg.RedirectURL = oc.RedirectURI
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint.TokenURL = config.GoogleTokenURI
	}
	return cfg
}

func (s *Store) httpContext(ctx context.Context) context.Context {
	if s.opts.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.opts.HTTPClient)
}
