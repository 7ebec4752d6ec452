package credstore

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/domain/credential"
)

var errNoClient = errors.New("oauth client not configured")

// AuthCodeURL returns the consent page URL. Offline access with a forced
// consent prompt makes the platform issue a refresh token every time.
func (s *Store) AuthCodeURL(state string) (string, error) {
	oc := s.opts.Client
	if oc == nil {
		return "", errNoClient
	}
	cfg := s.oauthConfig(oc.ClientID, oc.ClientSecret, oc.TokenEndpoint)
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Connect exchanges an authorization code, identifies the channel, and stores
// the resulting credential as active.
func (s *Store) Connect(ctx context.Context, code string) (*credential.Credential, error) {
	oc := s.opts.Client
	if oc == nil {
		return nil, &apperr.CredentialError{Op: "exchange", Err: errNoClient}
	}
	if s.opts.Identify == nil {
		return nil, &apperr.CredentialError{Op: "exchange", Err: errors.New("channel identification not configured")}
	}

	cfg := s.oauthConfig(oc.ClientID, oc.ClientSecret, oc.TokenEndpoint)
	tok, err := cfg.Exchange(s.httpContext(ctx), code)
	if err != nil {
		return nil, &apperr.CredentialError{Op: "exchange", Err: err}
	}

	id, err := s.opts.Identify(ctx, tok.AccessToken)
	if err != nil {
		return nil, &apperr.CredentialError{Op: "exchange", Err: err}
	}

	c := &credential.Credential{
		ChannelID:     id.ChannelID,
		ChannelName:   id.Name,
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		TokenEndpoint: cfg.Endpoint.TokenURL,
		ClientID:      oc.ClientID,
		ClientSecret:  oc.ClientSecret,
		ExpiresAt:     tok.Expiry,
		LastUsedAt:    s.now(),
		Active:        true,
	}
	if err := s.Save(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("channel connected", zap.String("channel_id", c.ChannelID), zap.String("channel_name", c.ChannelName))
	return c, nil
}

// Import stores credentials carried in a channel file. Channels without an
// auth block are skipped; so are channels whose id cannot be determined.
// Existing records are left untouched. It returns the number imported.
func (s *Store) Import(ctx context.Context, cc *config.Channels) int {
	if cc == nil {
		return 0
	}
	n := 0
	for _, ch := range cc.Channels {
		if ch.Auth == nil {
			continue
		}
		log := s.log.With(zap.String("channel_name", ch.Name))

		id := ch.ChannelID
		if id == "" && s.opts.Identify != nil && ch.Auth.Access() != "" {
			if ident, err := s.opts.Identify(ctx, ch.Auth.Access()); err == nil {
				id = ident.ChannelID
			} else {
				log.Warn("cannot identify channel", zap.Error(err))
			}
		}
		if id == "" {
			log.Warn("skipping credential import: channel id unknown")
			continue
		}
		if _, err := s.repo.Get(ctx, id); err == nil {
			continue
		}

		c := &credential.Credential{
			ChannelID:     id,
			ChannelName:   ch.Name,
			AccessToken:   ch.Auth.Access(),
			RefreshToken:  ch.Auth.RefreshToken,
			TokenEndpoint: ch.Auth.TokenURI,
			ClientID:      ch.Auth.ClientID,
			ClientSecret:  ch.Auth.ClientSecret,
			Active:        true,
		}
		if err := s.Save(ctx, c); err != nil {
			log.Error("credential import failed", zap.Error(err))
			continue
		}
		n++
	}
	return n
}
