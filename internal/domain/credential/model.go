package credential

import (
	"time"

	"golang.org/x/oauth2"
)

// Credential is the OAuth material of one remote channel.
// Records are soft-deleted (Active=false) and never removed.
type Credential struct {
	ChannelID     string    `json:"channel_id"`              // unique key
	ChannelName   string    `json:"channel_name"`            //
	AccessToken   string    `json:"access_token"`            //
	RefreshToken  string    `json:"refresh_token,omitempty"` // optional
	TokenEndpoint string    `json:"token_endpoint"`          //
	ClientID      string    `json:"client_id"`               //
	ClientSecret  string    `json:"client_secret"`           //
	ExpiresAt     time.Time `json:"expires_at"`              // zero when unknown
	CreatedAt     time.Time `json:"created_at"`              //
	LastUsedAt    time.Time `json:"last_used_at"`            //
	Active        bool      `json:"active"`                  //
}

// WithToken returns a copy of c carrying the access token (and rotated
// refresh token, if the endpoint issued one) from tok.
func (c Credential) WithToken(tok *oauth2.Token) *Credential {
	c.AccessToken = tok.AccessToken
	c.ExpiresAt = tok.Expiry
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	return &c
}

// Redacted returns a copy safe to expose over the API.
func (c Credential) Redacted() *Credential {
	c.AccessToken = ""
	c.RefreshToken = ""
	c.ClientSecret = ""
	return &c
}
