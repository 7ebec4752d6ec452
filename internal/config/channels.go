package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Channels is the operator's channel file.
type Channels struct {
	Channels []Channel      `json:"channels"`
	Defaults DefaultSetting `json:"default_settings"`
}

type Channel struct {
	Name        string       `json:"name"`
	ChannelID   string       `json:"channel_id,omitempty"`
	StreamKey   string       `json:"stream_key"`
	Description string       `json:"description,omitempty"`
	Auth        *ChannelAuth `json:"auth,omitempty"`
}

// ChannelAuth is the token material exported after an OAuth connect.
// Older exports carry the access token under "token".
type ChannelAuth struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	Token        string `json:"token"`
	TokenURI     string `json:"token_uri"`
}

// Access returns whichever access token field is set.
func (a *ChannelAuth) Access() string {
	if a.AccessToken != "" {
		return a.AccessToken
	}
	return a.Token
}

type DefaultSetting struct {
	Quality   string `json:"quality"`
	Privacy   string `json:"privacy"`
	AutoStart bool   `json:"auto_start"`
	Bitrate   string `json:"bitrate"`
	Framerate int    `json:"framerate"`
}

// GoogleTokenURI is used when a channel's auth block omits token_uri.
const GoogleTokenURI = "https://oauth2.googleapis.com/token"

// LoadChannels reads and validates a channel file.
func LoadChannels(path string) (*Channels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels: %w", err)
	}
	return ParseChannels(data)
}

func ParseChannels(data []byte) (*Channels, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	if _, ok := raw["channels"]; !ok {
		return nil, errors.New("channels: missing required field: channels")
	}

	var cc Channels
	if err := json.Unmarshal(data, &cc); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	for i := range cc.Channels {
		ch := &cc.Channels[i]
		if strings.TrimSpace(ch.Name) == "" {
			return nil, fmt.Errorf("channel %d: missing required field: name", i+1)
		}
		if strings.TrimSpace(ch.StreamKey) == "" {
			return nil, fmt.Errorf("channel %d: missing required field: stream_key", i+1)
		}
		if ch.Auth != nil && ch.Auth.TokenURI == "" {
			ch.Auth.TokenURI = GoogleTokenURI
		}
	}
	if cc.Defaults.Privacy == "" {
		cc.Defaults.Privacy = "public"
	}
	return &cc, nil
}

// ByName returns the channel with the given display name.
func (cc *Channels) ByName(name string) (*Channel, bool) {
	if cc == nil {
		return nil, false
	}
	for i := range cc.Channels {
		if cc.Channels[i].Name == name {
			return &cc.Channels[i], true
		}
	}
	return nil, false
}

// StreamKey returns the configured ingest key for a channel name, if any.
func (cc *Channels) StreamKey(name string) string {
	if ch, ok := cc.ByName(name); ok {
		return ch.StreamKey
	}
	return ""
}

// OAuthClient is the descriptor needed to run the authorization-code flow.
type OAuthClient struct {
	ClientID      string
	ClientSecret  string
	AuthEndpoint  string
	TokenEndpoint string
	RedirectURI   string
}

// googleClientFile matches the JSON downloaded from the Google Cloud console,
// where fields are nested under "web" or "installed".
type googleClientFile struct {
	Web       *googleClient `json:"web"`
	Installed *googleClient `json:"installed"`
}

type googleClient struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	RedirectURIs []string `json:"redirect_uris"`
}

// LoadOAuthClient reads a Google OAuth client file.
func LoadOAuthClient(path string) (*OAuthClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	return ParseOAuthClient(data)
}

func ParseOAuthClient(data []byte) (*OAuthClient, error) {
	var f googleClientFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode oauth client: %w", err)
	}
	gc := f.Web
	if gc == nil {
		gc = f.Installed
	}
	if gc == nil {
		// Flat descriptor without the console wrapper.
		gc = new(googleClient)
		if err := json.Unmarshal(data, gc); err != nil {
			return nil, fmt.Errorf("decode oauth client: %w", err)
		}
	}

	if gc.ClientID == "" || gc.ClientSecret == "" {
		return nil, errors.New("oauth client: client_id and client_secret are required")
	}
	if len(gc.RedirectURIs) == 0 {
		return nil, errors.New("oauth client: at least one redirect uri is required")
	}
	c := &OAuthClient{
		ClientID:      gc.ClientID,
		ClientSecret:  gc.ClientSecret,
		AuthEndpoint:  gc.AuthURI,
		TokenEndpoint: gc.TokenURI,
		RedirectURI:   gc.RedirectURIs[0],
	}
	if c.AuthEndpoint == "" {
		c.AuthEndpoint = "https://accounts.google.com/o/oauth2/auth"
	}
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = GoogleTokenURI
	}
	return c, nil
}
