// Package config loads the server configuration file and the operator-supplied
// channel and OAuth client descriptors.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edirooss/livepush/pkg/avurl"
)

// DefaultPath is read when no -config flag is given.
const DefaultPath = "livepush-server.yaml"

type Config struct {
	RedisAddr     string `yaml:"redis_address"`
	ListenAddr    string `yaml:"listen_address"`
	Port          string `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`

	LogStore        string `yaml:"log_store"` // "redis" (default) or "postgres"
	PostgresDSN     string `yaml:"postgres_dsn"`
	LogTailCapacity int    `yaml:"log_tail_capacity"`

	OAuthClientFile string `yaml:"oauth_client_file"`
	ChannelsFile    string `yaml:"channels_file"`

	AutoStartDue bool `yaml:"auto_start_due"`

	Encoder     EncoderConfig     `yaml:"encoder"`
	Provisioner ProvisionerConfig `yaml:"provisioner"`
}

type EncoderConfig struct {
	Binary        string        `yaml:"binary"`
	IngestBase    string        `yaml:"ingest_base"`
	StopGrace     time.Duration `yaml:"stop_grace"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type ProvisionerConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Load reads and decodes the yaml file at path, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RedisAddr == "" {
		c.RedisAddr = "127.0.0.1:6379"
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.LogStore == "" {
		c.LogStore = "redis"
	}
	if c.LogTailCapacity <= 0 {
		c.LogTailCapacity = 500
	}
	if c.SessionSecret == "" {
		c.SessionSecret = "livepush-dev-secret"
	}
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = "ffmpeg"
	}
	if c.Encoder.IngestBase == "" {
		c.Encoder.IngestBase = "rtmp://a.rtmp.youtube.com/live2"
	}
	if c.Encoder.StopGrace <= 0 {
		c.Encoder.StopGrace = 5 * time.Second
	}
	if c.Encoder.MaxConcurrent <= 0 {
		c.Encoder.MaxConcurrent = 1
	}
	if c.Provisioner.RequestTimeout <= 0 {
		c.Provisioner.RequestTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.LogStore {
	case "redis":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: postgres_dsn is required when log_store is postgres")
		}
	default:
		return fmt.Errorf("config: unknown log_store %q", c.LogStore)
	}
	if _, err := avurl.ParseIngest(c.Encoder.IngestBase); err != nil {
		return fmt.Errorf("config: encoder.ingest_base: %w", err)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.ListenAddr + ":" + c.Port
}
