package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/domain/credential"
)

var (
	ErrCredentialNotFound = fmt.Errorf("credential %w", apperr.ErrNotFound)

	credentialKeyPrefix = keyPrefix + "credential:"
	credentialIDsKey    = keyPrefix + "credentials" // SET of channel IDs
)

func credentialKey(channelID string) string { return credentialKeyPrefix + channelID }

// CredentialRepository stores one JSON record per channel ID.
// Records are never deleted; deactivation is a field update.
type CredentialRepository struct {
	client *RedisClient
	log    *zap.Logger
}

func newCredentialRepository(log *zap.Logger, client *RedisClient) *CredentialRepository {
	return &CredentialRepository{
		log:    log.Named("credentials"),
		client: client,
	}
}

// Upsert writes the record and indexes its channel ID.
func (r *CredentialRepository) Upsert(ctx context.Context, c *credential.Credential) error {
	if c == nil || c.ChannelID == "" {
		return fmt.Errorf("invalid credential")
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, credentialKey(c.ChannelID), payload, 0)
	pipe.SAdd(ctx, credentialIDsKey, c.ChannelID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Get returns ErrCredentialNotFound if no record exists for channelID.
func (r *CredentialRepository) Get(ctx context.Context, channelID string) (*credential.Credential, error) {
	raw, err := r.client.Get(ctx, credentialKey(channelID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get: %w", err)
	}
	return decodeCredential(raw)
}

// GetAll returns every stored credential, active or not, in no particular order.
func (r *CredentialRepository) GetAll(ctx context.Context) ([]*credential.Credential, error) {
	ids, err := r.client.SMembers(ctx, credentialIDsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = credentialKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	out := make([]*credential.Credential, 0, len(vals))
	err = parseMGet(r.log, keys, vals, func(raw []byte) error {
		c, err := decodeCredential(raw)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func decodeCredential(raw []byte) (*credential.Credential, error) {
	var c credential.Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &c, nil
}

// parseMGet feeds each present MGET value to fn. Missing keys are logged and
// skipped; they are eventual-consistency artifacts between SMEMBERS and MGET.
func parseMGet(log *zap.Logger, keys []string, vals []any, fn func([]byte) error) error {
	for i, v := range vals {
		if v == nil {
			log.Warn("record missing during MGET", zap.String("key", keys[i]))
			continue
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("key %s at index %d: unexpected type (got %T, want string)", keys[i], i, v)
		}
		if err := fn([]byte(s)); err != nil {
			return fmt.Errorf("key %s at index %d: %w", keys[i], i, err)
		}
	}
	return nil
}
