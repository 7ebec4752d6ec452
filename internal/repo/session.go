package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/domain/session"
)

var (
	ErrSessionNotFound = fmt.Errorf("session %w", apperr.ErrNotFound)
	ErrSessionExists   = errors.New("session id already used")

	sessionKeyPrefix = keyPrefix + "session:"
	sessionIDsKey    = keyPrefix + "sessions" // SET of session IDs, never shrinks
)

func sessionKey(id string) string { return sessionKeyPrefix + id }

// SessionRepository persists session records. IDs are reserved forever once
// created so they cannot be reused after a restart.
type SessionRepository struct {
	client *RedisClient
	log    *zap.Logger
}

func newSessionRepository(log *zap.Logger, client *RedisClient) *SessionRepository {
	return &SessionRepository{
		log:    log.Named("sessions"),
		client: client,
	}
}

// Create reserves s.ID and stores the record.
// Returns ErrSessionExists if the ID was ever used before.
func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	added, err := r.client.SAdd(ctx, sessionIDsKey, s.ID).Result()
	if err != nil {
		return fmt.Errorf("sadd: %w", err)
	}
	if added == 0 {
		return ErrSessionExists
	}
	return r.Upsert(ctx, s)
}

// Upsert overwrites the stored record.
func (r *SessionRepository) Upsert(ctx context.Context, s *session.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), payload, 0)
	pipe.SAdd(ctx, sessionIDsKey, s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Get returns ErrSessionNotFound if the record is absent.
func (r *SessionRepository) Get(ctx context.Context, id string) (*session.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get: %w", err)
	}
	return decodeSession(raw)
}

// GetAll returns every persisted session.
//
// Like any SMEMBERS+MGET read this is an eventually consistent snapshot.
func (r *SessionRepository) GetAll(ctx context.Context) ([]*session.Session, error) {
	ids, err := r.client.SMembers(ctx, sessionIDsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	out := make([]*session.Session, 0, len(vals))
	err = parseMGet(r.log, keys, vals, func(raw []byte) error {
		s, err := decodeSession(raw)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeSession(raw []byte) (*session.Session, error) {
	var s session.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &s, nil
}
