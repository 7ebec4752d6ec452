package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/domain/logevent"
)

const (
	// DefaultQueryLimit applies when a filter carries no limit.
	DefaultQueryLimit = 100
	// MaxQueryLimit caps any single query.
	MaxQueryLimit = 1000
)

var (
	logsKey             = keyPrefix + "logs"          // ZSET score=sequence, member=JSON event
	sessionLogKeyPrefix = keyPrefix + "logs:session:" // ZSET per session, same layout
)

func sessionLogKey(id string) string { return sessionLogKeyPrefix + id }

// LogEventRepository is the append-only event stream. Events are stored in a
// global sorted set and a per-session sorted set, both scored by sequence.
type LogEventRepository struct {
	client *RedisClient
	log    *zap.Logger
}

func newLogEventRepository(log *zap.Logger, client *RedisClient) *LogEventRepository {
	return &LogEventRepository{
		log:    log.Named("logs"),
		client: client,
	}
}

// Append writes the events in one transaction.
func (r *LogEventRepository) Append(ctx context.Context, evs ...*logevent.LogEvent) error {
	if len(evs) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, ev := range evs {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode seq %d: %w", ev.Sequence, err)
		}
		z := redis.Z{Score: float64(ev.Sequence), Member: payload}
		pipe.ZAdd(ctx, logsKey, z)
		if ev.SessionID != "" {
			pipe.ZAdd(ctx, sessionLogKey(ev.SessionID), z)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Query returns events newest first (sequence descending), bounded by f.Limit.
func (r *LogEventRepository) Query(ctx context.Context, f logevent.Filter) ([]*logevent.LogEvent, error) {
	limit := clampLimit(f.Limit)

	key := logsKey
	if f.SessionID != "" {
		key = sessionLogKey(f.SessionID)
	}

	// Without a kind filter one page is enough; otherwise keep paging until
	// the limit is met or the set is exhausted.
	page := int64(limit)
	if len(f.Kinds) > 0 && page < DefaultQueryLimit {
		page = DefaultQueryLimit
	}

	out := make([]*logevent.LogEvent, 0, limit)
	for offset := int64(0); len(out) < limit; offset += page {
		vals, err := r.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
			Max:    "+inf",
			Min:    "-inf",
			Offset: offset,
			Count:  page,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("zrevrangebyscore: %w", err)
		}

		for _, v := range vals {
			var ev logevent.LogEvent
			if err := json.Unmarshal([]byte(v), &ev); err != nil {
				r.log.Warn("skipping undecodable log event", zap.String("key", key), zap.Error(err))
				continue
			}
			if !f.Match(&ev) {
				continue
			}
			out = append(out, &ev)
			if len(out) == limit {
				break
			}
		}
		if int64(len(vals)) < page {
			break
		}
	}
	return out, nil
}

// LastSequence returns the highest stored sequence, or 0 for an empty stream.
func (r *LogEventRepository) LastSequence(ctx context.Context) (int64, error) {
	zs, err := r.client.ZRevRangeWithScores(ctx, logsKey, 0, 0).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("zrevrange: %w", err)
	}
	if len(zs) == 0 {
		return 0, nil
	}
	return int64(zs[0].Score), nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultQueryLimit
	case n > MaxQueryLimit:
		return MaxQueryLimit
	}
	return n
}
