// Package repo holds the Redis-backed durable collections: credentials,
// sessions and the append-only log event stream.
package repo

import "go.uber.org/zap"

const keyPrefix = "livepush:"

type Repository struct {
	log    *zap.Logger
	client *RedisClient

	Credentials *CredentialRepository
	Sessions    *SessionRepository
	Logs        *LogEventRepository
}

func NewRepository(log *zap.Logger, client *RedisClient) *Repository {
	log = log.Named("repo")

	return &Repository{
		log,
		client,
		newCredentialRepository(log, client),
		newSessionRepository(log, client),
		newLogEventRepository(log, client),
	}
}
