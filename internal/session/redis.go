// internal/session/redis.go
package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"geodialogue/internal/common/database"
	apperrors "geodialogue/internal/common/errors"
	"geodialogue/internal/models"
)

const DefaultKeyPrefix = "dialogue:session:"

// RedisStore keeps states as JSON under <prefix><sessionID>. Every write
// refreshes the expiry, so the TTL counts from the last turn.
type RedisStore struct {
	client *database.RedisClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *database.RedisClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) Create(ctx context.Context, state *models.ConversationState) error {
	ok, err := s.client.SetJSONNX(ctx, s.key(state.SessionID), state, s.ttl)
	if err != nil {
		return apperrors.NewSessionStoreError("create", err)
	}
	if !ok {
		return models.ErrSessionExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*models.ConversationState, error) {
	var st models.ConversationState
	err := s.client.GetJSON(ctx, s.key(sessionID), &st)
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, apperrors.NewSessionStoreError("get", err)
	}
	if st.Params == nil {
		st.Params = models.ParameterSet{}
	}
	return &st, nil
}

func (s *RedisStore) Put(ctx context.Context, state *models.ConversationState) error {
	if err := s.client.SetJSON(ctx, s.key(state.SessionID), state, s.ttl); err != nil {
		return apperrors.NewSessionStoreError("put", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)); err != nil {
		return apperrors.NewSessionStoreError("delete", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return apperrors.NewSessionStoreError("ping", err)
	}
	return nil
}
