package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "useradmin:sess:"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps sessions as JSON blobs whose Redis TTL matches the session expiry,
// so expired sessions disappear without a janitor.
type RedisStore struct {
	redis   redis.UniversalClient
	nowTime func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client, nowTime: time.Now}
}

func sessionKey(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperrors.ErrSessionNotFound
	}
	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, apperrors.Unavailable(err)
	}

	session := &Session{}
	if err := json.Unmarshal(data, session); err != nil {
		// unreadable blobs are treated as absent; the caller starts a new session
		_ = s.redis.Del(ctx, sessionKey(id)).Err()
		return nil, apperrors.ErrSessionNotFound
	}
	if session.Expired(s.nowTime()) {
		return nil, apperrors.ErrSessionNotFound
	}
	return session, nil
}

func (s *RedisStore) Set(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("[sessions RedisStore Set] session id is required")
	}
	ttl := session.ExpiresAt.Sub(s.nowTime())
	if ttl <= 0 {
		return s.Destroy(ctx, session.ID)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[sessions RedisStore Set] failed to encode session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.ID), data, ttl).Err(); err != nil {
		return apperrors.Unavailable(err)
	}
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		return apperrors.Unavailable(err)
	}
	return nil
}
