package gdpr

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"storyledger/internal/platform/redis"
	"storyledger/pkg/platform/sentinel"
)

const artifactKeyPrefix = "gdpr:export:"

// RedisArtifactStore holds export payloads in Redis so expiry is enforced by
// the store itself rather than application bookkeeping.
type RedisArtifactStore struct {
	client *redis.Client
}

func NewRedisArtifactStore(client *redis.Client) *RedisArtifactStore {
	return &RedisArtifactStore{client: client}
}

func (s *RedisArtifactStore) Put(ctx context.Context, token string, payload []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, artifactKeyPrefix+token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store export artifact: %w", err)
	}
	return nil
}

func (s *RedisArtifactStore) Get(ctx context.Context, token string) ([]byte, error) {
	payload, err := s.client.Get(ctx, artifactKeyPrefix+token).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load export artifact: %w", err)
	}
	return payload, nil
}

var _ ArtifactStore = (*RedisArtifactStore)(nil)
