package ttscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the cache with a shared Redis instance, the
// production default (intelligencedev-manifold carries the same
// redis/go-redis dependency for its own cache layer).
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

type redisEntry struct {
	Audio  []byte `json:"audio"`
	Format string `json:"format"`
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, string, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, err
	}
	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, "", false, err
	}
	return entry.Audio, entry.Format, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, audio []byte, format string, ttl time.Duration) error {
	raw, err := json.Marshal(redisEntry{Audio: audio, Format: format})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}
