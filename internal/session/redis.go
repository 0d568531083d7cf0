package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "wheatscan:pending:"
	redisPingTimeout = 5 * time.Second
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects using a redis:// URL, e.g. redis://localhost:6379/0,
// and fails when the server does not answer a PING.
func NewRedisStore(connectionString string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid redis connection string: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, id string, pending PendingImage) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending image: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending image: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (PendingImage, error) {
	return s.decode(s.client.Get(ctx, redisKeyPrefix+id).Bytes())
}

func (s *RedisStore) Take(ctx context.Context, id string) (PendingImage, error) {
	return s.decode(s.client.GetDel(ctx, redisKeyPrefix+id).Bytes())
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) decode(data []byte, err error) (PendingImage, error) {
	if errors.Is(err, redis.Nil) {
		return PendingImage{}, ErrNotFound
	}
	if err != nil {
		return PendingImage{}, fmt.Errorf("failed to read pending image: %w", err)
	}
	var pending PendingImage
	if err := json.Unmarshal(data, &pending); err != nil {
		return PendingImage{}, fmt.Errorf("failed to decode pending image: %w", err)
	}
	return pending, nil
}
