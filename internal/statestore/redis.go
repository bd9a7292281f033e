package statestore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"apikeyproxy/internal/metrics"
)

// RedisStore is the production Store implementation, backed by a single
// long-lived *redis.Client (connection-pooled internally by go-redis).
type RedisStore struct {
	client   *redis.Client
	fallback atomic.Bool
}

// NewRedisStore parses redisURL (a "redis://[:password@]host:port/db" URL,
// as accepted by redis.ParseURL) and returns a Store. If the initial PING
// fails, the store starts in fallback mode rather than refusing to start.
// KeyRegistry and AdminInvalidator do not consult Fallback(); while the
// backend is unreachable their store calls return errors.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("statestore: invalid CACHE_REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	s := &RedisStore{client: client}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.fallback.Store(true)
	}
	metrics.StateStoreFallbackSet(s.fallback.Load())
	return s, nil
}

func (s *RedisStore) Fallback() bool { return s.fallback.Load() }

// Ping re-probes the backend and updates the fallback flag accordingly.
func (s *RedisStore) Ping(ctx context.Context) error {
	err := s.client.Ping(ctx).Err()
	s.fallback.Store(err != nil)
	metrics.StateStoreFallbackSet(err != nil)
	return err
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("statestore: GET %q: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("statestore: SET %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("statestore: DEL: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("statestore: EXISTS %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("statestore: INCR %q: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("statestore: EXPIRE %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SAdd(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("statestore: SADD %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SRem(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("statestore: SREM %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("statestore: SMEMBERS %q: %w", key, err)
	}
	return members, nil
}

// Scan delegates to the native SCAN cursor, never KEYS, so invalidation and
// any other pattern lookup stay non-blocking even over a large keyspace.
func (s *RedisStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("statestore: SCAN match=%q: %w", match, err)
	}
	return keys, next, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
