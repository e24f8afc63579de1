package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection parameters for a redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration // per-op timeout, default 3s
}

func (c *RedisConfig) norm() {
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

// RedisStore keeps the token in redis, for clients that share state across
// processes or hosts.
type RedisStore struct {
	rdb     *redis.Client
	key     string
	timeout time.Duration
	ttl     time.Duration
}

// NewRedisStore connects and pings before returning, so a bad address
// fails at construction rather than on first use.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	cfg.norm()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}
	return &RedisStore{rdb: rdb, key: Key, timeout: cfg.Timeout}, nil
}

// SetTTL bounds the token's lifetime in redis; zero keeps it forever.
// Callers typically pass the expiry reported by Inspect.
func (s *RedisStore) SetTTL(ttl time.Duration) { s.ttl = ttl }

func (s *RedisStore) Save(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.rdb.Set(ctx, s.key, token, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "save token")
	}
	return nil
}

func (s *RedisStore) Load() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	token, err := s.rdb.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "load token")
	}
	return token, nil
}

func (s *RedisStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "clear token")
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error { return s.rdb.Close() }
