package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection parameters for a Redis-compatible server.
type RedisConfig struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	DialTimeout time.Duration
	KeyPrefix   string
}

// RedisProvider implements Provider on top of go-redis.
type RedisProvider struct {
	client *redis.Client
	prefix string
}

// NewRedisProvider connects and pings the server so bad credentials or
// addresses fail at startup.
func NewRedisProvider(ctx context.Context, cfg RedisConfig) (*RedisProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewRedisProviderFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisProviderFromClient wraps an existing client.
func NewRedisProviderFromClient(client *redis.Client, prefix string) *RedisProvider {
	return &RedisProvider{client: client, prefix: prefix}
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := p.client.Get(ctx, p.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set stores bytes without expiry.
func (p *RedisProvider) Set(ctx context.Context, key string, value []byte) error {
	if err := p.client.Set(ctx, p.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del removes key.
func (p *RedisProvider) Del(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, p.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the client's connections.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}
