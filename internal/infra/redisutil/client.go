// Package redisutil wraps go-redis with the few operations the service needs:
// the sweep lock and the login-failure window counter.
package redisutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Golden-Age-Club/server/internal/config"
	"github.com/redis/go-redis/v9"
)

const keyNamespace = "ledger"

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Client struct {
	store cmdable
	raw   *redis.Client
}

// New connects and pings.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	raw := redis.NewClient(opts)

	err = raw.Ping(ctx).Err()
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{store: raw, raw: raw}, nil
}

// NewFromCmdable is used by tests with an in-memory store.
func NewFromCmdable(store cmdable) *Client {
	return &Client{store: store}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}

	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	return opts, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotInitialized
	}

	return c.store.Ping(ctx).Err()
}

// Get returns redis.Nil when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errNotInitialized
	}

	return c.store.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}

	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errNotInitialized
	}

	return c.store.Del(ctx, keys...).Err()
}

// IncrWithTTL increments key and gives it a TTL if it has none, which makes
// the key a fixed window counter. EXPIRE NX runs on every increment so a
// failed expire is retried by the next call instead of leaving the key
// without a TTL. Requires Redis 7.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.store == nil {
		return 0, errNotInitialized
	}

	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}

	if ttl > 0 {
		err = c.store.ExpireNX(ctx, key, ttl).Err()
		if err != nil {
			return count, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	return count, nil
}

// Key builds a namespaced key, e.g. Key("login_failures", "42").
func (c *Client) Key(parts ...string) string {
	return keyNamespace + ":" + strings.Join(parts, ":")
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}

	return c.raw.Close()
}
