package risk

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/redisutil"
)

// LoginCounter tracks failed logins inside a fixed window.
type LoginCounter interface {
	Increment(ctx context.Context, accountID uint64) (int64, error)
	Reset(ctx context.Context, accountID uint64) error
}

type RedisLoginCounter struct {
	client *redisutil.Client
	window time.Duration
}

var _ LoginCounter = (*RedisLoginCounter)(nil)

func NewRedisLoginCounter(client *redisutil.Client, window time.Duration) *RedisLoginCounter {
	return &RedisLoginCounter{client: client, window: window}
}

func (c *RedisLoginCounter) key(accountID uint64) string {
	return c.client.Key("login_failures", strconv.FormatUint(accountID, 10))
}

func (c *RedisLoginCounter) Increment(ctx context.Context, accountID uint64) (int64, error) {
	n, err := c.client.IncrWithTTL(ctx, c.key(accountID), c.window)
	if err != nil {
		return 0, fmt.Errorf("count failed login: %w", err)
	}

	return n, nil
}

func (c *RedisLoginCounter) Reset(ctx context.Context, accountID uint64) error {
	err := c.client.Del(ctx, c.key(accountID))
	if err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}

	return nil
}
