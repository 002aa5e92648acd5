package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 50 * time.Minute

// Lock keeps two replicas from sweeping at the same time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lock that expires on its own if the holder dies.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("lock store is required")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()

	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	if ok {
		l.owner = owner
	}

	return ok, nil
}

// Release deletes the key only while it still holds our owner token.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}

	value, err := l.store.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.owner = ""
			return nil
		}

		return fmt.Errorf("read lock owner: %w", err)
	}

	if value != l.owner {
		l.owner = ""
		return nil
	}

	err = l.store.Del(ctx, l.key)
	if err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}

	l.owner = ""

	return nil
}
