package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another process already holds the lock.
var ErrLockHeld = errors.New("lock already held")

// releaseScript deletes the key only if the caller still owns it, so a
// lock that expired and was re-acquired elsewhere is never clobbered.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker issues per-key mutual exclusion backed by SET NX with a TTL.
// The TTL bounds how long a crashed holder can block other processes.
type Locker struct {
	client *Client
	prefix string
}

func NewLocker(client *Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &Locker{client: client, prefix: prefix}
}

// WithLock runs fn while holding the lock for key. It does not wait:
// contention returns ErrLockHeld immediately and fn never runs.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer l.release(ctx, key, token)

	return fn()
}

func (l *Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLockHeld
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock %s", key)
	return token, nil
}

func (l *Locker) release(ctx context.Context, key, token string) {
	released, err := releaseScript.Run(ctx, l.client.rdb, []string{l.prefix + key}, token).Int64()
	if err != nil {
		l.client.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock %s", key)
		return
	}
	if released == 0 {
		// Expired under us; the work ran longer than the TTL.
		l.client.logger.WithContext(ctx).Warnf("Lock %s expired before release", key)
		return
	}
	l.client.logger.WithContext(ctx).Debugf("Released lock %s", key)
}
