package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProgressLocker serializes progress updates per (user, character) pair so
// two near-simultaneous messages cannot both advance from the same chapter.
type ProgressLocker interface {
	// Acquire blocks until the pair's lock is held or ctx expires. The
	// returned release function is safe to call exactly once.
	Acquire(ctx context.Context, userID, characterID uuid.UUID) (func(), error)
}

// Compile-time check to ensure implementation satisfies the interface.
var _ ProgressLocker = (*RedisProgressLocker)(nil)

// RedisProgressLocker implements the per-key mutex with SET NX and a
// compare-and-delete release, so a crashed holder only blocks peers for the
// lock TTL.
type RedisProgressLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

func NewRedisProgressLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisProgressLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisProgressLocker{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		logger: logger.Named("RedisProgressLocker"),
	}
}

// releaseScript deletes the lock only if this process still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0`)

func (l *RedisProgressLocker) Acquire(ctx context.Context, userID, characterID uuid.UUID) (func(), error) {
	key := fmt.Sprintf("progress_lock:%s:%s", userID, characterID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire progress lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	release := func() {
		// Release outlives the request context so a cancelled turn still
		// frees the lock.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("failed to release progress lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, nil
}
