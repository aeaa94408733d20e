package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// INGESTION LOCK
// One holder across all processes sharing the Redis instance. The lock value
// is a random token so only the holder can release it.
// ══════════════════════════════════════════════════════════════════════════════

// IngestLockResource names the lock key.
const IngestLockResource = "ingestion"

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IngestLock implements ingest.Locker on Redis.
type IngestLock struct {
	cache *Cache
	key   string
	ttl   time.Duration
	wait  time.Duration
	poll  time.Duration
}

// NewIngestLock creates the lock. ttl bounds how long a crashed holder
// blocks others; wait is how long Lock retries before giving up.
func NewIngestLock(cache *Cache, ttl, wait time.Duration) *IngestLock {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	return &IngestLock{
		cache: cache,
		key:   LockKey(IngestLockResource),
		ttl:   ttl,
		wait:  wait,
		poll:  200 * time.Millisecond,
	}
}

// Lock acquires the lock or fails with shared.ErrIngestionLocked once the
// wait time has passed. The returned func releases it.
func (l *IngestLock) Lock(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()

	var deadline <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		ok, err := l.cache.SetNX(ctx, l.key, token, l.ttl)
		if err != nil {
			return nil, shared.StorageError("redis", "AcquireIngestLock", err)
		}
		if ok {
			return l.release(token), nil
		}
		if l.wait <= 0 {
			return nil, shared.ErrIngestionLocked
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", shared.ErrIngestionLocked, ctx.Err())
		case <-deadline:
			return nil, shared.ErrIngestionLocked
		case <-time.After(l.poll):
		}
	}
}

func (l *IngestLock) release(token string) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.cache.Client(), []string{l.key}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return shared.StorageError("redis", "ReleaseIngestLock", err)
		}
		if n == 0 {
			return errors.New("ingestion lock expired before release")
		}
		return nil
	}
}
