package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/alem-hub/tutoring-hub/pkg/circuitbreaker"
)

// generationKey holds a counter bumped on every committed store change.
// Results are stored under the current generation, so bumping it makes
// every older result unreachable; the TTL reclaims them.
const generationKey = PrefixAnalytics + "generation"

// ErrNoGeneration is returned by Set without the generation Get reported.
var ErrNoGeneration = errors.New("cache: generation cannot be empty")

// AnalyticsCache implements analytics.ResultCache.
type AnalyticsCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewAnalyticsCache creates an analytics cache with the given result TTL.
func NewAnalyticsCache(cache *Cache, ttl time.Duration) *AnalyticsCache {
	if ttl <= 0 {
		ttl = TTLAnalyticsResult
	}
	return &AnalyticsCache{cache: cache, ttl: ttl}
}

// WithBreaker guards reads and writes with cb. While it is open they fail
// fast with circuitbreaker.ErrCircuitOpen. Invalidate always reaches Redis.
func (a *AnalyticsCache) WithBreaker(cb *circuitbreaker.CircuitBreaker) *AnalyticsCache {
	a.breaker = cb
	return a
}

func (a *AnalyticsCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if a.breaker == nil {
		return fn(ctx)
	}
	return a.breaker.Execute(ctx, fn)
}

// Get implements analytics.ResultCache.
func (a *AnalyticsCache) Get(ctx context.Context, key string, dest any) (string, bool, error) {
	var (
		gen string
		hit bool
	)
	err := a.guard(ctx, func(ctx context.Context) error {
		var err error
		if gen, err = a.generation(ctx); err != nil {
			return err
		}
		err = a.cache.Get(ctx, AnalyticsKey(gen, key), dest)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		hit = err == nil
		return err
	})
	return gen, hit, err
}

// Set implements analytics.ResultCache. The value is written under gen,
// the generation Get reported, so a result computed before a concurrent
// Invalidate lands in a generation nobody reads any more.
func (a *AnalyticsCache) Set(ctx context.Context, gen, key string, value any) error {
	if gen == "" {
		return ErrNoGeneration
	}
	return a.guard(ctx, func(ctx context.Context) error {
		return a.cache.Set(ctx, AnalyticsKey(gen, key), value, a.ttl)
	})
}

// Invalidate implements analytics.ResultCache.
func (a *AnalyticsCache) Invalidate(ctx context.Context) error {
	_, err := a.cache.Incr(ctx, generationKey)
	if a.breaker != nil {
		a.breaker.Record(err)
	}
	return err
}

func (a *AnalyticsCache) generation(ctx context.Context) (string, error) {
	gen, err := a.cache.GetString(ctx, generationKey)
	if errors.Is(err, ErrCacheMiss) {
		return strconv.Itoa(0), nil
	}
	return gen, err
}
