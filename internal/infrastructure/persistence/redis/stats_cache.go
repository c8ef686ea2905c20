package redis

import (
	"context"
	"errors"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/application/query"
)

// UsageStatsCache implements the query.StatsCache interface using the
// generic Redis Cache. It stores the already computed usage summary so
// repeated /stats calls do not re-run the count queries.
type UsageStatsCache struct {
	cache *Cache
}

// NewUsageStatsCache creates a new UsageStatsCache.
func NewUsageStatsCache(cache *Cache) *UsageStatsCache {
	return &UsageStatsCache{
		cache: cache,
	}
}

// GetStats returns the cached summary, or nil when there is none.
// A miss is not an error: the caller recomputes the summary.
func (u *UsageStatsCache) GetStats(ctx context.Context) (*query.UsageStatsResult, error) {
	var stats query.UsageStatsResult
	if err := u.cache.Get(ctx, KeyUsageStats, &stats); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}

// SetStats stores the summary for the duration of ttl.
func (u *UsageStatsCache) SetStats(ctx context.Context, stats *query.UsageStatsResult, ttl time.Duration) error {
	if stats == nil {
		return ErrCacheNilValue
	}
	return u.cache.Set(ctx, KeyUsageStats, stats, ttl)
}
