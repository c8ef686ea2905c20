package redis

import (
	"context"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// KnownUserCache implements the user.Cache interface using the generic
// Redis Cache. It keeps short-lived "already registered" markers so the
// bot does not hit PostgreSQL on every incoming message.
type KnownUserCache struct {
	cache *Cache
}

// NewKnownUserCache creates a new KnownUserCache.
func NewKnownUserCache(cache *Cache) *KnownUserCache {
	return &KnownUserCache{
		cache: cache,
	}
}

// IsKnown reports whether the user is marked as registered.
// A miss only means the marker expired, never that the user is new.
func (k *KnownUserCache) IsKnown(ctx context.Context, id user.TelegramID) (bool, error) {
	return k.cache.Exists(ctx, KnownUserKey(id.Int64()))
}

// MarkKnown marks the user as registered for the duration of ttl.
func (k *KnownUserCache) MarkKnown(ctx context.Context, id user.TelegramID, ttl time.Duration) error {
	return k.cache.SetString(ctx, KnownUserKey(id.Int64()), "1", ttl)
}
