// Package redis implements the Redis caching layer of the admission bot.
//
// It provides:
//   - Cache: general-purpose caching with TTL management
//   - KnownUserCache: markers for users that already passed registration
//   - UsageStatsCache: snapshot of the aggregated usage summary
//
// Point balances are never stored here. The ledger in PostgreSQL is the
// single source of truth and every balance read goes to it directly.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config describes how to reach the Redis server and size the pool.
type Config struct {
	Host     string
	Port     int
	Password string

	// DB selects the logical Redis database, 0 through 15.
	DB int

	// PoolSize caps open connections; MinIdleConns keeps warm spares.
	PoolSize     int
	MinIdleConns int

	// MaxRetries is how often go-redis retries a failed command.
	MaxRetries int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultConfig returns settings suited to a single local Redis.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr renders the "host:port" dial address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss signals that the key holds nothing.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection signals that Redis could not be reached.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization signals a JSON encode or decode failure.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheInvalidTTL rejects negative lifetimes.
	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")

	// ErrCacheKeyEmpty rejects empty keys.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")

	// ErrCacheNilValue rejects nil values.
	ErrCacheNilValue = errors.New("cache: value cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY NAMESPACES
// ══════════════════════════════════════════════════════════════════════════════

const (
	// PrefixUser namespaces per-user keys.
	PrefixUser = "user:"

	// PrefixStats namespaces aggregated statistics keys.
	PrefixStats = "stats:"
)

// KeyUsageStats holds the cached usage summary for the default window.
const KeyUsageStats = PrefixStats + "summary"

// KnownUserKey builds the key of a user's "already registered" marker.
func KnownUserKey(telegramID int64) string {
	return fmt.Sprintf("%sknown:%d", PrefixUser, telegramID)
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache wraps go-redis with JSON serialization, key validation and the
// package's sentinel errors.
type Cache struct {
	client *redis.Client
	config Config
}

// NewCache dials Redis and verifies the connection with a ping.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &Cache{client: client, config: cfg}, nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping reports whether Redis answers.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

func checkKeyTTL(key string, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}
	return nil
}

// Set stores value under key as JSON for the duration of ttl.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := checkKeyTTL(key, ttl); err != nil {
		return err
	}
	if value == nil {
		return ErrCacheNilValue
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// SetString stores a raw string, skipping JSON.
func (c *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := checkKeyTTL(key, ttl); err != nil {
		return err
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Get loads the JSON under key into dest. A vanished key is ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// GetString loads a raw string, skipping JSON.
func (c *Cache) GetString(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrCacheKeyEmpty
	}

	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Delete removes the given keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Exists reports whether key currently holds a value.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}

	count, err := c.client.Exists(ctx, key).Result()
	return count > 0, err
}
