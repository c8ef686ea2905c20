// Package middleware contains Telegram bot middlewares for request processing.
// These middlewares form a chain that processes every incoming update before
// it reaches the handler, and can modify the response after the handler completes.
package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/application/registration"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT KEYS
// Used to pass data through the request context.
// ══════════════════════════════════════════════════════════════════════════════

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// TelegramIDContextKey is the context key for the Telegram user ID.
	TelegramIDContextKey contextKey = "telegram_id"

	// RequestIDContextKey is the context key for request tracing.
	RequestIDContextKey contextKey = "request_id"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION MIDDLEWARE
// Every update from an unseen user creates that user before the handler
// runs. Nobody is ever blocked: registration happens silently on first
// contact, together with the signup bonus.
// ══════════════════════════════════════════════════════════════════════════════

// RegistrationConfig holds configuration for the registration middleware.
type RegistrationConfig struct {
	// CacheTTL is how long a user is remembered in process memory before
	// the registration service is consulted again.
	CacheTTL time.Duration
}

// DefaultRegistrationConfig returns sensible defaults for the middleware.
func DefaultRegistrationConfig() RegistrationConfig {
	return RegistrationConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// RegistrationMiddleware makes sure the sender of every update exists in
// storage. A small in-process cache keeps the hot path free of network
// round trips; the registration service behind it owns the real check.
type RegistrationMiddleware struct {
	service *registration.Service
	known   *knownCache
}

// NewRegistrationMiddleware creates a registration middleware.
func NewRegistrationMiddleware(service *registration.Service, config RegistrationConfig) *RegistrationMiddleware {
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = DefaultRegistrationConfig().CacheTTL
	}

	return &RegistrationMiddleware{
		service: service,
		known:   newKnownCache(ttl),
	}
}

// EnsureKnown registers the sender on first contact.
// Returns true when this update actually created the user.
func (m *RegistrationMiddleware) EnsureKnown(ctx context.Context, params user.NewUserParams) (bool, error) {
	if m.known.seen(params.TelegramID.Int64()) {
		return false, nil
	}

	created, err := m.service.EnsureKnown(ctx, params)
	if err != nil {
		return false, err
	}

	m.known.mark(params.TelegramID.Int64())
	return created, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT HELPERS
// Functions to work with request-scoped data in context.
// ══════════════════════════════════════════════════════════════════════════════

// ContextWithTelegramID adds the Telegram ID to the context.
func ContextWithTelegramID(ctx context.Context, telegramID int64) context.Context {
	return context.WithValue(ctx, TelegramIDContextKey, telegramID)
}

// TelegramIDFromContext retrieves the Telegram ID from context.
// Returns 0 if not found.
func TelegramIDFromContext(ctx context.Context) int64 {
	id, ok := ctx.Value(TelegramIDContextKey).(int64)
	if !ok {
		return 0
	}
	return id
}

// ContextWithRequestID adds the request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDContextKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns an empty string if not found.
func RequestIDFromContext(ctx context.Context) string {
	id, ok := ctx.Value(RequestIDContextKey).(string)
	if !ok {
		return ""
	}
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// KNOWN-USER CACHE
// Simple in-memory cache of users already seen by this process.
// The Redis-backed cache inside the registration service covers restarts.
// ══════════════════════════════════════════════════════════════════════════════

// knownCache is a thread-safe set of recently seen Telegram IDs.
type knownCache struct {
	mu      sync.RWMutex
	entries map[int64]time.Time
	ttl     time.Duration
}

func newKnownCache(ttl time.Duration) *knownCache {
	c := &knownCache{
		entries: make(map[int64]time.Time),
		ttl:     ttl,
	}

	// Start background cleanup goroutine
	go c.cleanupLoop()

	return c
}

func (c *knownCache) seen(telegramID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expiresAt, ok := c.entries[telegramID]
	return ok && time.Now().Before(expiresAt)
}

func (c *knownCache) mark(telegramID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[telegramID] = time.Now().Add(c.ttl)
}

func (c *knownCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *knownCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, expiresAt := range c.entries {
		if now.After(expiresAt) {
			delete(c.entries, id)
		}
	}
}
