package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admit-hub/admission-calc-bot/internal/application/registration"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// ─────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────

// fakeUserRepo counts CreateIfAbsent calls so tests can observe how often
// the registration path reaches storage.
type fakeUserRepo struct {
	mu          sync.Mutex
	createCalls int
	failWith    error
}

func (f *fakeUserRepo) CreateIfAbsent(_ context.Context, _ *user.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if f.failWith != nil {
		return false, f.failWith
	}
	return f.createCalls == 1, nil
}

func (f *fakeUserRepo) GetByTelegramID(_ context.Context, _ user.TelegramID) (*user.User, error) {
	return nil, user.ErrUserNotFound
}

func (f *fakeUserRepo) ListIDs(_ context.Context) ([]user.TelegramID, error) { return nil, nil }

func (f *fakeUserRepo) Count(_ context.Context) (int, error) { return 0, nil }

func (f *fakeUserRepo) CountSince(_ context.Context, _ time.Time) (int, error) { return 0, nil }

func (f *fakeUserRepo) CountReferredBy(_ context.Context, _ user.TelegramID) (int, error) {
	return 0, nil
}

func (f *fakeUserRepo) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func newTestRegistration(repo user.Repository) *RegistrationMiddleware {
	svc := registration.NewService(repo, nil, time.Hour)
	return NewRegistrationMiddleware(svc, DefaultRegistrationConfig())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ─────────────────────────────────────────────
// Registration middleware
// ─────────────────────────────────────────────

func TestRegistrationMiddlewareRegistersOnce(t *testing.T) {
	repo := &fakeUserRepo{}
	mw := newTestRegistration(repo)

	params := user.NewUserParams{TelegramID: 42, Username: "ada", FirstName: "Ada"}

	created, err := mw.EnsureKnown(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, created, "first contact must create the user")

	created, err = mw.EnsureKnown(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, 1, repo.calls(), "second call must be absorbed by the in-process cache")
}

func TestRegistrationMiddlewareDoesNotCacheFailures(t *testing.T) {
	repo := &fakeUserRepo{failWith: errors.New("db down")}
	mw := newTestRegistration(repo)

	params := user.NewUserParams{TelegramID: 42, Username: "ada", FirstName: "Ada"}

	_, err := mw.EnsureKnown(context.Background(), params)
	require.Error(t, err)

	_, err = mw.EnsureKnown(context.Background(), params)
	require.Error(t, err)

	assert.Equal(t, 2, repo.calls(), "failed registration must retry storage on the next update")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	assert.EqualValues(t, 0, TelegramIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = ContextWithTelegramID(ctx, 777)
	ctx = ContextWithRequestID(ctx, "req-1")

	assert.EqualValues(t, 777, TelegramIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

// ─────────────────────────────────────────────
// Rate limiter
// ─────────────────────────────────────────────

func TestRateLimiterAllowsBurstThenThrottles(t *testing.T) {
	config := DefaultRateLimitConfig()
	config.RequestsPerMinute = 6
	config.BurstSize = 3
	rl := NewRateLimiter(config)

	for i := 0; i < 3; i++ {
		res := rl.Check(100)
		require.True(t, res.Allowed, "request %d is within the burst", i+1)
	}

	res := rl.Check(100)
	require.False(t, res.Allowed)
	assert.False(t, res.IsBanned)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.Contains(t, res.ResponseMessage, "Too many requests")
}

func TestRateLimiterWhitelistBypass(t *testing.T) {
	config := DefaultRateLimitConfig()
	config.RequestsPerMinute = 1
	config.BurstSize = 1
	config.WhitelistedUsers = map[int64]bool{7: true}
	rl := NewRateLimiter(config)

	for i := 0; i < 20; i++ {
		require.True(t, rl.Check(7).Allowed, "whitelisted user must never be throttled")
	}
}

func TestRateLimiterBansRepeatOffenders(t *testing.T) {
	config := DefaultRateLimitConfig()
	config.RequestsPerMinute = 1
	config.BurstSize = 1
	config.BanThreshold = 2
	config.BanDuration = time.Hour
	rl := NewRateLimiter(config)

	require.True(t, rl.Check(55).Allowed)
	require.False(t, rl.Check(55).Allowed)
	require.False(t, rl.Check(55).Allowed)

	res := rl.Check(55)
	require.False(t, res.Allowed)
	assert.True(t, res.IsBanned)
	assert.Greater(t, res.RetryAfter, 50*time.Minute)
}

func TestRateLimiterIsolatesUsers(t *testing.T) {
	config := DefaultRateLimitConfig()
	config.RequestsPerMinute = 1
	config.BurstSize = 1
	rl := NewRateLimiter(config)

	require.True(t, rl.Check(1).Allowed)
	require.False(t, rl.Check(1).Allowed)

	assert.True(t, rl.Check(2).Allowed, "one user's throttle must not spill onto another")
}

// ─────────────────────────────────────────────
// Recovery middleware
// ─────────────────────────────────────────────

func TestRecoveryMiddlewareRecoversPanic(t *testing.T) {
	var captured *PanicInfo
	config := DefaultRecoveryConfig()
	config.OnPanic = func(_ context.Context, info *PanicInfo) { captured = info }

	mw := NewRecoveryMiddleware(config, discardLogger())

	ctx := ContextWithRequestID(context.Background(), "req-9")
	result, err := mw.RecoverWithHandler(ctx, 42, "calculate", func() error {
		panic("boom")
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Recovered)
	assert.Equal(t, config.UserErrorMessage, result.UserMessage)

	require.NotNil(t, captured, "OnPanic hook must fire")
	assert.EqualError(t, captured.Error, "boom")
	assert.Equal(t, "calculate", captured.Command)
	assert.EqualValues(t, 42, captured.TelegramID)
	assert.Equal(t, "req-9", captured.RequestID)
	assert.NotEmpty(t, captured.StackTrace)
}

func TestRecoveryMiddlewarePassesHandlerResult(t *testing.T) {
	mw := NewRecoveryMiddleware(DefaultRecoveryConfig(), discardLogger())

	wantErr := errors.New("handler failed")
	result, err := mw.RecoverWithHandler(context.Background(), 1, "start", func() error {
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	require.NotNil(t, result)
	assert.False(t, result.Recovered)
	assert.Empty(t, result.UserMessage)
}

// ─────────────────────────────────────────────
// Metrics middleware
// ─────────────────────────────────────────────

func TestMetricsMiddlewareRecordsCommands(t *testing.T) {
	m := NewMetricsMiddleware(DefaultMetricsConfig())

	rc := m.Start("calculate", 1)
	rc.End(nil)

	rc = m.Start("calculate", 2)
	rc.End(errors.New("failed"))

	rc = m.Start("balance", 1)
	rc.End(nil)

	m.RecordPanic()

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.TotalRequests)
	assert.EqualValues(t, 1, snap.TotalErrors)
	assert.EqualValues(t, 1, snap.PanicsRecovered)
	assert.EqualValues(t, 0, snap.ActiveRequests)
	assert.InDelta(t, 1.0/3.0, snap.ErrorRate, 1e-9)

	calc, ok := snap.Commands["calculate"]
	require.True(t, ok)
	assert.EqualValues(t, 2, calc.TotalCount)
	assert.EqualValues(t, 1, calc.ErrorCount)
	assert.False(t, calc.LastInvoked.IsZero())

	assert.EqualValues(t, 1, snap.Commands["balance"].TotalCount)
}

func TestMetricsMiddlewareFlagsSlowRequests(t *testing.T) {
	var slowCommand string
	config := MetricsConfig{
		SlowRequestThreshold: time.Nanosecond,
		OnSlowRequest: func(command string, _ time.Duration, _ int64) {
			slowCommand = command
		},
	}
	m := NewMetricsMiddleware(config)

	rc := m.Start("history", 5)
	time.Sleep(time.Millisecond)
	rc.End(nil)

	assert.Equal(t, "history", slowCommand)
}
