package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/admit-hub/admission-calc-bot/internal/application/query"
	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/scoring"
	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
	"github.com/admit-hub/admission-calc-bot/internal/interface/http/handlers"
	"github.com/admit-hub/admission-calc-bot/internal/interface/telegram/middleware"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

// stubUsers implements user.Repository with fixed counts.
type stubUsers struct {
	total  int
	recent int
}

func (s *stubUsers) CreateIfAbsent(ctx context.Context, u *user.User) (bool, error) {
	return false, nil
}

func (s *stubUsers) GetByTelegramID(ctx context.Context, id user.TelegramID) (*user.User, error) {
	return nil, user.ErrUserNotFound
}

func (s *stubUsers) ListIDs(ctx context.Context) ([]user.TelegramID, error) { return nil, nil }

func (s *stubUsers) Count(ctx context.Context) (int, error) { return s.total, nil }

func (s *stubUsers) CountSince(ctx context.Context, since time.Time) (int, error) {
	return s.recent, nil
}

func (s *stubUsers) CountReferredBy(ctx context.Context, referrer user.TelegramID) (int, error) {
	return 0, nil
}

// stubLedger implements ledger.Ledger with fixed counts.
type stubLedger struct {
	calculations int
	recentCalcs  int
	referrals    int
}

func (s *stubLedger) Apply(ctx context.Context, tx *ledger.Transaction) (ledger.Points, error) {
	return 0, nil
}

func (s *stubLedger) Balance(ctx context.Context, userID ledger.UserID) (ledger.Points, error) {
	return 0, ledger.ErrBalanceNotFound
}

func (s *stubLedger) History(ctx context.Context, userID ledger.UserID, limit int) ([]*ledger.Transaction, error) {
	return nil, nil
}

func (s *stubLedger) CalculationCount(ctx context.Context) (int, error) {
	return s.calculations, nil
}

func (s *stubLedger) CalculationCountSince(ctx context.Context, since time.Time) (int, error) {
	return s.recentCalcs, nil
}

func (s *stubLedger) CountByReasonSince(ctx context.Context, reason ledger.Reason, since time.Time) (int, error) {
	return s.referrals, nil
}

// stubSessions implements query.SessionCounter.
type stubSessions int

func (s stubSessions) ActiveSessions() int { return int(s) }

// stubMetrics implements MetricsSource.
type stubMetrics struct{}

func (stubMetrics) MetricsSnapshot() *middleware.MetricsSnapshot {
	return &middleware.MetricsSnapshot{}
}

func testRegistry(t *testing.T) *university.Registry {
	t.Helper()

	registry, err := university.NewRegistry([]university.University{
		{ID: "unilag", Name: "University of Lagos", Method: scoring.MethodScoreAdmissionCredentials},
		{ID: "unical", Name: "University of Calabar", Method: scoring.MethodScoreOnly},
		{ID: "unn", Name: "University of Nigeria Nsukka", Method: scoring.MethodScorePlusAdmissionTest},
	})
	require.NoError(t, err)
	return registry
}

func newTestServer(t *testing.T, config Config) *Server {
	t.Helper()

	stats := query.NewGetUsageStatsHandler(
		&stubUsers{total: 7, recent: 2},
		&stubLedger{calculations: 30, recentCalcs: 5, referrals: 3},
		stubSessions(4),
		nil,
	)

	return NewServer(config, Dependencies{
		StatsQuery: stats,
		Registry:   testRegistry(t),
		Metrics:    stubMetrics{},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func doRequest(t *testing.T, s *Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestServerRootListsEndpoints(t *testing.T) {
	s := newTestServer(t, DefaultConfig())

	rec := doRequest(t, s, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.Equal(t, true, envelope["success"])

	data := envelope["data"].(map[string]interface{})
	endpoints := data["endpoints"].(map[string]interface{})
	assert.Equal(t, "/api/v1/universities", endpoints["universities"])
	assert.Equal(t, "/api/v1/stats", endpoints["stats"])
}

func TestServerUnknownPathReturns404(t *testing.T) {
	s := newTestServer(t, DefaultConfig())

	rec := doRequest(t, s, http.MethodGet, "/nope", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeEnvelope(t, rec)
	require.Equal(t, false, envelope["success"])
}

func TestServerHealthWithoutChecker(t *testing.T) {
	s := newTestServer(t, DefaultConfig())

	for _, path := range []string{"/health", "/healthz", "/live"} {
		rec := doRequest(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServerHealthReportsFailingCheck(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(ctx context.Context) error {
		return context.DeadlineExceeded
	})

	stats := query.NewGetUsageStatsHandler(&stubUsers{}, &stubLedger{}, stubSessions(0), nil)
	s := NewServer(DefaultConfig(), Dependencies{
		StatsQuery:    stats,
		Registry:      testRegistry(t),
		HealthChecker: checker,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerStatsRequiresAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("ops-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	config := DefaultConfig()
	config.APIKeyHashes = []string{string(hash)}
	s := newTestServer(t, config)

	// No key
	rec := doRequest(t, s, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key
	rec = doRequest(t, s, http.MethodGet, "/api/v1/stats", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct key via the configured header
	rec = doRequest(t, s, http.MethodGet, "/api/v1/stats", map[string]string{"X-API-Key": "ops-secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]interface{})
	assert.Equal(t, float64(7), data["total_users"])
	assert.Equal(t, float64(30), data["total_calculations"])
	assert.Equal(t, float64(2), data["new_users"])
	assert.Equal(t, float64(5), data["calculations"])
	assert.Equal(t, float64(3), data["referral_credits"])
	assert.Equal(t, float64(4), data["active_sessions"])

	// Correct key via Authorization: Bearer
	rec = doRequest(t, s, http.MethodGet, "/api/v1/stats", map[string]string{"Authorization": "Bearer ops-secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerStatsUnregisteredWithoutKeys(t *testing.T) {
	s := newTestServer(t, DefaultConfig())

	// Without configured key hashes the route is never registered,
	// so the request falls through to the root catch-all.
	rec := doRequest(t, s, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerStatsRejectsBadWindow(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("ops-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	config := DefaultConfig()
	config.APIKeyHashes = []string{string(hash)}
	s := newTestServer(t, config)

	auth := map[string]string{"X-API-Key": "ops-secret"}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/stats?window=banana", auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/stats?window=-5m", auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/stats?window=1h", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]interface{})
	assert.Equal(t, float64(time.Hour), data["window"])
}

func TestServerUniversitiesPaging(t *testing.T) {
	s := newTestServer(t, DefaultConfig())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/universities?page=1&per_page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	entries := envelope["data"].([]interface{})
	require.Len(t, entries, 2)

	first := entries[0].(map[string]interface{})
	assert.Equal(t, "unilag", first["id"])
	assert.Equal(t, "University of Lagos", first["name"])
	assert.NotEmpty(t, first["method"])

	meta := envelope["meta"].(map[string]interface{})
	assert.Equal(t, float64(3), meta["total_count"])
	assert.Equal(t, true, meta["has_more"])

	rec = doRequest(t, s, http.MethodGet, "/api/v1/universities?page=2&per_page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	envelope = decodeEnvelope(t, rec)
	entries = envelope["data"].([]interface{})
	require.Len(t, entries, 1)

	meta = envelope["meta"].(map[string]interface{})
	_, hasMore := meta["has_more"]
	assert.False(t, hasMore, "has_more is omitted when false")
}

func TestServerMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, DefaultConfig())

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	data := envelope["data"].(map[string]interface{})
	assert.Contains(t, data, "server")
	assert.Contains(t, data, "bot")
}

func TestServerEchoesRequestID(t *testing.T) {
	s := newTestServer(t, DefaultConfig())

	rec := doRequest(t, s, http.MethodGet, "/health", map[string]string{"X-Request-ID": "fixed-id"})
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))

	rec = doRequest(t, s, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerSetsSecurityHeaders(t *testing.T) {
	s := newTestServer(t, DefaultConfig())

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestServerRateLimitsByIP(t *testing.T) {
	config := DefaultConfig()
	config.RateLimitPerMinute = 2
	s := newTestServer(t, config)

	for i := 0; i < 2; i++ {
		rec := doRequest(t, s, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}
