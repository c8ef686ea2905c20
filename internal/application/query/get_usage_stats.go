package query

import (
	"context"
	"errors"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/shared"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USAGE STATS QUERY
// Собирает сводку использования бота. Один и тот же запрос обслуживает
// команду /stats, админский HTTP-эндпоинт и ежедневный дайджест.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultStatsWindow - окно оконных счётчиков по умолчанию (сутки).
const DefaultStatsWindow = 24 * time.Hour

// statsCacheTTL - срок жизни кешированной сводки.
const statsCacheTTL = time.Minute

// SessionCounter отдаёт число активных диалогов расчёта.
type SessionCounter interface {
	ActiveSessions() int
}

// StatsCache - кеш готовой сводки. Реализация находится в
// infrastructure/persistence/redis; промах кеша всегда безопасен.
type StatsCache interface {
	// GetStats возвращает сохранённую сводку или nil при промахе.
	GetStats(ctx context.Context) (*UsageStatsResult, error)

	// SetStats сохраняет сводку на время ttl.
	SetStats(ctx context.Context, stats *UsageStatsResult, ttl time.Duration) error
}

// GetUsageStatsQuery содержит параметры запроса сводки.
type GetUsageStatsQuery struct {
	// Window - окно оконных счётчиков (0 = DefaultStatsWindow).
	Window time.Duration

	// SkipCache - пересчитать сводку мимо кеша.
	SkipCache bool
}

// Validate проверяет корректность параметров запроса.
func (q *GetUsageStatsQuery) Validate() error {
	if q.Window < 0 {
		return errors.New("window cannot be negative")
	}
	if q.Window == 0 {
		q.Window = DefaultStatsWindow
	}
	return nil
}

// UsageStatsResult - сводка использования бота.
type UsageStatsResult struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Накопительные счётчики
	// ─────────────────────────────────────────────────────────────────────────

	// TotalUsers - всего пользователей за всё время.
	TotalUsers int `json:"total_users"`

	// TotalCalculations - всего завершённых расчётов за всё время.
	TotalCalculations int `json:"total_calculations"`

	// ─────────────────────────────────────────────────────────────────────────
	// Оконные счётчики
	// ─────────────────────────────────────────────────────────────────────────

	// NewUsers - новых пользователей в окне.
	NewUsers int `json:"new_users"`

	// Calculations - завершённых расчётов в окне.
	Calculations int `json:"calculations"`

	// ReferralCredits - начислений реферального бонуса в окне.
	ReferralCredits int `json:"referral_credits"`

	// Window - размер окна.
	Window time.Duration `json:"window"`

	// ─────────────────────────────────────────────────────────────────────────
	// Мгновенное состояние
	// ─────────────────────────────────────────────────────────────────────────

	// ActiveSessions - диалогов расчёта, идущих прямо сейчас.
	ActiveSessions int `json:"active_sessions"`

	// GeneratedAt - время генерации сводки.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetUsageStatsHandler обрабатывает запросы сводки использования.
type GetUsageStatsHandler struct {
	users    user.Repository
	points   ledger.Ledger
	sessions SessionCounter
	cache    StatsCache
}

// NewGetUsageStatsHandler создаёт новый обработчик. Счётчик сессий и
// кеш опциональны: при nil сводка считается напрямую.
func NewGetUsageStatsHandler(
	users user.Repository,
	points ledger.Ledger,
	sessions SessionCounter,
	cache StatsCache,
) *GetUsageStatsHandler {
	return &GetUsageStatsHandler{
		users:    users,
		points:   points,
		sessions: sessions,
		cache:    cache,
	}
}

// Handle выполняет запрос сводки использования.
func (h *GetUsageStatsHandler) Handle(ctx context.Context, query GetUsageStatsQuery) (*UsageStatsResult, error) {
	// Валидация
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetUsageStats", shared.ErrValidation, err.Error(), err)
	}

	// Кешируется только сводка со стандартным окном.
	useCache := h.cache != nil && !query.SkipCache && query.Window == DefaultStatsWindow
	if useCache {
		if cached, err := h.cache.GetStats(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	since := time.Now().UTC().Add(-query.Window)

	// Накопительные счётчики
	totalUsers, err := h.users.Count(ctx)
	if err != nil {
		return nil, shared.WrapError("query", "GetUsageStats", shared.ErrExternalService, "failed to count users", err)
	}

	totalCalculations, err := h.points.CalculationCount(ctx)
	if err != nil {
		return nil, shared.WrapError("query", "GetUsageStats", shared.ErrExternalService, "failed to count calculations", err)
	}

	// Оконные счётчики некритичны: при ошибке остаются нулевыми.
	newUsers, err := h.users.CountSince(ctx, since)
	if err != nil {
		newUsers = 0
	}

	calculations, err := h.points.CalculationCountSince(ctx, since)
	if err != nil {
		calculations = 0
	}

	referralCredits, err := h.points.CountByReasonSince(ctx, ledger.ReasonReferralBonus, since)
	if err != nil {
		referralCredits = 0
	}

	// Активные диалоги
	activeSessions := 0
	if h.sessions != nil {
		activeSessions = h.sessions.ActiveSessions()
	}

	stats := &UsageStatsResult{
		TotalUsers:        totalUsers,
		TotalCalculations: totalCalculations,
		NewUsers:          newUsers,
		Calculations:      calculations,
		ReferralCredits:   referralCredits,
		Window:            query.Window,
		ActiveSessions:    activeSessions,
		GeneratedAt:       time.Now().UTC(),
	}

	// Обновляем кеш по возможности.
	if useCache {
		_ = h.cache.SetStats(ctx, stats, statsCacheTTL)
	}

	return stats, nil
}
