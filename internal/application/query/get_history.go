// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HISTORY QUERY
// Получает последние транзакции пользователя с текущим балансом.
// Это запрос для команды /history - показывает "куда ушли мои очки".
// ══════════════════════════════════════════════════════════════════════════════

// MaxHistoryLimit - верхняя граница размера выборки истории.
const MaxHistoryLimit = 100

// GetHistoryQuery содержит параметры запроса истории начислений.
type GetHistoryQuery struct {
	// UserID - Telegram ID владельца истории.
	UserID int64

	// Limit - сколько последних транзакций вернуть
	// (0 = ledger.DefaultHistoryLimit).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *GetHistoryQuery) Validate() error {
	if q.UserID <= 0 {
		return errors.New("user_id must be positive")
	}
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = ledger.DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	return nil
}

// HistoryEntryDTO - одна транзакция в истории пользователя.
type HistoryEntryDTO struct {
	// Delta - изменение баланса (отрицательное для списаний).
	Delta int64 `json:"delta"`

	// Credit - true для начислений.
	Credit bool `json:"credit"`

	// Reason - причина транзакции, как она записана в леджере.
	Reason string `json:"reason"`

	// Institution - вуз расчёта (пусто для стандартного расчёта
	// и для нерасчётных транзакций).
	Institution string `json:"institution,omitempty"`

	// Method - вариант расчёта (пусто для нерасчётных транзакций).
	Method string `json:"method,omitempty"`

	// CreatedAt - когда транзакция была проведена.
	CreatedAt time.Time `json:"created_at"`
}

// GetHistoryResult содержит историю начислений пользователя.
type GetHistoryResult struct {
	// UserID - владелец истории.
	UserID int64 `json:"user_id"`

	// Balance - текущий баланс после всех транзакций.
	Balance int64 `json:"balance"`

	// Entries - транзакции от новых к старым.
	Entries []HistoryEntryDTO `json:"entries"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetHistoryHandler обрабатывает запросы истории начислений.
type GetHistoryHandler struct {
	points ledger.Ledger
}

// NewGetHistoryHandler создаёт новый обработчик.
func NewGetHistoryHandler(points ledger.Ledger) *GetHistoryHandler {
	return &GetHistoryHandler{points: points}
}

// Handle выполняет запрос истории начислений.
func (h *GetHistoryHandler) Handle(ctx context.Context, query GetHistoryQuery) (*GetHistoryResult, error) {
	// Валидация
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetHistory", shared.ErrValidation, err.Error(), err)
	}

	userID := ledger.UserID(query.UserID)

	// Баланс: у пользователя без единой транзакции он равен нулю.
	balance, err := h.points.Balance(ctx, userID)
	if err != nil {
		if !errors.Is(err, ledger.ErrBalanceNotFound) {
			return nil, shared.WrapError("query", "GetHistory", shared.ErrExternalService, "failed to load balance", err)
		}
		balance = 0
	}

	// Последние транзакции, от новых к старым.
	txs, err := h.points.History(ctx, userID, query.Limit)
	if err != nil {
		return nil, shared.WrapError("query", "GetHistory", shared.ErrExternalService, "failed to load history", err)
	}

	entries := make([]HistoryEntryDTO, len(txs))
	for i, tx := range txs {
		entries[i] = buildHistoryEntry(tx)
	}

	return &GetHistoryResult{
		UserID:      query.UserID,
		Balance:     int64(balance),
		Entries:     entries,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// buildHistoryEntry формирует DTO из доменной транзакции.
func buildHistoryEntry(tx *ledger.Transaction) HistoryEntryDTO {
	entry := HistoryEntryDTO{
		Delta:     int64(tx.Delta),
		Credit:    tx.IsCredit(),
		Reason:    string(tx.Reason),
		CreatedAt: tx.CreatedAt,
	}
	if institution, method, ok := tx.Reason.CalculationParts(); ok {
		entry.Institution = institution
		entry.Method = method
	}
	return entry
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMAT HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// FormatDelta форматирует изменение баланса со знаком.
func FormatDelta(delta int64) string {
	return fmt.Sprintf("%+d", delta)
}

// FormatEntryReason форматирует причину транзакции для отображения.
func FormatEntryReason(entry HistoryEntryDTO) string {
	switch {
	case entry.Reason == string(ledger.ReasonSignupBonus):
		return "Signup bonus"
	case entry.Reason == string(ledger.ReasonReferralBonus):
		return "Referral bonus"
	case entry.Method != "":
		label := "Calculation"
		if entry.Institution != "" {
			label += " (" + strings.ToUpper(entry.Institution) + ")"
		}
		return label
	default:
		return entry.Reason
	}
}
