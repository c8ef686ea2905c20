package ledger

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER INTERFACE
// Контракт хранилища баланса. Реализация находится в
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultHistoryLimit - количество записей истории по умолчанию.
const DefaultHistoryLimit = 25

// Ledger определяет операции над балансом и историей транзакций.
type Ledger interface {
	// Apply атомарно записывает транзакцию и обновляет баланс,
	// возвращая новое значение. Запись транзакции и обновление
	// баланса неразделимы: либо происходит и то и другое, либо ничего.
	//
	// Конкурентные Apply для одного пользователя не теряют дельт:
	// баланс всегда равен сумме всех записанных транзакций.
	Apply(ctx context.Context, tx *Transaction) (newBalance Points, err error)

	// Balance возвращает текущий баланс с учётом всех проведённых
	// транзакций. Возвращает ErrBalanceNotFound для неизвестного
	// пользователя.
	Balance(ctx context.Context, userID UserID) (Points, error)

	// History возвращает последние транзакции пользователя,
	// от новых к старым, не более limit штук. При limit <= 0
	// используется DefaultHistoryLimit.
	History(ctx context.Context, userID UserID, limit int) ([]*Transaction, error)

	// CalculationCount возвращает общее количество проведённых
	// расчётов по всем пользователям.
	CalculationCount(ctx context.Context) (int, error)

	// CalculationCountSince возвращает количество расчётов,
	// проведённых начиная с указанного момента.
	CalculationCountSince(ctx context.Context, since time.Time) (int, error)

	// CountByReasonSince возвращает количество транзакций с данной
	// причиной начиная с указанного момента.
	CountByReasonSince(ctx context.Context, reason Reason, since time.Time) (int, error)
}
