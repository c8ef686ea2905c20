// Package ledger содержит доменную модель баланса расчётных баллов.
// Баланс - это сумма дельт всех проведённых транзакций: списания за
// расчёты, стартовый бонус и реферальные начисления. Транзакции
// только добавляются, история никогда не переписывается.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// UserID представляет Telegram-идентификатор владельца баланса.
type UserID int64

// IsValid проверяет, что UserID положительный.
func (u UserID) IsValid() bool {
	return u > 0
}

// Points представляет количество расчётных баллов.
// Используется и для баланса, и для дельты транзакции.
type Points int64

// Add складывает баллы.
func (p Points) Add(delta Points) Points {
	return p + delta
}

// IsPositive возвращает true, если баллов больше нуля.
func (p Points) IsPositive() bool {
	return p > 0
}

// ══════════════════════════════════════════════════════════════════════════════
// REASON
// Причина транзакции. Хранится строкой, чтобы история оставалась
// читаемой прямо в базе.
// ══════════════════════════════════════════════════════════════════════════════

// Reason описывает причину изменения баланса.
type Reason string

const (
	// ReasonSignupBonus - стартовый бонус при первом контакте.
	ReasonSignupBonus Reason = "signup_bonus"

	// ReasonReferralBonus - бонус за приведённого пользователя.
	ReasonReferralBonus Reason = "referral_bonus"

	// reasonCalculationPrefix - префикс причины списания за расчёт.
	reasonCalculationPrefix = "calculation"

	// standardInstitution - заполнитель вуза для стандартного расчёта.
	standardInstitution = "-"
)

// CalculationReasonPrefix - префикс причин расчёта в том виде, в каком
// они хранятся. Нужен хранилищу для фильтрации по LIKE.
const CalculationReasonPrefix = reasonCalculationPrefix + ":"

// CalculationReason строит причину списания за расчёт.
// Формат: "calculation:<вуз>:<метод>". Для стандартного расчёта без
// привязки к вузу подставляется "-".
func CalculationReason(institution, method string) Reason {
	if institution == "" {
		institution = standardInstitution
	}
	return Reason(fmt.Sprintf("%s:%s:%s", reasonCalculationPrefix, institution, method))
}

// IsCalculation возвращает true для причин списания за расчёт.
func (r Reason) IsCalculation() bool {
	return strings.HasPrefix(string(r), CalculationReasonPrefix)
}

// CalculationParts разбирает причину расчёта обратно на вуз и метод.
// ok == false, если причина не является расчётом.
func (r Reason) CalculationParts() (institution, method string, ok bool) {
	parts := strings.SplitN(string(r), ":", 3)
	if len(parts) != 3 || parts[0] != reasonCalculationPrefix {
		return "", "", false
	}
	if parts[1] == standardInstitution {
		return "", parts[2], true
	}
	return parts[1], parts[2], true
}

// String реализует fmt.Stringer.
func (r Reason) String() string {
	return string(r)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidTransactionID - пустой идентификатор транзакции.
	ErrInvalidTransactionID = errors.New("invalid transaction id: cannot be empty")

	// ErrInvalidUserID - невалидный идентификатор владельца баланса.
	ErrInvalidUserID = errors.New("invalid user id: must be positive")

	// ErrZeroDelta - транзакция с нулевой дельтой не имеет смысла.
	ErrZeroDelta = errors.New("transaction delta cannot be zero")

	// ErrEmptyReason - транзакция без причины.
	ErrEmptyReason = errors.New("transaction reason cannot be empty")

	// ErrBalanceNotFound - баланс пользователя не найден.
	ErrBalanceNotFound = errors.New("balance not found")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

// Transaction - одно изменение баланса. Запись неизменяема.
type Transaction struct {
	// ID - уникальный идентификатор транзакции (UUID в строковом формате).
	ID string

	// UserID - владелец баланса.
	UserID UserID

	// Delta - изменение баланса. Положительная для начислений,
	// отрицательная для списаний. Никогда не равна нулю.
	Delta Points

	// Reason - причина изменения.
	Reason Reason

	// CreatedAt - время проведения транзакции.
	CreatedAt time.Time
}

// NewTransactionParams содержит параметры для создания транзакции.
type NewTransactionParams struct {
	ID     string
	UserID UserID
	Delta  Points
	Reason Reason
}

// NewTransaction создаёт транзакцию с валидацией всех полей.
func NewTransaction(params NewTransactionParams) (*Transaction, error) {
	if params.ID == "" {
		return nil, ErrInvalidTransactionID
	}
	if !params.UserID.IsValid() {
		return nil, ErrInvalidUserID
	}
	if params.Delta == 0 {
		return nil, ErrZeroDelta
	}
	if strings.TrimSpace(string(params.Reason)) == "" {
		return nil, ErrEmptyReason
	}

	return &Transaction{
		ID:        params.ID,
		UserID:    params.UserID,
		Delta:     params.Delta,
		Reason:    params.Reason,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsCredit возвращает true для начислений.
func (t *Transaction) IsCredit() bool {
	return t.Delta > 0
}

// String возвращает строковое представление для логирования.
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, UserID: %d, Delta: %+d, Reason: %s}",
		t.ID, t.UserID, t.Delta, t.Reason)
}
