// Package user содержит доменную модель пользователя бота.
// Пользователь создаётся при первом контакте и никогда не удаляется,
// его баланс и история расчётов живут в пакете ledger.
package user

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// TelegramID представляет уникальный идентификатор пользователя Telegram.
type TelegramID int64

// IsValid проверяет, что TelegramID положительный.
func (t TelegramID) IsValid() bool {
	return t > 0
}

// Int64 возвращает числовое значение идентификатора.
func (t TelegramID) Int64() int64 {
	return int64(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidTelegramID - невалидный Telegram ID.
	ErrInvalidTelegramID = errors.New("invalid telegram id: must be positive")

	// ErrUserNotFound - пользователь не найден.
	ErrUserNotFound = errors.New("user not found")

	// ErrSelfReferral - пользователь привёл сам себя.
	ErrSelfReferral = errors.New("self referral is not allowed")

	// ErrAlreadyReferred - пользователь уже отмечен как приведённый.
	ErrAlreadyReferred = errors.New("user is already referred")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER
// ══════════════════════════════════════════════════════════════════════════════

// User - пользователь бота.
type User struct {
	// TelegramID - идентификатор пользователя в Telegram.
	TelegramID TelegramID

	// Username - username в Telegram без "@". Может быть пустым.
	Username string

	// FirstName - имя из профиля Telegram.
	FirstName string

	// ReferredBy - кто привёл пользователя. nil, если пришёл сам.
	ReferredBy *TelegramID

	// Referred - отмечен ли пользователь как приведённый.
	// Выставляется не более одного раза за всю жизнь пользователя.
	Referred bool

	// CreatedAt - время первого контакта с ботом.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления записи.
	UpdatedAt time.Time
}

// NewUserParams содержит параметры для создания нового пользователя.
type NewUserParams struct {
	TelegramID TelegramID
	Username   string
	FirstName  string
}

// NewUser создаёт нового пользователя с валидацией полей.
func NewUser(params NewUserParams) (*User, error) {
	if !params.TelegramID.IsValid() {
		return nil, ErrInvalidTelegramID
	}

	now := time.Now().UTC()

	return &User{
		TelegramID: params.TelegramID,
		Username:   strings.TrimPrefix(strings.TrimSpace(params.Username), "@"),
		FirstName:  strings.TrimSpace(params.FirstName),
		ReferredBy: nil,
		Referred:   false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// DisplayName возвращает имя для обращения к пользователю в сообщениях.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("user %d", u.TelegramID)
}

// MarkReferredBy отмечает пользователя как приведённого.
// Правило строгое: не самим собой и не более одного раза.
func (u *User) MarkReferredBy(referrer TelegramID) error {
	if !referrer.IsValid() {
		return ErrInvalidTelegramID
	}
	if referrer == u.TelegramID {
		return ErrSelfReferral
	}
	if u.Referred {
		return ErrAlreadyReferred
	}

	r := referrer
	u.ReferredBy = &r
	u.Referred = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// String возвращает строковое представление для логирования.
func (u *User) String() string {
	return fmt.Sprintf("User{TelegramID: %d, Username: %s, Referred: %t}",
		u.TelegramID, u.Username, u.Referred)
}
