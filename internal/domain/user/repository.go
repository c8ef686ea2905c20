package user

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракты хранилища пользователей. Реализации находятся в
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над пользователями.
type Repository interface {
	// CreateIfAbsent сохраняет пользователя при первом контакте.
	// Возвращает true, если пользователь действительно создан, и false,
	// если запись уже существовала. Повторный вызов безопасен.
	CreateIfAbsent(ctx context.Context, u *User) (created bool, err error)

	// GetByTelegramID возвращает пользователя по Telegram ID.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetByTelegramID(ctx context.Context, id TelegramID) (*User, error)

	// ListIDs возвращает идентификаторы всех пользователей.
	// Используется рассылкой и админской статистикой.
	ListIDs(ctx context.Context) ([]TelegramID, error)

	// Count возвращает общее количество пользователей.
	Count(ctx context.Context) (int, error)

	// CountSince возвращает количество пользователей,
	// зарегистрированных начиная с указанного момента.
	CountSince(ctx context.Context, since time.Time) (int, error)

	// CountReferredBy возвращает, скольких пользователей привёл referrer.
	CountReferredBy(ctx context.Context, referrer TelegramID) (int, error)
}

// ReferralRepository определяет атомарную операцию реферальной программы.
type ReferralRepository interface {
	// Claim отмечает referee как приведённого referrer-ом и начисляет
	// бонус в одной транзакции. Проверка и запись атомарны: из двух
	// конкурентных вызовов выигрывает ровно один.
	//
	// Возвращает false без ошибки, если отметка не произошла: referee
	// уже приведён, referrer неизвестен или совпадает с referee.
	Claim(ctx context.Context, referee, referrer TelegramID) (claimed bool, err error)
}

// Cache определяет кеш признака "пользователь уже знаком боту".
// Нужен только чтобы не ходить в базу на каждое сообщение;
// промах кеша всегда безопасен.
type Cache interface {
	// IsKnown проверяет, отмечен ли пользователь в кеше.
	IsKnown(ctx context.Context, id TelegramID) (bool, error)

	// MarkKnown отмечает пользователя в кеше на время ttl.
	MarkKnown(ctx context.Context, id TelegramID, ttl time.Duration) error
}
