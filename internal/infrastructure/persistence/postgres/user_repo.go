package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements user.Repository for PostgreSQL.
type UserRepository struct {
	conn        *Connection
	signupBonus ledger.Points
}

// NewUserRepository creates a new UserRepository. signupBonus is credited
// to every freshly created user (0 disables the bonus).
func NewUserRepository(conn *Connection, signupBonus ledger.Points) *UserRepository {
	return &UserRepository{conn: conn, signupBonus: signupBonus}
}

// CreateIfAbsent saves a user on first contact. The user row, the balance
// row and the signup bonus transaction are written atomically: a repeated
// call for a known user touches nothing and reports created=false.
func (r *UserRepository) CreateIfAbsent(ctx context.Context, u *user.User) (bool, error) {
	insertUser := `
		INSERT INTO users (telegram_id, username, first_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (telegram_id) DO NOTHING
	`
	insertBalance := `
		INSERT INTO balances (user_id, points, updated_at)
		VALUES ($1, $2, NOW())
	`
	insertBonus := `
		INSERT INTO transactions (id, user_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	created := false
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, insertUser,
			u.TelegramID.Int64(),
			u.Username,
			u.FirstName,
			u.CreatedAt,
			u.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		if result.RowsAffected() == 0 {
			return nil // already known
		}
		created = true

		if _, err := tx.Exec(ctx, insertBalance, u.TelegramID.Int64(), int64(r.signupBonus)); err != nil {
			return fmt.Errorf("failed to create balance: %w", err)
		}

		if r.signupBonus != 0 {
			_, err := tx.Exec(ctx, insertBonus,
				uuid.NewString(),
				u.TelegramID.Int64(),
				int64(r.signupBonus),
				string(ledger.ReasonSignupBonus),
			)
			if err != nil {
				return fmt.Errorf("failed to record signup bonus: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to register user: %w", err)
	}

	return created, nil
}

// GetByTelegramID returns a user by Telegram ID.
func (r *UserRepository) GetByTelegramID(ctx context.Context, id user.TelegramID) (*user.User, error) {
	query := `
		SELECT telegram_id, username, first_name, referred_by, referred, created_at, updated_at
		FROM users
		WHERE telegram_id = $1
	`

	row := r.conn.QueryRow(ctx, query, id.Int64())
	return r.scanUser(row)
}

// ListIDs returns the Telegram IDs of all users, oldest first.
func (r *UserRepository) ListIDs(ctx context.Context) ([]user.TelegramID, error) {
	rows, err := r.conn.Query(ctx, "SELECT telegram_id FROM users ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var ids []user.TelegramID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, user.TelegramID(id))
	}

	return ids, rows.Err()
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CountSince returns the number of users registered at or after the given time.
func (r *UserRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE created_at >= $1", since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users since %s: %w", since.Format(time.RFC3339), err)
	}
	return count, nil
}

// CountReferredBy returns how many users the referrer has brought in.
func (r *UserRepository) CountReferredBy(ctx context.Context, referrer user.TelegramID) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE referred_by = $1", referrer.Int64()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return count, nil
}

// scanUser scans a single user from a row.
func (r *UserRepository) scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	var telegramID int64
	var referredBy *int64

	err := row.Scan(
		&telegramID,
		&u.Username,
		&u.FirstName,
		&referredBy,
		&u.Referred,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if IsNoRows(err) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.TelegramID = user.TelegramID(telegramID)
	if referredBy != nil {
		ref := user.TelegramID(*referredBy)
		u.ReferredBy = &ref
	}

	return &u, nil
}
