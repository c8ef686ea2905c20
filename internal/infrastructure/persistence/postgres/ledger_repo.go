package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements ledger.Ledger for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// Apply records the transaction and updates the balance atomically.
// The balance upsert takes a row lock, so concurrent applies for the
// same user serialize and no delta is ever lost.
func (r *LedgerRepository) Apply(ctx context.Context, t *ledger.Transaction) (ledger.Points, error) {
	insert := `
		INSERT INTO transactions (id, user_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	upsert := `
		INSERT INTO balances (user_id, points, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET points = balances.points + EXCLUDED.points, updated_at = NOW()
		RETURNING points
	`

	var balance int64
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insert,
			t.ID,
			int64(t.UserID),
			int64(t.Delta),
			string(t.Reason),
			t.CreatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrDuplicateTxID
			}
			return fmt.Errorf("failed to insert transaction: %w", err)
		}

		if err := tx.QueryRow(ctx, upsert, int64(t.UserID), int64(t.Delta)).Scan(&balance); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to apply transaction: %w", err)
	}

	return ledger.Points(balance), nil
}

// Balance returns the current balance of a user.
func (r *LedgerRepository) Balance(ctx context.Context, userID ledger.UserID) (ledger.Points, error) {
	var points int64
	err := r.conn.QueryRow(ctx, "SELECT points FROM balances WHERE user_id = $1", int64(userID)).Scan(&points)
	if IsNoRows(err) {
		return 0, ledger.ErrBalanceNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}
	return ledger.Points(points), nil
}

// History returns the latest transactions of a user, newest first.
func (r *LedgerRepository) History(ctx context.Context, userID ledger.UserID, limit int) ([]*ledger.Transaction, error) {
	if limit <= 0 {
		limit = ledger.DefaultHistoryLimit
	}

	query := `
		SELECT id, user_id, delta, reason, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, int64(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var txs []*ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		var uid, delta int64
		var reason string

		if err := rows.Scan(&t.ID, &uid, &delta, &reason, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		t.UserID = ledger.UserID(uid)
		t.Delta = ledger.Points(delta)
		t.Reason = ledger.Reason(reason)
		txs = append(txs, &t)
	}

	return txs, rows.Err()
}

// CalculationCount returns the all-time number of completed calculations.
func (r *LedgerRepository) CalculationCount(ctx context.Context) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE reason LIKE $1",
		ledger.CalculationReasonPrefix+"%",
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count calculations: %w", err)
	}
	return count, nil
}

// CalculationCountSince returns the number of calculations completed at or
// after the given time.
func (r *LedgerRepository) CalculationCountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE reason LIKE $1 AND created_at >= $2",
		ledger.CalculationReasonPrefix+"%",
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count calculations since %s: %w", since.Format(time.RFC3339), err)
	}
	return count, nil
}

// CountByReasonSince returns the number of transactions with the given
// reason at or after the given time.
func (r *LedgerRepository) CountByReasonSince(ctx context.Context, reason ledger.Reason, since time.Time) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM transactions WHERE reason = $1 AND created_at >= $2",
		string(reason),
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s transactions: %w", reason, err)
	}
	return count, nil
}
