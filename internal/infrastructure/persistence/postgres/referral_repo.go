package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/admit-hub/admission-calc-bot/internal/domain/ledger"
	"github.com/admit-hub/admission-calc-bot/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFERRAL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ReferralRepository implements user.ReferralRepository for PostgreSQL.
type ReferralRepository struct {
	conn  *Connection
	bonus ledger.Points
}

// NewReferralRepository creates a new ReferralRepository. bonus is credited
// to the referrer on a successful claim (0 disables the credit).
func NewReferralRepository(conn *Connection, bonus ledger.Points) *ReferralRepository {
	return &ReferralRepository{conn: conn, bonus: bonus}
}

// Claim marks the referee as referred and credits the referrer in one
// database transaction. The conditional UPDATE carries the whole
// at-most-once guarantee: of two concurrent claims for the same referee
// exactly one flips the referred flag, the other matches zero rows.
func (r *ReferralRepository) Claim(ctx context.Context, referee, referrer user.TelegramID) (bool, error) {
	claim := `
		UPDATE users
		SET referred = TRUE, referred_by = $2
		WHERE telegram_id = $1
		  AND referred = FALSE
		  AND referred_by IS NULL
		  AND telegram_id != $2
		  AND EXISTS (SELECT 1 FROM users u WHERE u.telegram_id = $2)
	`
	credit := `
		INSERT INTO balances (user_id, points, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET points = balances.points + EXCLUDED.points, updated_at = NOW()
	`
	record := `
		INSERT INTO transactions (id, user_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	claimed := false
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, claim, referee.Int64(), referrer.Int64())
		if err != nil {
			return fmt.Errorf("failed to mark referral: %w", err)
		}
		if result.RowsAffected() == 0 {
			return nil // already referred, self referral or unknown referrer
		}
		claimed = true

		if r.bonus == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, credit, referrer.Int64(), int64(r.bonus)); err != nil {
			return fmt.Errorf("failed to credit referrer: %w", err)
		}

		_, err = tx.Exec(ctx, record,
			uuid.NewString(),
			referrer.Int64(),
			int64(r.bonus),
			string(ledger.ReasonReferralBonus),
		)
		if err != nil {
			return fmt.Errorf("failed to record referral bonus: %w", err)
		}

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim referral: %w", err)
	}

	return claimed, nil
}
