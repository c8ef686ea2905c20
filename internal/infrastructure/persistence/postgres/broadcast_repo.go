package postgres

import (
	"context"
	"fmt"

	"github.com/admit-hub/admission-calc-bot/internal/application/broadcast"
)

// ══════════════════════════════════════════════════════════════════════════════
// BROADCAST REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// defaultBroadcastListLimit bounds List when no limit is given.
const defaultBroadcastListLimit = 10

// BroadcastRepository implements broadcast.Repository for PostgreSQL.
type BroadcastRepository struct {
	conn *Connection
}

// NewBroadcastRepository creates a new BroadcastRepository.
func NewBroadcastRepository(conn *Connection) *BroadcastRepository {
	return &BroadcastRepository{conn: conn}
}

// Save stores one broadcast audit record.
func (r *BroadcastRepository) Save(ctx context.Context, rec *broadcast.Record) error {
	query := `
		INSERT INTO broadcasts (id, admin_id, message, recipients, delivered, failed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID,
		rec.AdminID,
		rec.Message,
		rec.Recipients,
		rec.Delivered,
		rec.Failed,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save broadcast record: %w", err)
	}

	return nil
}

// List returns the most recent broadcast records, newest first.
func (r *BroadcastRepository) List(ctx context.Context, limit int) ([]*broadcast.Record, error) {
	if limit <= 0 {
		limit = defaultBroadcastListLimit
	}

	query := `
		SELECT id, admin_id, message, recipients, delivered, failed, created_at
		FROM broadcasts
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcasts: %w", err)
	}
	defer rows.Close()

	var records []*broadcast.Record
	for rows.Next() {
		var rec broadcast.Record
		err := rows.Scan(
			&rec.ID,
			&rec.AdminID,
			&rec.Message,
			&rec.Recipients,
			&rec.Delivered,
			&rec.Failed,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan broadcast record: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}
