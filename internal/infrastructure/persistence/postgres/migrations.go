// Package postgres implements the PostgreSQL persistence layer for the
// admission calculator bot.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE USERS AND LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create users, balances and transactions tables
-- Version: 001

-- Users known to the bot. telegram_id doubles as the primary key:
-- the bot has no identity of its own beyond Telegram.
CREATE TABLE IF NOT EXISTS users (
    telegram_id BIGINT PRIMARY KEY,
    username VARCHAR(64) NOT NULL DEFAULT '',
    first_name VARCHAR(128) NOT NULL DEFAULT '',
    referred_by BIGINT REFERENCES users(telegram_id) ON DELETE SET NULL,
    referred BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Constraints for data integrity
    CONSTRAINT valid_telegram_id CHECK (telegram_id > 0),
    CONSTRAINT no_self_referral CHECK (referred_by IS NULL OR referred_by != telegram_id)
);

CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by) WHERE referred_by IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at DESC);

-- Current point balance per user. Kept as a separate row so that
-- crediting and debiting is a single-row UPDATE under row lock.
CREATE TABLE IF NOT EXISTS balances (
    user_id BIGINT PRIMARY KEY REFERENCES users(telegram_id) ON DELETE CASCADE,
    points BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Append-only ledger. The balance always equals the sum of deltas
-- for the user; every credit and debit lands here.
CREATE TABLE IF NOT EXISTS transactions (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
    delta BIGINT NOT NULL,
    reason VARCHAR(160) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT nonzero_delta CHECK (delta != 0),
    CONSTRAINT nonempty_reason CHECK (reason != '')
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_reason ON transactions(reason);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC);

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_users_updated_at ON users;
CREATE TRIGGER update_users_updated_at
    BEFORE UPDATE ON users
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();

DROP TRIGGER IF EXISTS update_balances_updated_at ON balances;
CREATE TRIGGER update_balances_updated_at
    BEFORE UPDATE ON balances
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_balances_updated_at ON balances;
DROP TRIGGER IF EXISTS update_users_updated_at ON users;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS transactions;
DROP TABLE IF EXISTS balances;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE BROADCASTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create broadcast audit table
-- Version: 002
-- Purpose: Keep a record of every admin announcement and its outcome

CREATE TABLE IF NOT EXISTS broadcasts (
    id UUID PRIMARY KEY,
    admin_id BIGINT NOT NULL,
    message TEXT NOT NULL,
    recipients INTEGER NOT NULL DEFAULT 0,
    delivered INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT nonempty_message CHECK (message != ''),
    CONSTRAINT valid_counts CHECK (delivered >= 0 AND failed >= 0 AND recipients >= 0)
);

CREATE INDEX IF NOT EXISTS idx_broadcasts_created_at ON broadcasts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_broadcasts_admin ON broadcasts(admin_id);
`

const migration002Down = `
DROP TABLE IF EXISTS broadcasts;
`

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Migration pairs a schema version with its forward and rollback SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// GetMigrations returns every schema migration in apply order.
// Versions are consecutive starting at 1.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_users_and_ledger",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_broadcasts",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}
