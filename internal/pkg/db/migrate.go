package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations are applied in order; every statement is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "accounts table",
		sql: `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			role VARCHAR(16) NOT NULL DEFAULT 'user'
				CHECK (role IN ('user', 'admin', 'whitelist')),
			daily_count BIGINT NOT NULL DEFAULT 0 CHECK (daily_count >= 0),
			total_credits BIGINT NOT NULL DEFAULT 0,
			last_reset VARCHAR(10) NOT NULL,
			has_claimed_referral BOOLEAN NOT NULL DEFAULT FALSE,
			referred_by BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_role ON accounts(role);
		`,
	},
	{
		name: "referral_codes table",
		sql: `
		CREATE TABLE IF NOT EXISTS referral_codes (
			code VARCHAR(32) PRIMARY KEY,
			generated_by BIGINT NOT NULL,
			used BOOLEAN NOT NULL DEFAULT FALSE,
			used_by BIGINT,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_referral_codes_expires ON referral_codes(expires_at);
		`,
	},
	{
		name: "credit_codes table",
		sql: `
		CREATE TABLE IF NOT EXISTS credit_codes (
			code VARCHAR(64) PRIMARY KEY,
			amount BIGINT NOT NULL CHECK (amount > 0),
			generated_by BIGINT NOT NULL,
			used BOOLEAN NOT NULL DEFAULT FALSE,
			used_by BIGINT,
			used_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		`,
	},
	{
		name: "transactions table",
		sql: `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES accounts(user_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
		`,
	},
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", i+1, m.name, err)
		}
		log.Info().Int("migration", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
