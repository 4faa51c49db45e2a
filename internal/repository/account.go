package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-image-bot/internal/model"
)

const accountColumns = `user_id, username, role, daily_count, total_credits, last_reset,
		has_claimed_referral, referred_by, created_at, updated_at`

// AccountRepository handles account persistence in PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

var _ AccountStore = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var acc model.Account
	err := row.Scan(
		&acc.UserID,
		&acc.Username,
		&acc.Role,
		&acc.DailyCount,
		&acc.TotalCredits,
		&acc.LastReset,
		&acc.HasClaimedReferral,
		&acc.ReferredBy,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// CreateAccount inserts a new account.
// Returns ErrAccountExists if another request created it first.
func (r *AccountRepository) CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error) {
	const query = `
		INSERT INTO accounts (user_id, username, role, daily_count, total_credits, last_reset,
			has_claimed_referral, referred_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + accountColumns

	created, err := scanAccount(conn(ctx, r.pool).QueryRow(ctx, query,
		acc.UserID, acc.Username, acc.Role, acc.DailyCount, acc.TotalCredits, acc.LastReset,
		acc.HasClaimedReferral, acc.ReferredBy,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return created, nil
}

// GetAccount retrieves an account by Telegram user ID.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`

	acc, err := scanAccount(conn(ctx, r.pool).QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, nil
}

// AdjustCredits adds delta (possibly negative) to the account's credits.
func (r *AccountRepository) AdjustCredits(ctx context.Context, userID, delta int64) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET total_credits = total_credits + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	acc, err := scanAccount(conn(ctx, r.pool).QueryRow(ctx, query, userID, delta))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to adjust credits: %w", err)
	}

	return acc, nil
}

// SpendCredit takes one credit if the account has any.
func (r *AccountRepository) SpendCredit(ctx context.Context, userID int64) (bool, error) {
	const query = `
		UPDATE accounts
		SET total_credits = total_credits - 1, updated_at = NOW()
		WHERE user_id = $1 AND total_credits > 0
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("failed to spend credit: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// RollDailyCounterIfStale zeroes the daily counter when the stored date is not today.
func (r *AccountRepository) RollDailyCounterIfStale(ctx context.Context, userID int64, today string) (bool, error) {
	const query = `
		UPDATE accounts
		SET daily_count = 0, last_reset = $2, updated_at = NOW()
		WHERE user_id = $1 AND last_reset <> $2
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query, userID, today)
	if err != nil {
		return false, fmt.Errorf("failed to roll daily counter: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// IncrementDailyCount adds one to the daily counter.
func (r *AccountRepository) IncrementDailyCount(ctx context.Context, userID int64) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET daily_count = daily_count + 1, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	acc, err := scanAccount(conn(ctx, r.pool).QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to increment daily count: %w", err)
	}

	return acc, nil
}

// SetRole sets the role of seed.UserID, inserting seed when the account is absent.
// An existing account only has its role changed.
func (r *AccountRepository) SetRole(ctx context.Context, seed *model.Account) error {
	const query = `
		INSERT INTO accounts (user_id, username, role, daily_count, total_credits, last_reset,
			has_claimed_referral, referred_by, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, FALSE, NULL, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET role = EXCLUDED.role, updated_at = NOW()
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		seed.UserID, seed.Username, seed.Role, seed.TotalCredits, seed.LastReset)
	if err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}

	return nil
}

// UpdateRole changes the role of an existing account.
func (r *AccountRepository) UpdateRole(ctx context.Context, userID int64, role model.Role) error {
	const query = `
		UPDATE accounts
		SET role = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// MarkReferralClaimed sets has_claimed_referral once; later calls return false.
func (r *AccountRepository) MarkReferralClaimed(ctx context.Context, userID int64) (bool, error) {
	const query = `
		UPDATE accounts
		SET has_claimed_referral = TRUE, updated_at = NOW()
		WHERE user_id = $1 AND has_claimed_referral = FALSE
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("failed to mark referral claimed: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// UpdateUsername updates an account's username.
// This is useful when a user changes their Telegram username.
func (r *AccountRepository) UpdateUsername(ctx context.Context, userID int64, username string) error {
	const query = `
		UPDATE accounts
		SET username = $2, updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := conn(ctx, r.pool).Exec(ctx, query, userID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// ListAccounts returns every account, oldest first.
func (r *AccountRepository) ListAccounts(ctx context.Context) ([]model.AccountSummary, error) {
	const query = `
		SELECT user_id, username, role
		FROM accounts
		ORDER BY created_at ASC, user_id ASC
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.AccountSummary
	for rows.Next() {
		var s model.AccountSummary
		if err := rows.Scan(&s.UserID, &s.Username, &s.Role); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// CountByRole returns the number of accounts per role.
func (r *AccountRepository) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	const query = `SELECT role, COUNT(*) FROM accounts GROUP BY role`

	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Role]int64)
	for rows.Next() {
		var role model.Role
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("failed to scan role count: %w", err)
		}
		counts[role] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role counts: %w", err)
	}

	return counts, nil
}
