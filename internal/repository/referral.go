package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-image-bot/internal/model"
)

const referralColumns = `code, generated_by, used, used_by, expires_at, created_at`

// ReferralRepository handles referral code persistence in PostgreSQL.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

var _ ReferralStore = (*ReferralRepository)(nil)

// NewReferralRepository creates a new ReferralRepository instance.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

func scanReferral(row pgx.Row) (*model.ReferralCode, error) {
	var rc model.ReferralCode
	err := row.Scan(
		&rc.Code,
		&rc.GeneratedBy,
		&rc.Used,
		&rc.UsedBy,
		&rc.ExpiresAt,
		&rc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

// CreateReferralCode stores a freshly issued code.
func (r *ReferralRepository) CreateReferralCode(ctx context.Context, rc *model.ReferralCode) error {
	const query = `
		INSERT INTO referral_codes (code, generated_by, used, used_by, expires_at, created_at)
		VALUES ($1, $2, FALSE, NULL, $3, $4)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query, rc.Code, rc.GeneratedBy, rc.ExpiresAt, rc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create referral code: %w", err)
	}

	return nil
}

// GetReferralCode retrieves a referral code.
// Returns ErrCodeNotFound if the code does not exist.
func (r *ReferralRepository) GetReferralCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	const query = `SELECT ` + referralColumns + ` FROM referral_codes WHERE code = $1`

	rc, err := scanReferral(conn(ctx, r.pool).QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get referral code: %w", err)
	}

	return rc, nil
}

// MarkReferralUsed marks the code used by usedBy if it is still unused and unexpired at now.
func (r *ReferralRepository) MarkReferralUsed(ctx context.Context, code string, usedBy int64, now time.Time) (*model.ReferralCode, error) {
	const query = `
		UPDATE referral_codes
		SET used = TRUE, used_by = $2
		WHERE code = $1 AND used = FALSE AND expires_at > $3
		RETURNING ` + referralColumns

	rc, err := scanReferral(conn(ctx, r.pool).QueryRow(ctx, query, code, usedBy, now))
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to mark referral code used: %w", err)
	}

	// Lost the transition; report why
	current, err := r.GetReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if current.Used {
		return nil, ErrCodeUsed
	}
	return nil, ErrCodeExpired
}

// PurgeExpiredReferralCodes deletes codes that expired before the given time.
func (r *ReferralRepository) PurgeExpiredReferralCodes(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM referral_codes WHERE expires_at <= $1`

	result, err := conn(ctx, r.pool).Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge referral codes: %w", err)
	}

	return result.RowsAffected(), nil
}
