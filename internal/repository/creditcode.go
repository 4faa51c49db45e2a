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

const creditCodeColumns = `code, amount, generated_by, used, used_by, used_at, created_at`

// CreditCodeRepository handles credit code persistence in PostgreSQL.
type CreditCodeRepository struct {
	pool *pgxpool.Pool
}

var _ CreditCodeStore = (*CreditCodeRepository)(nil)

// NewCreditCodeRepository creates a new CreditCodeRepository instance.
func NewCreditCodeRepository(pool *pgxpool.Pool) *CreditCodeRepository {
	return &CreditCodeRepository{pool: pool}
}

func scanCreditCode(row pgx.Row) (*model.CreditCode, error) {
	var cc model.CreditCode
	err := row.Scan(
		&cc.Code,
		&cc.Amount,
		&cc.GeneratedBy,
		&cc.Used,
		&cc.UsedBy,
		&cc.UsedAt,
		&cc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cc, nil
}

// CreateCreditCode stores a new credit code. Returns ErrCodeExists on duplicates.
func (r *CreditCodeRepository) CreateCreditCode(ctx context.Context, cc *model.CreditCode) error {
	const query = `
		INSERT INTO credit_codes (code, amount, generated_by, used, used_by, used_at, created_at)
		VALUES ($1, $2, $3, FALSE, NULL, NULL, $4)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query, cc.Code, cc.Amount, cc.GeneratedBy, cc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create credit code: %w", err)
	}

	return nil
}

// GetCreditCode retrieves a credit code.
func (r *CreditCodeRepository) GetCreditCode(ctx context.Context, code string) (*model.CreditCode, error) {
	const query = `SELECT ` + creditCodeColumns + ` FROM credit_codes WHERE code = $1`

	cc, err := scanCreditCode(conn(ctx, r.pool).QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get credit code: %w", err)
	}

	return cc, nil
}

// MarkCreditCodeUsed flips the code to used if nobody redeemed it yet.
func (r *CreditCodeRepository) MarkCreditCodeUsed(ctx context.Context, code string, usedBy int64, now time.Time) (*model.CreditCode, error) {
	const query = `
		UPDATE credit_codes
		SET used = TRUE, used_by = $2, used_at = $3
		WHERE code = $1 AND used = FALSE
		RETURNING ` + creditCodeColumns

	cc, err := scanCreditCode(conn(ctx, r.pool).QueryRow(ctx, query, code, usedBy, now))
	if err == nil {
		return cc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to mark credit code used: %w", err)
	}

	if _, err := r.GetCreditCode(ctx, code); err != nil {
		return nil, err
	}
	return nil, ErrCodeUsed
}
