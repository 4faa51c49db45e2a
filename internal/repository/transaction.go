package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-image-bot/internal/model"
)

// TransactionRepository handles the credit transaction log.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

var _ TransactionStore = (*TransactionRepository)(nil)

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// CreateTransaction creates a new transaction record.
func (r *TransactionRepository) CreateTransaction(ctx context.Context, userID, amount int64, txType string, description *string) (*model.Transaction, error) {
	const query = `
		INSERT INTO transactions (user_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, user_id, amount, type, description, created_at
	`

	var tx model.Transaction
	err := conn(ctx, r.pool).QueryRow(ctx, query, userID, amount, txType, description).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Type,
		&tx.Description,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &tx, nil
}

// ListTransactions retrieves a user's transactions, newest first.
func (r *TransactionRepository) ListTransactions(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	const query = `
		SELECT id, user_id, amount, type, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Amount,
			&tx.Type,
			&tx.Description,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// CountTransactionsSince counts transactions of a type created at or after since.
func (r *TransactionRepository) CountTransactionsSince(ctx context.Context, txType string, since time.Time) (int64, error) {
	const query = `
		SELECT COUNT(*)
		FROM transactions
		WHERE type = $1 AND created_at >= $2
	`

	var count int64
	if err := conn(ctx, r.pool).QueryRow(ctx, query, txType, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}
