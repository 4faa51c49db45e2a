package repository

import "github.com/jackc/pgx/v5/pgxpool"

// PostgresStore bundles the PostgreSQL repositories behind the Store interface.
type PostgresStore struct {
	*TxManager
	*AccountRepository
	*ReferralRepository
	*CreditCodeRepository
	*TransactionRepository
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates every repository on the same pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		TxManager:             NewTxManager(pool),
		AccountRepository:     NewAccountRepository(pool),
		ReferralRepository:    NewReferralRepository(pool),
		CreditCodeRepository:  NewCreditCodeRepository(pool),
		TransactionRepository: NewTransactionRepository(pool),
	}
}
