// Package repository provides the data access layer: store interfaces shared by
// every engine and the PostgreSQL implementation.
package repository

import (
	"context"
	"errors"
	"time"

	"telegram-image-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrCodeNotFound    = errors.New("code not found")
	ErrCodeExists      = errors.New("code already exists")
	ErrCodeUsed        = errors.New("code already used")
	ErrCodeExpired     = errors.New("code expired")
)

// Transactor runs fn so that every store call made with the context passed
// to fn commits or rolls back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountStore persists accounts. Every mutation is atomic per call.
type AccountStore interface {
	// GetAccount returns ErrAccountNotFound when the id is unknown.
	GetAccount(ctx context.Context, userID int64) (*model.Account, error)
	// CreateAccount inserts acc and returns ErrAccountExists on a duplicate id.
	CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error)
	// AdjustCredits adds delta to total credits.
	AdjustCredits(ctx context.Context, userID, delta int64) (*model.Account, error)
	// SpendCredit decrements credits by one only if they are positive.
	SpendCredit(ctx context.Context, userID int64) (bool, error)
	// RollDailyCounterIfStale resets the daily counter when lastReset != today.
	RollDailyCounterIfStale(ctx context.Context, userID int64, today string) (bool, error)
	IncrementDailyCount(ctx context.Context, userID int64) (*model.Account, error)
	// SetRole upserts: an absent account is created from seed.
	SetRole(ctx context.Context, seed *model.Account) error
	// UpdateRole changes the role of an existing account.
	UpdateRole(ctx context.Context, userID int64, role model.Role) error
	// MarkReferralClaimed flips hasClaimedReferral and reports whether this call did it.
	MarkReferralClaimed(ctx context.Context, userID int64) (bool, error)
	UpdateUsername(ctx context.Context, userID int64, username string) error
	ListAccounts(ctx context.Context) ([]model.AccountSummary, error)
	CountByRole(ctx context.Context) (map[model.Role]int64, error)
}

// ReferralStore persists referral codes.
type ReferralStore interface {
	// CreateReferralCode returns ErrCodeExists on a duplicate code.
	CreateReferralCode(ctx context.Context, rc *model.ReferralCode) error
	GetReferralCode(ctx context.Context, code string) (*model.ReferralCode, error)
	// MarkReferralUsed transitions an unused, unexpired code to used.
	// Exactly one concurrent caller succeeds; the others get ErrCodeUsed,
	// ErrCodeExpired or ErrCodeNotFound.
	MarkReferralUsed(ctx context.Context, code string, usedBy int64, now time.Time) (*model.ReferralCode, error)
	PurgeExpiredReferralCodes(ctx context.Context, before time.Time) (int64, error)
}

// CreditCodeStore persists admin-issued credit codes.
type CreditCodeStore interface {
	// CreateCreditCode returns ErrCodeExists on a duplicate code.
	CreateCreditCode(ctx context.Context, cc *model.CreditCode) error
	GetCreditCode(ctx context.Context, code string) (*model.CreditCode, error)
	// MarkCreditCodeUsed transitions an unused code to used; exactly one caller wins.
	MarkCreditCodeUsed(ctx context.Context, code string, usedBy int64, now time.Time) (*model.CreditCode, error)
}

// TransactionStore records credit movements and generations.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, userID, amount int64, txType string, description *string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error)
	CountTransactionsSince(ctx context.Context, txType string, since time.Time) (int64, error)
}

// Store bundles every store behind one engine.
type Store interface {
	Transactor
	AccountStore
	ReferralStore
	CreditCodeStore
	TransactionStore
}
