package service

import (
	"context"
	"errors"
	"fmt"

	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

// Consumption is what a successful generation was charged against.
type Consumption int

const (
	ConsumedNone   Consumption = iota // Whitelisted, nothing charged
	ConsumedCredit                    // One credit spent
	ConsumedDaily                     // One free daily generation used
)

func (c Consumption) String() string {
	switch c {
	case ConsumedCredit:
		return "credit"
	case ConsumedDaily:
		return "daily"
	}
	return "none"
}

// QuotaPolicy decides whether a user may generate and charges successful generations.
type QuotaPolicy struct {
	accounts   repository.AccountStore
	cal        *Calendar
	dailyLimit int64
}

// NewQuotaPolicy creates a QuotaPolicy with the given free daily allowance.
func NewQuotaPolicy(accounts repository.AccountStore, cal *Calendar, dailyLimit int64) *QuotaPolicy {
	return &QuotaPolicy{accounts: accounts, cal: cal, dailyLimit: dailyLimit}
}

// DailyLimit returns the free daily allowance.
func (p *QuotaPolicy) DailyLimit() int64 {
	return p.dailyLimit
}

// Evaluate decides on an already loaded account. A nil account is ErrNotStarted.
func (p *QuotaPolicy) Evaluate(acc *model.Account, today string) error {
	if acc == nil {
		return ErrNotStarted
	}
	if acc.Role.Unlimited() {
		return nil
	}
	if acc.TotalCredits > 0 {
		return nil
	}
	if acc.DailyUsed(today) >= p.dailyLimit {
		return ErrQuotaExceeded
	}
	return nil
}

// CanGenerate loads the current account record and evaluates it.
func (p *QuotaPolicy) CanGenerate(ctx context.Context, userID int64) error {
	acc, err := p.accounts.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrNotStarted
		}
		return fmt.Errorf("failed to get account: %w", err)
	}
	return p.Evaluate(acc, p.cal.Today())
}

// ConsumeOnSuccess charges one confirmed generation. Credits are spent first;
// the daily counter only moves once credits are exhausted.
func (p *QuotaPolicy) ConsumeOnSuccess(ctx context.Context, userID int64) (Consumption, error) {
	acc, err := p.accounts.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ConsumedNone, ErrNotStarted
		}
		return ConsumedNone, fmt.Errorf("failed to get account: %w", err)
	}
	if acc.Role.Unlimited() {
		return ConsumedNone, nil
	}

	spent, err := p.accounts.SpendCredit(ctx, userID)
	if err != nil {
		return ConsumedNone, fmt.Errorf("failed to spend credit: %w", err)
	}
	if spent {
		return ConsumedCredit, nil
	}

	if _, err := p.accounts.RollDailyCounterIfStale(ctx, userID, p.cal.Today()); err != nil {
		return ConsumedNone, fmt.Errorf("failed to roll daily counter: %w", err)
	}
	if _, err := p.accounts.IncrementDailyCount(ctx, userID); err != nil {
		return ConsumedNone, fmt.Errorf("failed to increment daily count: %w", err)
	}
	return ConsumedDaily, nil
}
