package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

// AccountService handles account creation and lookups.
type AccountService struct {
	store           repository.Store
	cal             *Calendar
	audit           audit.Recorder
	initialCredits  int64
	referredCredits int64
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	store repository.Store,
	cal *Calendar,
	recorder audit.Recorder,
	initialCredits int64,
	referredCredits int64,
) *AccountService {
	return &AccountService{
		store:           store,
		cal:             cal,
		audit:           recorder,
		initialCredits:  initialCredits,
		referredCredits: referredCredits,
	}
}

// EnsureAccount returns the user's account, creating it on first contact.
// referrerID is the deep-link referrer from /start, or 0. It only affects a
// new account, and only when it names another existing account.
// Returns the account and whether this call created it.
func (s *AccountService) EnsureAccount(ctx context.Context, userID int64, username string, referrerID int64) (*model.Account, bool, error) {
	acc, err := s.store.GetAccount(ctx, userID)
	if err == nil {
		if username != "" && acc.Username != username {
			if err := s.store.UpdateUsername(ctx, userID, username); err != nil {
				log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to update username")
			} else {
				acc.Username = username
			}
		}
		return acc, false, nil
	}
	if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, false, fmt.Errorf("failed to get account: %w", err)
	}

	newAcc := &model.Account{
		UserID:       userID,
		Username:     username,
		Role:         model.RoleUser,
		TotalCredits: s.initialCredits,
		LastReset:    s.cal.Today(),
	}
	if referrerID != 0 && referrerID != userID {
		if _, err := s.store.GetAccount(ctx, referrerID); err == nil {
			ref := referrerID
			newAcc.ReferredBy = &ref
			newAcc.TotalCredits = s.referredCredits
		}
	}

	var created *model.Account
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.store.CreateAccount(ctx, newAcc)
		if err != nil {
			return err
		}
		_, err = s.store.CreateTransaction(ctx, userID, created.TotalCredits, model.TxTypeInitial, nil)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			// Another request created it first
			acc, err := s.store.GetAccount(ctx, userID)
			if err != nil {
				return nil, false, fmt.Errorf("failed to get account: %w", err)
			}
			return acc, false, nil
		}
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	log.Info().
		Int64("user_id", userID).
		Int64("credits", created.TotalCredits).
		Bool("referred", created.ReferredBy != nil).
		Msg("Account created")

	fields := []audit.Field{
		audit.F("ID", userID),
		audit.F("Username", displayName(username)),
	}
	if created.ReferredBy != nil {
		fields = append(fields, audit.F("Referred by", *created.ReferredBy))
	}
	if total, err := s.countAccounts(ctx); err == nil {
		fields = append(fields, audit.F("Total users", total))
	}
	s.audit.Record(audit.KindNewUser, fields...)

	return created, true, nil
}

// GetAccount returns ErrNotStarted if the user never used /start.
func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	acc, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotStarted
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// Today returns the current quota day, for rendering stale counters.
func (s *AccountService) Today() string {
	return s.cal.Today()
}

// History returns the user's most recent credit log entries.
func (s *AccountService) History(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	if _, err := s.GetAccount(ctx, userID); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (s *AccountService) countAccounts(ctx context.Context) (int64, error) {
	counts, err := s.store.CountByRole(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// displayName renders a username for audit lines.
func displayName(username string) string {
	if username == "" {
		return "N/A"
	}
	return "@" + username
}
