package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

// CreditCodeService issues and redeems admin credit codes.
type CreditCodeService struct {
	store repository.Store
	cal   *Calendar
	audit audit.Recorder
}

// NewCreditCodeService creates a new CreditCodeService instance.
func NewCreditCodeService(store repository.Store, cal *Calendar, recorder audit.Recorder) *CreditCodeService {
	return &CreditCodeService{store: store, cal: cal, audit: recorder}
}

// Issue stores a new code worth amount credits. Authorization is the caller's job.
func (s *CreditCodeService) Issue(ctx context.Context, code string, amount, issuerID int64) (*model.CreditCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	cc := &model.CreditCode{
		Code:        code,
		Amount:      amount,
		GeneratedBy: issuerID,
		CreatedAt:   s.cal.Now(),
	}
	if err := s.store.CreateCreditCode(ctx, cc); err != nil {
		if errors.Is(err, repository.ErrCodeExists) {
			return nil, ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create credit code: %w", err)
	}

	log.Info().
		Int64("admin_id", issuerID).
		Str("code", code).
		Int64("amount", amount).
		Msg("Credit code issued")

	s.audit.Record(audit.KindCreditCodeGenerated,
		audit.F("Code", code),
		audit.F("Amount", amount),
		audit.F("By", issuerID),
	)
	return cc, nil
}

// Redeem credits the code's amount to redeemerID. Returns the credited amount.
// Exactly one concurrent redeemer of a code succeeds.
func (s *CreditCodeService) Redeem(ctx context.Context, code string, redeemerID int64) (int64, error) {
	code = strings.TrimSpace(code)

	if _, err := s.store.GetAccount(ctx, redeemerID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, ErrNotStarted
		}
		return 0, fmt.Errorf("failed to get account: %w", err)
	}
	if code == "" {
		return 0, ErrInvalidCode
	}

	var amount int64
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		cc, err := s.store.MarkCreditCodeUsed(ctx, code, redeemerID, s.cal.Now())
		if err != nil {
			return err
		}
		amount = cc.Amount
		if _, err := s.store.AdjustCredits(ctx, redeemerID, cc.Amount); err != nil {
			return err
		}
		desc := fmt.Sprintf("code %s", code)
		_, err = s.store.CreateTransaction(ctx, redeemerID, cc.Amount, model.TxTypeCreditCode, &desc)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeNotFound):
			return 0, ErrInvalidCode
		case errors.Is(err, repository.ErrCodeUsed):
			return 0, ErrAlreadyUsed
		}
		return 0, fmt.Errorf("failed to redeem credit code: %w", err)
	}

	log.Info().
		Int64("user_id", redeemerID).
		Str("code", code).
		Int64("amount", amount).
		Msg("Credit code redeemed")

	s.audit.Record(audit.KindCodeRedeemed,
		audit.F("Code", code),
		audit.F("Amount", amount),
		audit.F("User", redeemerID),
	)
	return amount, nil
}
