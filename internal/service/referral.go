package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

const issueAttempts = 5

// ReferralConfig holds the referral program parameters.
type ReferralConfig struct {
	Bonus      int64
	TTL        time.Duration
	CodeLength int
}

// ReferralService issues and claims referral codes.
type ReferralService struct {
	store repository.Store
	cal   *Calendar
	audit audit.Recorder
	cfg   ReferralConfig
	// newToken is swapped in tests to force collisions
	newToken func(n int) string
}

// NewReferralService creates a new ReferralService instance.
func NewReferralService(store repository.Store, cal *Calendar, recorder audit.Recorder, cfg ReferralConfig) *ReferralService {
	return &ReferralService{
		store:    store,
		cal:      cal,
		audit:    recorder,
		cfg:      cfg,
		newToken: randomToken,
	}
}

// Bonus returns the credits each party receives on a claim.
func (s *ReferralService) Bonus() int64 {
	return s.cfg.Bonus
}

// randomToken returns the first n hex characters of a random UUID.
func randomToken(n int) string {
	t := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(t) {
		n = len(t)
	}
	return t[:n]
}

// Issue mints a new referral code for generatorID.
func (s *ReferralService) Issue(ctx context.Context, generatorID int64) (*model.ReferralCode, error) {
	if _, err := s.store.GetAccount(ctx, generatorID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotStarted
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	now := s.cal.Now()
	for attempt := 0; attempt < issueAttempts; attempt++ {
		rc := &model.ReferralCode{
			Code:        s.newToken(s.cfg.CodeLength),
			GeneratedBy: generatorID,
			ExpiresAt:   now.Add(s.cfg.TTL),
			CreatedAt:   now,
		}
		err := s.store.CreateReferralCode(ctx, rc)
		if err == nil {
			log.Info().
				Int64("user_id", generatorID).
				Str("code", rc.Code).
				Time("expires_at", rc.ExpiresAt).
				Msg("Referral code issued")
			return rc, nil
		}
		if !errors.Is(err, repository.ErrCodeExists) {
			return nil, fmt.Errorf("failed to create referral code: %w", err)
		}
		log.Debug().Str("code", rc.Code).Msg("Referral code collision, retrying")
	}
	return nil, fmt.Errorf("failed to create referral code after %d attempts: %w", issueAttempts, repository.ErrCodeExists)
}

// Claim redeems code for claimantID and credits both parties.
// The lifetime claim flag is checked before the code so a user who already
// claimed cannot burn someone else's valid code.
func (s *ReferralService) Claim(ctx context.Context, code string, claimantID int64) error {
	code = strings.TrimSpace(code)

	claimant, err := s.store.GetAccount(ctx, claimantID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrNotStarted
		}
		return fmt.Errorf("failed to get account: %w", err)
	}
	if claimant.HasClaimedReferral {
		return ErrAlreadyClaimed
	}
	if code == "" {
		return ErrInvalidCode
	}

	rc, err := s.store.GetReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("failed to get referral code: %w", err)
	}
	if rc.GeneratedBy == claimantID {
		return ErrSelfReferral
	}
	now := s.cal.Now()
	if rc.Used {
		return ErrAlreadyUsed
	}
	if rc.Expired(now) {
		return ErrExpired
	}

	desc := fmt.Sprintf("referral %s", code)
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.MarkReferralUsed(ctx, code, claimantID, now); err != nil {
			return err
		}

		claimed, err := s.store.MarkReferralClaimed(ctx, claimantID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrAlreadyClaimed
		}

		if _, err := s.store.AdjustCredits(ctx, claimantID, s.cfg.Bonus); err != nil {
			return err
		}
		if _, err := s.store.CreateTransaction(ctx, claimantID, s.cfg.Bonus, model.TxTypeReferralBonus, &desc); err != nil {
			return err
		}

		// The generator may have been removed since issuing; the claimant still gets the bonus.
		if _, err := s.store.AdjustCredits(ctx, rc.GeneratedBy, s.cfg.Bonus); err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				log.Warn().Int64("user_id", rc.GeneratedBy).Str("code", code).Msg("Referral generator missing")
				return nil
			}
			return err
		}
		_, err = s.store.CreateTransaction(ctx, rc.GeneratedBy, s.cfg.Bonus, model.TxTypeReferralBonus, &desc)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyClaimed):
			return ErrAlreadyClaimed
		case errors.Is(err, repository.ErrCodeUsed):
			return ErrAlreadyUsed
		case errors.Is(err, repository.ErrCodeExpired):
			return ErrExpired
		case errors.Is(err, repository.ErrCodeNotFound):
			return ErrInvalidCode
		}
		return fmt.Errorf("failed to claim referral: %w", err)
	}

	log.Info().
		Int64("user_id", claimantID).
		Int64("generator_id", rc.GeneratedBy).
		Str("code", code).
		Int64("amount", s.cfg.Bonus).
		Msg("Referral claimed")

	s.audit.Record(audit.KindReferralClaimed,
		audit.F("Code", code),
		audit.F("Generator", rc.GeneratedBy),
		audit.F("Claimant", claimantID),
		audit.F("Bonus", s.cfg.Bonus),
	)
	return nil
}

// PurgeExpired deletes referral codes that expired before now.
func (s *ReferralService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpiredReferralCodes(ctx, s.cal.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge referral codes: %w", err)
	}
	return n, nil
}
