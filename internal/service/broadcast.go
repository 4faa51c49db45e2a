package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/repository"
)

// BroadcastReport counts the outcome of a fan-out.
type BroadcastReport struct {
	Total  int
	Sent   int
	Failed int
}

// BroadcastService copies one message to every known account.
type BroadcastService struct {
	accounts repository.AccountStore
	delay    time.Duration
	audit    audit.Recorder
}

// NewBroadcastService creates a BroadcastService pacing sends delay apart.
func NewBroadcastService(accounts repository.AccountStore, delay time.Duration, recorder audit.Recorder) *BroadcastService {
	return &BroadcastService{accounts: accounts, delay: delay, audit: recorder}
}

// Broadcast calls deliver once per account in a snapshot taken at start.
// A failing recipient is counted and skipped. Cancelling ctx stops the
// fan-out and returns the partial report with ctx's error.
func (s *BroadcastService) Broadcast(ctx context.Context, adminID int64, deliver func(ctx context.Context, chatID int64) error) (*BroadcastReport, error) {
	targets, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	limit := rate.Inf
	if s.delay > 0 {
		limit = rate.Every(s.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	report := &BroadcastReport{Total: len(targets)}
	log.Info().Int64("admin_id", adminID).Int("total", report.Total).Msg("Broadcast started")

	for _, t := range targets {
		if err := limiter.Wait(ctx); err != nil {
			log.Warn().Err(err).Int("sent", report.Sent).Msg("Broadcast interrupted")
			return report, err
		}
		if err := deliver(ctx, t.UserID); err != nil {
			report.Failed++
			log.Debug().Err(err).Int64("user_id", t.UserID).Msg("Broadcast delivery failed")
			continue
		}
		report.Sent++
	}

	log.Info().
		Int64("admin_id", adminID).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("Broadcast finished")

	s.audit.Record(audit.KindBroadcast,
		audit.F("By", adminID),
		audit.F("Total", report.Total),
		audit.F("Sent", report.Sent),
		audit.F("Failed", report.Failed),
	)
	return report, nil
}
