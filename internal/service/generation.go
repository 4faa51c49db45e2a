package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/pkg/lock"
	"telegram-image-bot/internal/provider"
	"telegram-image-bot/internal/repository"
)

const maxPromptInLog = 100

// ImageProvider produces an image URL for a prompt.
type ImageProvider interface {
	Generate(ctx context.Context, prompt string) (*provider.Image, error)
}

// GenerationResult describes a delivered image.
type GenerationResult struct {
	URL      string
	Consumed Consumption
}

// GenerationService runs one image generation per user at a time.
type GenerationService struct {
	images   ImageProvider
	quota    *QuotaPolicy
	txs      repository.TransactionStore
	inflight *lock.UserLock
	audit    audit.Recorder
}

// NewGenerationService creates a new GenerationService instance.
func NewGenerationService(
	images ImageProvider,
	quota *QuotaPolicy,
	txs repository.TransactionStore,
	inflight *lock.UserLock,
	recorder audit.Recorder,
) *GenerationService {
	if inflight == nil {
		inflight = lock.NewUserLock()
	}
	return &GenerationService{
		images:   images,
		quota:    quota,
		txs:      txs,
		inflight: inflight,
		audit:    recorder,
	}
}

// Generate checks the quota, asks the provider for an image and hands its URL
// to deliver. Quota is charged only after deliver succeeds.
func (s *GenerationService) Generate(
	ctx context.Context,
	userID int64,
	username string,
	prompt string,
	deliver func(url string) error,
) (*GenerationResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	var result *GenerationResult
	err := s.inflight.Do(userID, func() error {
		var err error
		result, err = s.generate(ctx, userID, username, prompt, deliver)
		return err
	})
	if errors.Is(err, lock.ErrBusy) {
		return nil, ErrGenerationInProgress
	}
	return result, err
}

func (s *GenerationService) generate(
	ctx context.Context,
	userID int64,
	username string,
	prompt string,
	deliver func(url string) error,
) (*GenerationResult, error) {
	if err := s.quota.CanGenerate(ctx, userID); err != nil {
		return nil, err
	}

	img, err := s.images.Generate(ctx, prompt)
	if err != nil {
		log.Warn().
			Err(err).
			Int64("user_id", userID).
			Str("kind", provider.KindOf(err).String()).
			Msg("Image generation failed")
		s.audit.Record(audit.KindGenerationFailed,
			audit.F("User", userID),
			audit.F("Prompt", shorten(prompt, maxPromptInLog)),
			audit.F("Reason", provider.KindOf(err)),
		)
		return nil, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}

	if err := deliver(img.URL); err != nil {
		return nil, fmt.Errorf("failed to deliver image: %w", err)
	}

	consumed, err := s.quota.ConsumeOnSuccess(ctx, userID)
	if err != nil {
		// The image is already with the user; report the charge failure only.
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to charge generation")
		s.audit.Record(audit.KindError,
			audit.F("Operation", "charge generation"),
			audit.F("User", userID),
			audit.F("Error", err),
		)
	}

	var amount int64
	if consumed == ConsumedCredit {
		amount = -1
	}
	desc := shorten(prompt, maxPromptInLog)
	if _, err := s.txs.CreateTransaction(ctx, userID, amount, model.TxTypeGeneration, &desc); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to record generation")
	}

	log.Info().
		Int64("user_id", userID).
		Str("consumed", consumed.String()).
		Msg("Image generated")

	s.audit.Record(audit.KindImageGenerated,
		audit.F("User", userID),
		audit.F("Username", displayName(username)),
		audit.F("Prompt", desc),
		audit.F("Charged", consumed),
	)

	return &GenerationResult{URL: img.URL, Consumed: consumed}, nil
}

// shorten cuts s to at most n runes.
func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
