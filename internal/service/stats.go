package service

import (
	"context"
	"fmt"

	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/repository"
)

// StatsService aggregates bot-wide counters.
type StatsService struct {
	accounts repository.AccountStore
	txs      repository.TransactionStore
	cal      *Calendar
}

// NewStatsService creates a new StatsService instance.
func NewStatsService(accounts repository.AccountStore, txs repository.TransactionStore, cal *Calendar) *StatsService {
	return &StatsService{accounts: accounts, txs: txs, cal: cal}
}

// BotStats counts accounts per role and images generated since midnight.
func (s *StatsService) BotStats(ctx context.Context) (*model.BotStats, error) {
	counts, err := s.accounts.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	generated, err := s.txs.CountTransactionsSince(ctx, model.TxTypeGeneration, s.cal.StartOfDay())
	if err != nil {
		return nil, fmt.Errorf("failed to count generations: %w", err)
	}

	st := &model.BotStats{
		Users:            counts[model.RoleUser],
		Admins:           counts[model.RoleAdmin],
		Whitelisted:      counts[model.RoleWhitelist],
		GenerationsToday: generated,
	}
	st.TotalUsers = st.Users + st.Admins + st.Whitelisted
	return st, nil
}
