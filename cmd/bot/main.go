// Package main is the entry point for the Telegram image generation bot.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/bot"
	"telegram-image-bot/internal/config"
	"telegram-image-bot/internal/pkg/db"
	"telegram-image-bot/internal/pkg/lock"
	"telegram-image-bot/internal/provider"
	"telegram-image-bot/internal/repository"
	"telegram-image-bot/internal/repository/memory"
	mongostore "telegram-image-bot/internal/repository/mongo"
	"telegram-image-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open storage")
	}
	defer closeStore()

	loc, err := cfg.Quota.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid timezone")
	}
	cal := service.NewCalendar(loc, time.Now)

	images, err := provider.New(cfg.Provider.Endpoint, cfg.Provider.QueryParam, cfg.Provider.Timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create image provider")
	}

	client, err := bot.NewClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Audit events go to the log group when one is configured.
	var sink audit.Sink
	if cfg.LogGroup.ID != 0 {
		sink = bot.NewLogChannel(client, cfg.LogGroup.ID)
	}
	notifier := audit.NewNotifier(sink, cfg.Audit.QueueSize, cfg.Audit.Timeout)
	notifier.Start()
	defer notifier.Close()

	// Initialize services
	quota := service.NewQuotaPolicy(store, cal, cfg.Quota.DailyLimit)
	accounts := service.NewAccountService(store, cal, notifier, cfg.Quota.InitialCredits, cfg.Quota.ReferredCredits)
	referrals := service.NewReferralService(store, cal, notifier, service.ReferralConfig{
		Bonus:      cfg.Referral.Bonus,
		TTL:        cfg.Referral.TTL,
		CodeLength: cfg.Referral.CodeLength,
	})
	deps := &bot.Dependencies{
		Config:     cfg,
		Audit:      notifier,
		Accounts:   accounts,
		Quota:      quota,
		Referrals:  referrals,
		CreditCode: service.NewCreditCodeService(store, cal, notifier),
		Access:     service.NewAccessControl(store, cal, notifier, cfg.Owner.ID, cfg.Quota.InitialCredits),
		Generation: service.NewGenerationService(images, quota, store, lock.NewUserLock(), notifier),
		Broadcast:  service.NewBroadcastService(store, cfg.Broadcast.Delay, notifier),
		Stats:      service.NewStatsService(store, store, cal),
		Gate:       service.NewChannelGate(cfg.ForceJoin.Channel, bot.NewMemberLookup(client)),
	}

	telegramBot := bot.New(client, deps)

	go service.RunReferralReaper(ctx, referrals, cfg.Referral.PurgeInterval)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	cancel()
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// openStore connects the configured storage engine and prepares its schema.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := db.OpenPostgres(ctx, &cfg.Database, db.WithMigrations())
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresStore(pool.Pool), pool.Close, nil

	case config.DriverMongo:
		m, err := db.NewMongo(ctx, &cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.New(m.Client, m.Database)
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.Close(closeCtx)
		}
		if err := store.Migrate(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil

	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return memory.New(), func() {}, nil
	}
	return nil, nil, errors.New("unknown storage driver " + cfg.Storage.Driver)
}
