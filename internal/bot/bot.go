// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/config"
	"telegram-image-bot/internal/handler"
	"telegram-image-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot   *tele.Bot
	cfg   *config.Config
	audit audit.Recorder

	access *service.AccessControl

	// Handlers
	accountHandler  *handler.AccountHandler
	generateHandler *handler.GenerateHandler
	referralHandler *handler.ReferralHandler
	adminHandler    *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config     *config.Config
	Audit      audit.Recorder
	Accounts   *service.AccountService
	Quota      *service.QuotaPolicy
	Referrals  *service.ReferralService
	CreditCode *service.CreditCodeService
	Access     *service.AccessControl
	Generation *service.GenerationService
	Broadcast  *service.BroadcastService
	Stats      *service.StatsService
	Gate       *service.ChannelGate
}

// NewClient creates the Telegram client. It is separate from New because the
// audit sink and the channel gate need the client before the services exist.
func NewClient(cfg *config.Config) (*tele.Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Bot.PollTimeout},
		OnError: func(err error, c tele.Context) {
			ev := log.Error().Err(err)
			if c != nil && c.Sender() != nil {
				ev = ev.Int64("user_id", c.Sender().ID)
			}
			ev.Msg("Unhandled bot error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return teleBot, nil
}

// New registers middleware and handlers on teleBot.
func New(teleBot *tele.Bot, deps *Dependencies) *Bot {
	recorder := deps.Audit
	if recorder == nil {
		recorder = audit.Nop
	}

	b := &Bot{
		bot:    teleBot,
		cfg:    deps.Config,
		audit:  recorder,
		access: deps.Access,
	}

	b.accountHandler = handler.NewAccountHandler(deps.Accounts, deps.Quota, deps.Gate, deps.Referrals.Bonus())
	b.generateHandler = handler.NewGenerateHandler(deps.Generation, deps.Quota, deps.Gate)
	b.referralHandler = handler.NewReferralHandler(deps.Referrals, deps.CreditCode)
	b.adminHandler = handler.NewAdminHandler(deps.Access, deps.CreditCode, deps.Broadcast, deps.Stats)

	b.registerMiddleware()
	b.registerHandlers()

	return b
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware(b.audit))
	b.bot.Use(ChatFilterMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(ErrorReportMiddleware(b.audit))
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// User commands
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/help", b.accountHandler.HandleHelp)
	b.bot.Handle("/stats", b.accountHandler.HandleStats)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)
	b.bot.Handle("/gen", b.generateHandler.HandleGen)
	b.bot.Handle("/refer", b.referralHandler.HandleRefer)
	b.bot.Handle("/claim", b.referralHandler.HandleClaim)
	b.bot.Handle("/redeem", b.referralHandler.HandleRedeem)

	// Menu buttons
	b.bot.Handle(&handler.BtnGenerate, answered(b.accountHandler.HandleGenerateHint))
	b.bot.Handle(&handler.BtnStats, answered(b.accountHandler.HandleStats))
	b.bot.Handle(&handler.BtnRefer, answered(b.referralHandler.HandleRefer))

	adminGroup := b.bot.Group()
	adminGroup.Use(TierMiddleware(b.access, service.TierAdmin))
	adminGroup.Handle("/gencode", b.adminHandler.HandleGenCode)
	adminGroup.Handle("/whitelist", b.adminHandler.HandleWhitelist)
	adminGroup.Handle("/rm_whitelist", b.adminHandler.HandleRemoveWhitelist)
	adminGroup.Handle("/broadcast", b.adminHandler.HandleBroadcast)
	adminGroup.Handle("/cancel", b.adminHandler.HandleCancel)
	adminGroup.Handle("/bot_stats", b.adminHandler.HandleBotStats)

	ownerGroup := b.bot.Group()
	ownerGroup.Use(TierMiddleware(b.access, service.TierOwner))
	ownerGroup.Handle("/add_admin", b.adminHandler.HandleAddAdmin)
	ownerGroup.Handle("/rm_admin", b.adminHandler.HandleRemoveAdmin)

	// The message after /broadcast may be of any kind.
	for _, endpoint := range []string{
		tele.OnText, tele.OnPhoto, tele.OnVideo, tele.OnDocument,
		tele.OnAnimation, tele.OnAudio, tele.OnVoice, tele.OnSticker,
	} {
		b.bot.Handle(endpoint, b.handleFreeMessage)
	}
}

// handleFreeMessage routes non-command messages. Only a pending broadcast
// consumes them; everything else is ignored.
func (b *Bot) handleFreeMessage(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || !b.adminHandler.Pending(sender.ID) {
		return nil
	}
	return b.adminHandler.HandleBroadcastMessage(c)
}

// answered acknowledges the callback query before running h.
func answered(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		_ = c.Respond()
		return h(c)
	}
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
