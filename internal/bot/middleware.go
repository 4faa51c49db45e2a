package bot

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/config"
	"telegram-image-bot/internal/service"
)

// allowChat reports whether the bot answers in chat. Private chats are always
// served; groups and channels must be listed in chats.allowed when it is set.
func allowChat(cfg *config.Config, chat *tele.Chat) bool {
	if chat == nil {
		return false
	}
	if chat.Type == tele.ChatPrivate {
		return true
	}
	return cfg.IsChatAllowed(chat.ID)
}

// ChatFilterMiddleware drops updates from chats the bot does not serve.
func ChatFilterMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if c.Sender() == nil || !allowChat(cfg, chat) {
				if chat != nil {
					log.Debug().
						Int64("chat_id", chat.ID).
						Msg("Ignoring update from non-allowed chat")
				}
				return nil
			}
			return next(c)
		}
	}
}

// denyMessage is the reply for a failed tier check.
func denyMessage(tier service.Tier) string {
	if tier == service.TierOwner {
		return "❌ Only owner can use this!"
	}
	return "❌ Admin only!"
}

// TierMiddleware rejects senders below tier. The role is re-read on every update.
func TierMiddleware(access *service.AccessControl, tier service.Tier) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}

			err := access.Authorize(context.Background(), sender.ID, tier)
			if errors.Is(err, service.ErrUnauthorized) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("tier", tier.String()).
					Str("command", c.Text()).
					Msg("Unauthorized command attempt")
				return c.Reply(denyMessage(tier))
			}
			if err != nil {
				log.Error().Err(err).Int64("user_id", sender.ID).Msg("Authorization failed")
				return c.Reply("❌ Something went wrong, the action did not take effect. Please try again later.")
			}

			return next(c)
		}
	}
}

// LoggingMiddleware creates a middleware that logs all incoming messages.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received message")

			return next(c)
		}
	}
}

// ErrorReportMiddleware records handler errors on the audit channel.
func ErrorReportMiddleware(recorder audit.Recorder) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			err := next(c)
			if err != nil {
				fields := []audit.Field{audit.F("Error", err)}
				if s := c.Sender(); s != nil {
					fields = append([]audit.Field{audit.F("User", s.ID)}, fields...)
				}
				recorder.Record(audit.KindError, fields...)
			}
			return err
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware(recorder audit.Recorder) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					recorder.Record(audit.KindError, audit.F("Panic", r))
					_ = c.Reply("❌ An internal error occurred, please try again later.")
					err = nil
				}
			}()
			return next(c)
		}
	}
}
