// Package handler provides Telegram bot command handlers.
package handler

import (
	"errors"
	"fmt"
	"html"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-image-bot/internal/service"
)

const msgFailed = "❌ Something went wrong, the action did not take effect. Please try again later."

// userMessage maps a service error to the reply shown to the user.
// Errors outside the service taxonomy are store or transport failures and
// get the generic reply.
func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrNotStarted):
		return "⚠️ Use /start first!"
	case errors.Is(err, service.ErrUnauthorized):
		return "❌ You are not allowed to use this command!"
	case errors.Is(err, service.ErrQuotaExceeded):
		return "❌ Daily limit reached and no credits left. Come back tomorrow or /claim a referral code."
	case errors.Is(err, service.ErrAlreadyClaimed):
		return "❌ You have already claimed a referral code. It can only be done once per user."
	case errors.Is(err, service.ErrSelfReferral):
		return "❌ You cannot claim your own referral code."
	case errors.Is(err, service.ErrExpired):
		return "❌ This code has expired."
	case errors.Is(err, service.ErrInvalidCode), errors.Is(err, service.ErrAlreadyUsed):
		return "❌ Invalid or already used code."
	case errors.Is(err, service.ErrDuplicateCode):
		return "❌ Error: Code already exists"
	case errors.Is(err, service.ErrInvalidAmount):
		return "❌ Amount must be positive!"
	case errors.Is(err, service.ErrInvalidUserID):
		return "❌ Invalid user ID"
	case errors.Is(err, service.ErrNotWhitelisted):
		return "❌ User is not whitelisted"
	case errors.Is(err, service.ErrEmptyPrompt):
		return "⚠️ Usage: /gen <your prompt>"
	case errors.Is(err, service.ErrGenerationInProgress):
		return "⏳ Your previous image is still being generated."
	case errors.Is(err, service.ErrUpstreamFailure):
		return "❌ Generation failed. Try again."
	}
	return msgFailed
}

// replyError replies with the user message for err and logs unexpected errors.
func replyError(c tele.Context, op string, err error) error {
	msg := userMessage(err)
	if msg == msgFailed {
		ev := log.Error().Err(err).Str("operation", op)
		if s := c.Sender(); s != nil {
			ev = ev.Int64("user_id", s.ID)
		}
		ev.Msg("Command failed")
	}
	return c.Reply(msg)
}

// senderName returns the sender's username, falling back to the first name.
func senderName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// mention renders @username when known, otherwise the escaped first name.
func mention(u *tele.User) string {
	if u.Username != "" {
		return "@" + html.EscapeString(u.Username)
	}
	if u.FirstName != "" {
		return html.EscapeString(u.FirstName)
	}
	return fmt.Sprintf("%d", u.ID)
}
