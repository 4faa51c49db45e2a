package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"telegram-image-bot/internal/audit"
	"telegram-image-bot/internal/service"
)

// chatRef addresses a chat by id or "@username" string.
type chatRef string

func (r chatRef) Recipient() string { return string(r) }

// LogChannel delivers audit events to the operator log group.
type LogChannel struct {
	bot    *tele.Bot
	chatID int64
}

var _ audit.Sink = (*LogChannel)(nil)

// NewLogChannel creates the audit sink for chatID.
func NewLogChannel(b *tele.Bot, chatID int64) *LogChannel {
	return &LogChannel{bot: b, chatID: chatID}
}

// Deliver sends text as a plain message; user content is never parsed as markup.
func (l *LogChannel) Deliver(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := l.bot.Send(tele.ChatID(l.chatID), text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("failed to send to log group %d: %w", l.chatID, err)
	}
	return nil
}

// NewMemberLookup resolves channel membership through getChatMember.
func NewMemberLookup(b *tele.Bot) service.MemberLookup {
	return service.MemberLookupFunc(func(_ context.Context, channel string, userID int64) (string, error) {
		member, err := b.ChatMemberOf(chatRef(channel), &tele.User{ID: userID})
		if err != nil {
			return "", fmt.Errorf("failed to get chat member: %w", err)
		}
		return string(member.Role), nil
	})
}
