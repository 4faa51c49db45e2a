package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-image-bot/internal/service"
)

// AdminHandler handles admin and owner commands.
type AdminHandler struct {
	access    *service.AccessControl
	codes     *service.CreditCodeService
	broadcast *service.BroadcastService
	stats     *service.StatsService

	// admins whose next message is the broadcast
	mu      sync.Mutex
	pending map[int64]bool
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	access *service.AccessControl,
	codes *service.CreditCodeService,
	broadcast *service.BroadcastService,
	stats *service.StatsService,
) *AdminHandler {
	return &AdminHandler{
		access:    access,
		codes:     codes,
		broadcast: broadcast,
		stats:     stats,
		pending:   make(map[int64]bool),
	}
}

// HandleGenCode handles /gencode <amount> <code>.
func (h *AdminHandler) HandleGenCode(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	amount, code, err := parseGenCode(c.Args())
	switch err {
	case nil:
	case errNotInt:
		return c.Reply("❌ Amount must be a number")
	case errBadCount:
		return c.Reply(userMessage(service.ErrInvalidAmount))
	default:
		return c.Reply("⚠️ Usage: /gencode <amount> <code>")
	}

	cc, err := h.codes.Issue(ctx, code, amount, sender.ID)
	if err != nil {
		return replyError(c, "gencode", err)
	}

	return c.Reply(fmt.Sprintf(
		"✅ <b>Credit Code Generated!</b>\n\n"+
			"🎟️ Code: <code>%s</code>\n"+
			"💰 Amount: %d credits\n\n"+
			"Users can redeem with /redeem %s",
		cc.Code, cc.Amount, cc.Code,
	), tele.ModeHTML)
}

// roleCommand parses the target id and runs one AccessControl mutation.
func (h *AdminHandler) roleCommand(
	c tele.Context,
	op string,
	usage string,
	done string,
	fn func(ctx context.Context, actorID, targetID int64) error,
) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	targetID, err := parseUserID(c.Args())
	switch err {
	case nil:
	case errUsage:
		return c.Reply(usage)
	default:
		return c.Reply(userMessage(service.ErrInvalidUserID))
	}

	if err := fn(context.Background(), sender.ID, targetID); err != nil {
		return replyError(c, op, err)
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("target_id", targetID).
		Str("operation", op).
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(done, targetID))
}

// HandleAddAdmin handles /add_admin <user_id>.
func (h *AdminHandler) HandleAddAdmin(c tele.Context) error {
	return h.roleCommand(c, "add_admin", "⚠️ Usage: /add_admin <user_id>", "✅ User %d added as admin", h.access.AddAdmin)
}

// HandleRemoveAdmin handles /rm_admin <user_id>.
func (h *AdminHandler) HandleRemoveAdmin(c tele.Context) error {
	return h.roleCommand(c, "rm_admin", "⚠️ Usage: /rm_admin <user_id>", "✅ User %d removed from admin", h.access.RemoveAdmin)
}

// HandleWhitelist handles /whitelist <user_id>.
func (h *AdminHandler) HandleWhitelist(c tele.Context) error {
	return h.roleCommand(c, "whitelist", "⚠️ Usage: /whitelist <user_id>", "✅ User %d whitelisted", h.access.AddWhitelist)
}

// HandleRemoveWhitelist handles /rm_whitelist <user_id>.
func (h *AdminHandler) HandleRemoveWhitelist(c tele.Context) error {
	return h.roleCommand(c, "rm_whitelist", "⚠️ Usage: /rm_whitelist <user_id>", "✅ User %d removed from whitelist", h.access.RemoveWhitelist)
}

// HandleBotStats handles /bot_stats.
func (h *AdminHandler) HandleBotStats(c tele.Context) error {
	st, err := h.stats.BotStats(context.Background())
	if err != nil {
		return replyError(c, "bot_stats", err)
	}

	return c.Reply(fmt.Sprintf(
		"📊 <b>Bot Statistics</b>\n\n"+
			"👥 Total Users: %d\n"+
			"👤 Normal Users: %d\n"+
			"👮 Admins: %d\n"+
			"⭐ Whitelisted: %d\n"+
			"🎨 Images Today: %d",
		st.TotalUsers, st.Users, st.Admins, st.Whitelisted, st.GenerationsToday,
	), tele.ModeHTML)
}

// HandleBroadcast handles /broadcast: the admin's next message is copied to everyone.
func (h *AdminHandler) HandleBroadcast(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	h.mu.Lock()
	h.pending[sender.ID] = true
	h.mu.Unlock()

	return c.Reply("📢 Send me the message to broadcast. Send /cancel to abort.")
}

// HandleCancel handles /cancel.
func (h *AdminHandler) HandleCancel(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	if !h.takePending(sender.ID) {
		return c.Reply("Nothing to cancel")
	}
	return c.Reply("❌ Broadcast cancelled")
}

// Pending reports whether userID has a broadcast waiting for its message.
func (h *AdminHandler) Pending(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending[userID]
}

func (h *AdminHandler) takePending(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pending[userID] {
		return false
	}
	delete(h.pending, userID)
	return true
}

// claimBroadcast consumes the sender's pending broadcast and re-checks the
// admin tier, which may have been revoked since /broadcast.
func (h *AdminHandler) claimBroadcast(ctx context.Context, userID int64) (bool, error) {
	if !h.takePending(userID) {
		return false, nil
	}
	if err := h.access.Authorize(ctx, userID, service.TierAdmin); err != nil {
		return false, err
	}
	return true, nil
}

// HandleBroadcastMessage copies the current message to every account if the
// sender started a broadcast. Other messages are ignored.
func (h *AdminHandler) HandleBroadcastMessage(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	msg := c.Message()
	if sender == nil || msg == nil {
		return nil
	}

	ok, err := h.claimBroadcast(ctx, sender.ID)
	if errors.Is(err, service.ErrUnauthorized) {
		log.Warn().Int64("user_id", sender.ID).Msg("Broadcast dropped: sender is no longer an admin")
		return c.Reply("❌ Admin only!")
	}
	if err != nil {
		return replyError(c, "broadcast", err)
	}
	if !ok {
		return nil
	}

	if err := c.Reply("📤 Broadcasting..."); err != nil {
		return err
	}

	report, err := h.broadcast.Broadcast(ctx, sender.ID, func(_ context.Context, chatID int64) error {
		_, err := c.Bot().Copy(tele.ChatID(chatID), msg)
		return err
	})
	if err != nil {
		return replyError(c, "broadcast", err)
	}

	return c.Reply(fmt.Sprintf(
		"✅ Broadcast Complete!\n"+
			"👥 Total: %d\n"+
			"📤 Sent: %d\n"+
			"❌ Failed: %d",
		report.Total, report.Sent, report.Failed,
	))
}
