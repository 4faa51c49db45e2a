package handler

import (
	"context"
	"fmt"
	"html"
	"strings"

	tele "gopkg.in/telebot.v3"

	"telegram-image-bot/internal/model"
	"telegram-image-bot/internal/service"
)

const historyLimit = 10

// Main menu buttons shown by /start.
var (
	Menu        = &tele.ReplyMarkup{}
	BtnGenerate = Menu.Data("🎨 Generate Image", "gen")
	BtnStats    = Menu.Data("📊 My Stats", "stats")
	BtnRefer    = Menu.Data("🎟️ Refer & Earn", "refer")
)

func init() {
	Menu.Inline(
		Menu.Row(BtnGenerate),
		Menu.Row(BtnStats),
		Menu.Row(BtnRefer),
	)
}

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accounts      *service.AccountService
	quota         *service.QuotaPolicy
	gate          *service.ChannelGate
	referralBonus int64
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(
	accounts *service.AccountService,
	quota *service.QuotaPolicy,
	gate *service.ChannelGate,
	referralBonus int64,
) *AccountHandler {
	return &AccountHandler{
		accounts:      accounts,
		quota:         quota,
		gate:          gate,
		referralBonus: referralBonus,
	}
}

// HandleStart handles /start [referrerId].
// Creates the account on first contact, then checks the force-join channel.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	referrer := parseReferrer(c.Message().Payload)
	if _, _, err := h.accounts.EnsureAccount(ctx, sender.ID, sender.Username, referrer); err != nil {
		return replyError(c, "start", err)
	}

	if !h.gate.Joined(ctx, sender.ID) {
		return c.Reply("⚠️ You must join the channel to use this bot!", joinMarkup(h.gate.Channel()))
	}

	return c.Reply(fmt.Sprintf(
		"👋 Hello %s!\n\n"+
			"📸 <b>Image Generation Bot</b>\n\n"+
			"🎁 <b>Daily Limit:</b> %d images\n"+
			"🎟️ <b>Referral Bonus:</b> %d credits each\n\n"+
			"Use /help to see all commands",
		html.EscapeString(sender.FirstName), h.quota.DailyLimit(), h.referralBonus,
	), Menu, tele.ModeHTML)
}

// joinMarkup builds the inline button linking to the force-join channel.
func joinMarkup(channel string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(m.Row(m.URL("Join Channel", "https://t.me/"+strings.TrimPrefix(channel, "@"))))
	return m
}

// HandleHelp handles /help.
func (h *AccountHandler) HandleHelp(c tele.Context) error {
	return c.Reply(helpText, tele.ModeHTML)
}

const helpText = `<b>📖 Available Commands:</b>

🎨 <b>Image Generation:</b>
/gen &lt;query&gt; - Generate an image

💰 <b>Credit Codes:</b>
/redeem &lt;code&gt; - Redeem credit code

📊 <b>User Commands:</b>
/start - Start the bot
/help - Show this help
/refer - Get referral code
/claim &lt;code&gt; - Claim referral code (⚠️ ONCE PER USER)
/stats - View your stats
/history - Recent credit activity

👑 <b>Admin Commands:</b>
/gencode &lt;amount&gt; &lt;code&gt; - Generate credit code
/whitelist &lt;user_id&gt; - Add unlimited user
/rm_whitelist &lt;user_id&gt; - Remove from whitelist
/broadcast - Broadcast message
/bot_stats - View bot statistics

👑 <b>Owner Commands:</b>
/add_admin &lt;user_id&gt; - Add admin
/rm_admin &lt;user_id&gt; - Remove admin`

// HandleGenerateHint answers the "Generate Image" menu button.
func (h *AccountHandler) HandleGenerateHint(c tele.Context) error {
	return c.Reply("Use /gen <query> to generate an image")
}

// HandleStats handles /stats.
func (h *AccountHandler) HandleStats(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	acc, err := h.accounts.GetAccount(ctx, sender.ID)
	if err != nil {
		return replyError(c, "stats", err)
	}

	return c.Reply(formatStats(acc, h.accounts.Today(), h.quota.DailyLimit()), tele.ModeHTML)
}

func formatStats(acc *model.Account, today string, dailyLimit int64) string {
	username := "N/A"
	if acc.Username != "" {
		username = "@" + html.EscapeString(acc.Username)
	}
	daily := fmt.Sprintf("%d/%d", acc.DailyUsed(today), dailyLimit)
	if acc.Role.Unlimited() {
		daily = "unlimited"
	}
	return fmt.Sprintf(
		"📊 <b>Your Stats</b>\n\n"+
			"🆔 ID: <code>%d</code>\n"+
			"👤 Username: %s\n"+
			"🎖️ Role: %s\n"+
			"🎨 Daily Used: %s\n"+
			"🎟️ Credits: %d\n"+
			"📅 Last Reset: %s",
		acc.UserID, username, strings.ToUpper(string(acc.Role)), daily, acc.TotalCredits, acc.LastReset,
	)
}

// HandleHistory handles /history.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	txs, err := h.accounts.History(ctx, sender.ID, historyLimit)
	if err != nil {
		return replyError(c, "history", err)
	}
	if len(txs) == 0 {
		return c.Reply("📜 No activity yet")
	}

	var b strings.Builder
	b.WriteString("📜 <b>Recent Activity</b>\n━━━━━━━━━━━━━━━\n")
	for _, tx := range txs {
		amount := fmt.Sprintf("%d", tx.Amount)
		if tx.Amount > 0 {
			amount = "+" + amount
		}
		fmt.Fprintf(&b, "%s %s <b>%s</b>", tx.CreatedAt.Format("01-02 15:04"), txLabel(tx.Type), amount)
		if tx.Description != nil && *tx.Description != "" {
			fmt.Fprintf(&b, " · %s", html.EscapeString(*tx.Description))
		}
		b.WriteString("\n")
	}
	b.WriteString("━━━━━━━━━━━━━━━")
	return c.Reply(b.String(), tele.ModeHTML)
}

func txLabel(txType string) string {
	switch txType {
	case model.TxTypeInitial:
		return "🎁 Welcome"
	case model.TxTypeReferralBonus:
		return "🎟️ Referral"
	case model.TxTypeCreditCode:
		return "💰 Code"
	case model.TxTypeGeneration:
		return "🎨 Image"
	case model.TxTypeAdminRole:
		return "👑 Role"
	}
	return txType
}
