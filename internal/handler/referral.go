package handler

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"telegram-image-bot/internal/service"
)

// ReferralHandler handles referral and credit-code redemption commands.
type ReferralHandler struct {
	referrals *service.ReferralService
	codes     *service.CreditCodeService
}

// NewReferralHandler creates a new ReferralHandler.
func NewReferralHandler(referrals *service.ReferralService, codes *service.CreditCodeService) *ReferralHandler {
	return &ReferralHandler{referrals: referrals, codes: codes}
}

// HandleRefer handles /refer.
func (h *ReferralHandler) HandleRefer(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	rc, err := h.referrals.Issue(ctx, sender.ID)
	if err != nil {
		return replyError(c, "refer", err)
	}

	return c.Reply(fmt.Sprintf(
		"🎟️ <b>Your Referral Code:</b>\n\n"+
			"<code>%s</code>\n\n"+
			"⏰ Expires at: %s\n"+
			"📤 Share this code with friends!\n\n"+
			"Both will get %d credits when claimed!",
		rc.Code, rc.ExpiresAt.Format("15:04:05"), h.referrals.Bonus(),
	), tele.ModeHTML)
}

// HandleClaim handles /claim <code>.
func (h *ReferralHandler) HandleClaim(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("⚠️ Usage: /claim <code>")
	}

	if err := h.referrals.Claim(ctx, args[0], sender.ID); err != nil {
		return replyError(c, "claim", err)
	}
	return c.Reply(fmt.Sprintf("✅ Referral claimed! Both users received %d credits.", h.referrals.Bonus()))
}

// HandleRedeem handles /redeem <code>.
func (h *ReferralHandler) HandleRedeem(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("⚠️ Usage: /redeem <code>")
	}

	amount, err := h.codes.Redeem(ctx, args[0], sender.ID)
	if err != nil {
		return replyError(c, "redeem", err)
	}
	return c.Reply(fmt.Sprintf("🎉 Successfully redeemed %d credits!", amount))
}
