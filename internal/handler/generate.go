package handler

import (
	"context"
	"fmt"
	"html"

	tele "gopkg.in/telebot.v3"

	"telegram-image-bot/internal/service"
)

// GenerateHandler handles /gen.
type GenerateHandler struct {
	generation *service.GenerationService
	quota      *service.QuotaPolicy
	gate       *service.ChannelGate
}

// NewGenerateHandler creates a new GenerateHandler.
func NewGenerateHandler(generation *service.GenerationService, quota *service.QuotaPolicy, gate *service.ChannelGate) *GenerateHandler {
	return &GenerateHandler{generation: generation, quota: quota, gate: gate}
}

// HandleGen handles /gen <prompt>.
func (h *GenerateHandler) HandleGen(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if !h.gate.Joined(ctx, sender.ID) {
		return c.Reply("⚠️ Please join the channel first using /start")
	}
	// Quota denials come before the usage hint.
	if err := h.quota.CanGenerate(ctx, sender.ID); err != nil {
		return replyError(c, "gen", err)
	}

	prompt := joinPrompt(c.Args())
	if prompt == "" {
		return c.Reply(userMessage(service.ErrEmptyPrompt))
	}

	_ = c.Notify(tele.UploadingPhoto)
	if err := c.Reply("🎨 Generating image..."); err != nil {
		return err
	}

	_, err := h.generation.Generate(ctx, sender.ID, senderName(sender), prompt, func(url string) error {
		photo := &tele.Photo{
			File:    tele.FromURL(url),
			Caption: fmt.Sprintf("✅ <b>Generated!</b>\n\nPrompt: <code>%s</code>", html.EscapeString(prompt)),
		}
		return c.Send(photo, tele.ModeHTML)
	})
	if err != nil {
		return replyError(c, "gen", err)
	}
	return nil
}
