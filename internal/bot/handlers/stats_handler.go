package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStatsHandler returns a handler for the /stats command, replying with
// global usage totals and the requesting user's own figures.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return statsHandler{deps}.Handle
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "stats")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Stats handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	msg := update.Message
	log.InfoContext(ctx, "Handling /stats command", "chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	stats, err := h.deps.Store.Stats(ctx, msg.From.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read usage stats", "error", err, "user_id", msg.From.ID)
		if _, sendErr := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   h.deps.Config.Messages.GeneralError,
		}); sendErr != nil {
			log.ErrorContext(ctx, "Failed to send error reply", "error", sendErr, "chat_id", msg.Chat.ID)
		}
		return
	}

	lastStart := stats.LastStart
	if lastStart == "" {
		lastStart = "never"
	}

	text := fmt.Sprintf(
		"📊 Bot stats:\n👥 Users: %d\n📨 Requests: %d\n\n🧍 Your requests: %d\n🕰️ Last start: %s",
		stats.TotalUsers, stats.TotalRequests, stats.UserRequests, lastStart,
	)

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send stats reply", "error", err, "chat_id", msg.Chat.ID)
	}
}
