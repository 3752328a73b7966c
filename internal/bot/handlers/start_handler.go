package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mirbot/mirbot/internal/database"
)

// NewStartHandler returns a handler for the /start and /help commands. It
// registers the user (bumping their session start) and sends the welcome
// message.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	msg := update.Message
	log.InfoContext(ctx, "Handling /start command", "chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	user := &database.User{
		UserID:    msg.From.ID,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		Username:  msg.From.Username,
		ChatType:  string(msg.Chat.Type),
	}
	if err := h.deps.Store.RegisterUser(ctx, user, true); err != nil {
		log.ErrorContext(ctx, "Failed to register user on start", "error", err, "user_id", msg.From.ID)
	}

	firstName := msg.From.FirstName
	if firstName == "" {
		firstName = "there"
	}
	cooldownSecs := int(h.deps.Config.RateLimit.Cooldown.Seconds())
	welcome := fmt.Sprintf(h.deps.Config.Messages.Welcome, firstName, cooldownSecs)

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: welcome}); err != nil {
		log.ErrorContext(ctx, "Failed to send welcome message", "error", err, "chat_id", msg.Chat.ID)
	}
}
