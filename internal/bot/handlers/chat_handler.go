package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mirbot/mirbot/internal/pipeline"
)

// NewChatHandler returns the default message handler: it adapts an incoming
// update into a pipeline request and runs it. Private and group messages go
// through the same pipeline.
func NewChatHandler(deps HandlerDeps) bot.HandlerFunc {
	return chatHandler{deps}.Handle
}

type chatHandler struct {
	deps HandlerDeps
}

func (h chatHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "chat")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.DebugContext(ctx, "Ignoring update with nil message or sender", "update_id", update.ID)
		return
	}

	in := pipeline.Inbound{
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		MessageID: msg.ID,
		Text:      msg.Text,
		ChatType:  string(msg.Chat.Type),
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		Username:  msg.From.Username,
	}

	result, err := h.deps.Pipeline.Handle(ctx, b, in)
	if err != nil {
		log.ErrorContext(ctx, "Request pipeline failed",
			"chat_id", in.ChatID, "user_id", in.UserID, "error", err)
		return
	}
	log.DebugContext(ctx, "Request pipeline finished", "chat_id", in.ChatID, "result", string(result))
}
