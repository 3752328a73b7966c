// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mirbot/mirbot/internal/database"
)

// AuditLog creates a middleware that persists one log entry for every
// inbound message before its handler runs. Logging happens regardless of how
// the message is ultimately handled: commands, rejected, rate-limited, and
// answered messages all leave exactly one entry. A storage failure here is
// logged but does not block handling.
func AuditLog(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			msg := update.Message
			if msg == nil {
				next(ctx, b, update)
				return
			}

			entry := &database.LogEntry{
				ChatID:   msg.Chat.ID,
				ChatType: string(msg.Chat.Type),
				Message:  msg.Text,
			}
			if msg.From != nil {
				entry.SenderID = msg.From.ID
				entry.Name = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
				entry.Username = msg.From.Username
			}

			if err := deps.Store.SaveLog(ctx, entry); err != nil {
				deps.Logger.ErrorContext(ctx, "Failed to persist audit log entry",
					"chat_id", entry.ChatID, "sender_id", entry.SenderID, "error", err)
			}

			next(ctx, b, update)
		}
	}
}
