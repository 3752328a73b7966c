// Package pipeline implements the per-message request orchestration: validate,
// rate-check, mark in flight, aggregate answers, persist, and deliver.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mirbot/mirbot/internal/config"
	"github.com/mirbot/mirbot/internal/database"
	"github.com/mirbot/mirbot/internal/ratelimit"
)

// Messenger is the outbound transport capability the pipeline needs. It is
// satisfied by *bot.Bot and faked in tests.
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
}

// Fetcher produces one reply for a prompt. Satisfied by provider.Aggregator.
type Fetcher interface {
	Fetch(ctx context.Context, text string) string
}

// Inbound carries one incoming chat message through the pipeline.
type Inbound struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
	ChatType  string
	FirstName string
	LastName  string
	Username  string
}

// Result is the terminal state a message reached.
type Result string

const (
	ResultDelivered   Result = "delivered"
	ResultEmpty       Result = "rejected_empty"
	ResultRateLimited Result = "rejected_rate_limited"
	ResultIgnored     Result = "ignored"
)

// Pipeline orchestrates handling of one inbound message at a time; many
// pipeline invocations run concurrently, one per update.
type Pipeline struct {
	store    database.Store
	limiter  *ratelimit.Limiter
	fetcher  Fetcher
	delivery *Delivery
	messages config.MessagesConfig
	reserved []string
	logger   *slog.Logger
}

// New creates a request pipeline. reserved lists keyword texts that are
// handled elsewhere (e.g. command words) and must be ignored here.
func New(
	store database.Store,
	limiter *ratelimit.Limiter,
	fetcher Fetcher,
	delivery *Delivery,
	messages config.MessagesConfig,
	reserved []string,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		store:    store,
		limiter:  limiter,
		fetcher:  fetcher,
		delivery: delivery,
		messages: messages,
		reserved: reserved,
		logger:   logger.With("component", "pipeline"),
	}
}

// Handle runs one inbound message through the pipeline and reports the
// terminal state it reached. A non-nil error means the request was lost
// mid-flight (persistence or transport failure); the user has already been
// notified where possible, and other in-flight requests are unaffected.
func (p *Pipeline) Handle(ctx context.Context, m Messenger, in Inbound) (Result, error) {
	log := p.logger.With("chat_id", in.ChatID, "user_id", in.UserID)

	text := strings.TrimSpace(in.Text)
	if text == "" {
		log.InfoContext(ctx, "Rejecting empty message")
		p.reply(ctx, m, in.ChatID, p.messages.EmptyMessage)
		return ResultEmpty, nil
	}

	if p.isReserved(text) {
		log.DebugContext(ctx, "Ignoring command or reserved keyword")
		return ResultIgnored, nil
	}

	user := &database.User{
		UserID:    in.UserID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Username:  in.Username,
		ChatType:  in.ChatType,
	}
	if err := p.store.RegisterUser(ctx, user, false); err != nil {
		log.ErrorContext(ctx, "Failed to register user", "error", err)
		p.reply(ctx, m, in.ChatID, p.messages.GeneralError)
		return "", fmt.Errorf("failed to register user %d: %w", in.UserID, err)
	}

	allowed, err := p.limiter.Allow(ctx, in.UserID, time.Now().UTC())
	if err != nil {
		log.ErrorContext(ctx, "Rate gate check failed", "error", err)
		p.reply(ctx, m, in.ChatID, p.messages.GeneralError)
		return "", fmt.Errorf("rate gate check failed for user %d: %w", in.UserID, err)
	}
	if !allowed {
		log.InfoContext(ctx, "Rejecting rate-limited message")
		p.reply(ctx, m, in.ChatID, p.messages.Cooldown)
		return ResultRateLimited, nil
	}

	if err := p.store.IncrementRequestCount(ctx, in.UserID); err != nil {
		log.ErrorContext(ctx, "Failed to increment request count", "error", err)
		p.reply(ctx, m, in.ChatID, p.messages.GeneralError)
		return "", fmt.Errorf("failed to increment request count for user %d: %w", in.UserID, err)
	}

	placeholder, err := m.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: in.ChatID,
		Text:   p.messages.Processing,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send placeholder message", "error", err)
		return "", fmt.Errorf("failed to send placeholder message: %w", err)
	}

	answer := p.fetcher.Fetch(ctx, text)

	req := &database.Request{
		UserID:   in.UserID,
		Message:  text,
		Response: answer,
	}
	if err := p.store.SaveRequest(ctx, req); err != nil {
		log.ErrorContext(ctx, "Failed to persist request record", "error", err)
		// The exchange record is lost; tell the user instead of delivering
		// an answer the ledger never saw.
		if _, editErr := m.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    in.ChatID,
			MessageID: placeholder.ID,
			Text:      p.messages.GeneralError,
		}); editErr != nil {
			log.ErrorContext(ctx, "Failed to edit placeholder after persistence failure", "error", editErr)
		}
		return "", fmt.Errorf("failed to persist request for user %d: %w", in.UserID, err)
	}

	if err := p.delivery.Deliver(ctx, m, in.ChatID, placeholder.ID, answer); err != nil {
		log.ErrorContext(ctx, "Failed to deliver reply", "error", err)
		return "", fmt.Errorf("failed to deliver reply to chat %d: %w", in.ChatID, err)
	}

	log.InfoContext(ctx, "Request handled", "request_id", req.ID)
	return ResultDelivered, nil
}

// isReserved reports whether text is handled by a dedicated handler instead
// of the pipeline. Keyword matching is exact, mirroring how the bare keyword
// handlers register; a case variant is an ordinary question, not a dead end.
func (p *Pipeline) isReserved(text string) bool {
	if strings.HasPrefix(text, "/") {
		return true
	}
	for _, keyword := range p.reserved {
		if text == keyword {
			return true
		}
	}
	return false
}

// reply sends a short notification message, logging rather than propagating
// transport errors: the pipeline outcome is already decided at that point.
func (p *Pipeline) reply(ctx context.Context, m Messenger, chatID int64, text string) {
	if _, err := m.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		p.logger.ErrorContext(ctx, "Failed to send notification reply", "chat_id", chatID, "error", err)
	}
}
