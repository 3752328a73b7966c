package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"go.uber.org/ratelimit"
)

// Delivery splits an oversized reply into bounded segments and sends them in
// order, paced to respect the transport's outbound rate limits.
type Delivery struct {
	maxChunkSize int
	pacer        ratelimit.Limiter
	logger       *slog.Logger
}

// NewDelivery creates a paced chunk sender. maxChunkSize is measured in
// characters; at most one send happens per paceInterval.
func NewDelivery(maxChunkSize int, paceInterval time.Duration, logger *slog.Logger) *Delivery {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Delivery{
		maxChunkSize: maxChunkSize,
		pacer:        ratelimit.New(1, ratelimit.Per(paceInterval)),
		logger:       logger.With("component", "delivery"),
	}
}

// SplitChunks slices text into ordered segments of at most size characters.
// Slicing is raw and position-based, no word-boundary awareness; the
// concatenation of all segments reproduces the original text exactly.
func SplitChunks(text string, size int) []string {
	if size <= 0 || text == "" {
		return []string{text}
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Deliver sends fullText to the chat as ordered segments. The first segment
// replaces the placeholder message already shown to the user; every
// subsequent segment is sent as a new message. Sends are sequential, so
// delivery order always matches segment order.
func (d *Delivery) Deliver(ctx context.Context, m Messenger, chatID int64, placeholderID int, fullText string) error {
	chunks := SplitChunks(fullText, d.maxChunkSize)
	d.logger.DebugContext(ctx, "Delivering reply", "chat_id", chatID, "chunks", len(chunks))

	for i, chunk := range chunks {
		d.pacer.Take()

		if i == 0 {
			_, err := m.EditMessageText(ctx, &bot.EditMessageTextParams{
				ChatID:    chatID,
				MessageID: placeholderID,
				Text:      chunk,
			})
			if err != nil {
				return fmt.Errorf("failed to edit placeholder message: %w", err)
			}
			continue
		}

		_, err := m.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   chunk,
		})
		if err != nil {
			return fmt.Errorf("failed to send segment %d of %d: %w", i+1, len(chunks), err)
		}
	}

	return nil
}
