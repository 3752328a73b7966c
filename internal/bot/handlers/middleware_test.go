package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jmoiron/sqlx"

	"github.com/mirbot/mirbot/internal/database"
)

func newTestDeps(t *testing.T) (HandlerDeps, *sqlx.DB) {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	deps := HandlerDeps{
		Store:  database.NewStore(db, nil),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return deps, db
}

func messageUpdate(text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   10,
			Text: text,
			Chat: models.Chat{ID: 500, Type: "private"},
			From: &models.User{ID: 600, FirstName: "Ada", LastName: "Lovelace", Username: "ada"},
		},
	}
}

func TestAuditLogRecordsEveryMessage(t *testing.T) {
	t.Parallel()

	deps, db := newTestDeps(t)

	var handled int
	handler := AuditLog(deps)(func(context.Context, *tgbot.Bot, *models.Update) {
		handled++
	})

	// Commands and plain messages alike leave exactly one entry each.
	handler(context.Background(), nil, messageUpdate("/start"))
	handler(context.Background(), nil, messageUpdate("what time is it?"))

	if handled != 2 {
		t.Errorf("inner handler ran %d times, want 2", handled)
	}

	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM logs`); err != nil {
		t.Fatalf("failed to count log entries: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d log entries, want 2 (one per inbound message)", count)
	}
}

func TestAuditLogEntryContents(t *testing.T) {
	t.Parallel()

	deps, db := newTestDeps(t)

	handler := AuditLog(deps)(func(context.Context, *tgbot.Bot, *models.Update) {})
	handler(context.Background(), nil, messageUpdate("hello"))

	var entry database.LogEntry
	if err := db.Get(&entry, `SELECT * FROM logs WHERE chat_id = 500`); err != nil {
		t.Fatalf("failed to read log entry: %v", err)
	}
	if entry.SenderID != 600 {
		t.Errorf("sender_id = %d, want 600", entry.SenderID)
	}
	if entry.Name != "Ada Lovelace" {
		t.Errorf("name = %q, want %q", entry.Name, "Ada Lovelace")
	}
	if entry.Username != "ada" || entry.ChatType != "private" || entry.Message != "hello" {
		t.Errorf("unexpected log entry: %+v", entry)
	}
	if entry.Time == "" {
		t.Error("log entry time should be set")
	}
}

func TestAuditLogSkipsNonMessageUpdates(t *testing.T) {
	t.Parallel()

	deps, db := newTestDeps(t)

	var handled int
	handler := AuditLog(deps)(func(context.Context, *tgbot.Bot, *models.Update) {
		handled++
	})
	handler(context.Background(), nil, &models.Update{ID: 2})

	if handled != 1 {
		t.Errorf("inner handler ran %d times for a non-message update, want 1", handled)
	}

	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM logs`); err != nil {
		t.Fatalf("failed to count log entries: %v", err)
	}
	if count != 0 {
		t.Errorf("got %d log entries for a non-message update, want 0", count)
	}
}
