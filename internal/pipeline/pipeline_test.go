package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mirbot/mirbot/internal/config"
	"github.com/mirbot/mirbot/internal/database"
	"github.com/mirbot/mirbot/internal/ratelimit"
)

// fixedFetcher always returns the same reply, standing in for the aggregator.
type fixedFetcher struct {
	reply string
}

func (f *fixedFetcher) Fetch(context.Context, string) string { return f.reply }

var testMessages = config.MessagesConfig{
	Welcome:      "Hello, %s! Cooldown is %d seconds.",
	Processing:   "Thinking...",
	EmptyMessage: "Say something.",
	Cooldown:     "Too fast, wait a bit.",
	AllFailed:    "No answer this time.",
	GeneralError: "Something went wrong.",
}

func newTestPipeline(t *testing.T, fetcher Fetcher) (*Pipeline, *sqlx.DB) {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	store := database.NewStore(db, nil)
	limiter := ratelimit.NewLimiter(store, 10*time.Second, nil)
	delivery := NewDelivery(4000, time.Millisecond, nil)

	return New(store, limiter, fetcher, delivery, testMessages, []string{"stats"}, nil), db
}

func testInbound(text string) Inbound {
	return Inbound{
		ChatID:    100,
		UserID:    100,
		MessageID: 1,
		Text:      text,
		ChatType:  "private",
		FirstName: "Ada",
		Username:  "ada",
	}
}

func TestHandleEmptyMessage(t *testing.T) {
	t.Parallel()

	p, db := newTestPipeline(t, &fixedFetcher{reply: "unused"})
	m := &fakeMessenger{}

	result, err := p.Handle(context.Background(), m, testInbound("   "))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result != ResultEmpty {
		t.Errorf("result = %q, want %q", result, ResultEmpty)
	}

	calls := m.recorded()
	if len(calls) != 1 || calls[0].text != testMessages.EmptyMessage {
		t.Errorf("got calls %+v, want a single empty-message notification", calls)
	}

	// Rejected-before-registration messages leave no trace in the ledger.
	var users int
	if err := db.Get(&users, `SELECT COUNT(*) FROM users`); err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if users != 0 {
		t.Errorf("empty message created %d user rows, want 0", users)
	}
}

func TestHandleIgnoresCommandsAndKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"slash command", "/start"},
		{"reserved keyword", "stats"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, _ := newTestPipeline(t, &fixedFetcher{reply: "unused"})
			m := &fakeMessenger{}

			result, err := p.Handle(context.Background(), m, testInbound(tt.text))
			if err != nil {
				t.Fatalf("Handle failed: %v", err)
			}
			if result != ResultIgnored {
				t.Errorf("result = %q, want %q", result, ResultIgnored)
			}
			if calls := m.recorded(); len(calls) != 0 {
				t.Errorf("reserved text should produce no replies, got %+v", calls)
			}
		})
	}
}

func TestHandleKeywordCaseVariantIsAnswered(t *testing.T) {
	t.Parallel()

	// Only the exact keyword is reserved for its dedicated handler; a case
	// variant would otherwise match neither that handler nor the pipeline
	// and the user would get no reply at all.
	p, _ := newTestPipeline(t, &fixedFetcher{reply: "about statistics"})
	m := &fakeMessenger{}

	result, err := p.Handle(context.Background(), m, testInbound("Stats"))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result != ResultDelivered {
		t.Errorf("result = %q, want %q", result, ResultDelivered)
	}
}

func TestHandleDeliversAnswer(t *testing.T) {
	t.Parallel()

	p, db := newTestPipeline(t, &fixedFetcher{reply: "42"})
	m := &fakeMessenger{}

	result, err := p.Handle(context.Background(), m, testInbound("  meaning of life?  "))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result != ResultDelivered {
		t.Errorf("result = %q, want %q", result, ResultDelivered)
	}

	calls := m.recorded()
	if len(calls) != 2 {
		t.Fatalf("got %d transport calls %+v, want placeholder send then edit", len(calls), calls)
	}
	if calls[0].kind != "send" || calls[0].text != testMessages.Processing {
		t.Errorf("first call = %+v, want the processing placeholder", calls[0])
	}
	if calls[1].kind != "edit" || calls[1].messageID != calls[0].messageID || calls[1].text != "42" {
		t.Errorf("second call = %+v, want the answer edited into message %d", calls[1], calls[0].messageID)
	}

	var req database.Request
	if err := db.Get(&req, `SELECT * FROM requests WHERE user_id = 100`); err != nil {
		t.Fatalf("failed to read request record: %v", err)
	}
	if req.Message != "meaning of life?" {
		t.Errorf("persisted message = %q, want the trimmed text", req.Message)
	}
	if req.Response != "42" {
		t.Errorf("persisted response = %q, want %q", req.Response, "42")
	}

	var count int64
	if err := db.Get(&count, `SELECT request_count FROM users WHERE user_id = 100`); err != nil {
		t.Fatalf("failed to read request_count: %v", err)
	}
	if count != 1 {
		t.Errorf("request_count = %d, want 1", count)
	}
}

func TestHandleRateLimitsSecondMessage(t *testing.T) {
	t.Parallel()

	p, db := newTestPipeline(t, &fixedFetcher{reply: "ok"})
	m := &fakeMessenger{}

	if result, err := p.Handle(context.Background(), m, testInbound("first")); err != nil || result != ResultDelivered {
		t.Fatalf("first Handle = (%q, %v), want (%q, nil)", result, err, ResultDelivered)
	}

	result, err := p.Handle(context.Background(), m, testInbound("second"))
	if err != nil {
		t.Fatalf("second Handle failed: %v", err)
	}
	if result != ResultRateLimited {
		t.Errorf("result = %q, want %q", result, ResultRateLimited)
	}

	calls := m.recorded()
	last := calls[len(calls)-1]
	if last.kind != "send" || last.text != testMessages.Cooldown {
		t.Errorf("last call = %+v, want the cooldown notification", last)
	}

	// Rejected requests mutate neither the counter nor the request log.
	var count int64
	if err := db.Get(&count, `SELECT request_count FROM users WHERE user_id = 100`); err != nil {
		t.Fatalf("failed to read request_count: %v", err)
	}
	if count != 1 {
		t.Errorf("request_count = %d after a rejected message, want 1", count)
	}

	var records int64
	if err := db.Get(&records, `SELECT COUNT(*) FROM requests`); err != nil {
		t.Fatalf("failed to count requests: %v", err)
	}
	if records != 1 {
		t.Errorf("request records = %d after a rejected message, want 1", records)
	}
}

func TestHandlePersistsFallbackSentinel(t *testing.T) {
	t.Parallel()

	p, db := newTestPipeline(t, &fixedFetcher{reply: testMessages.AllFailed})
	m := &fakeMessenger{}

	result, err := p.Handle(context.Background(), m, testInbound("anyone there?"))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result != ResultDelivered {
		t.Errorf("result = %q, want %q; the sentinel is delivered like any reply", result, ResultDelivered)
	}

	var response string
	if err := db.Get(&response, `SELECT response FROM requests WHERE user_id = 100`); err != nil {
		t.Fatalf("failed to read persisted response: %v", err)
	}
	if response != testMessages.AllFailed {
		t.Errorf("persisted response = %q, want the fallback sentinel", response)
	}
}

func TestHandlePlaceholderSendFailure(t *testing.T) {
	t.Parallel()

	p, db := newTestPipeline(t, &fixedFetcher{reply: "ok"})
	m := &fakeMessenger{sendErr: context.DeadlineExceeded}

	if _, err := p.Handle(context.Background(), m, testInbound("hello")); err == nil {
		t.Fatal("Handle should report the placeholder send failure")
	}

	// The failure happened after the rate gate admitted the request, so no
	// exchange record exists for it.
	var records int64
	if err := db.Get(&records, `SELECT COUNT(*) FROM requests`); err != nil {
		t.Fatalf("failed to count requests: %v", err)
	}
	if records != 0 {
		t.Errorf("request records = %d after transport failure, want 0", records)
	}
}
