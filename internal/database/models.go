package database

import "database/sql"

// Timestamp layouts used by the store. LastRequest is stored as RFC3339 with
// nanoseconds so it can be parsed back for sub-second cooldown interval
// arithmetic; the remaining timestamps use the sortable wall-clock form.
const (
	TimeLayout = "2006-01-02 15:04:05"
)

// User represents a chat user. A row is created on the first observed message
// from an identifier and mutated on every accepted request.
type User struct {
	UserID       int64          `db:"user_id"`
	FirstName    string         `db:"first_name"`
	LastName     string         `db:"last_name"`
	Username     string         `db:"username"`
	ChatType     string         `db:"chat_type"`
	RequestCount int64          `db:"request_count"`
	LastRequest  sql.NullString `db:"last_request"`
	LastStart    sql.NullString `db:"last_start"`
	CreatedAt    string         `db:"created_at"`
}

// Request is an immutable record of one completed exchange: the user's
// message and the response that was chosen for it.
type Request struct {
	ID       int64  `db:"id"`
	UserID   int64  `db:"user_id"`
	Message  string `db:"message"`
	Response string `db:"response"`
	Time     string `db:"time"`
}

// LogEntry is an audit record written once for every inbound message,
// regardless of how the message was handled. It is never read back by the
// bot itself.
type LogEntry struct {
	ID       int64  `db:"id"`
	Time     string `db:"time"`
	ChatID   int64  `db:"chat_id"`
	SenderID int64  `db:"sender_id"`
	Name     string `db:"name"`
	Username string `db:"username"`
	ChatType string `db:"chat_type"`
	Message  string `db:"message"`
}

// Stats aggregates usage figures: global totals plus one user's slice.
type Stats struct {
	TotalUsers    int64
	TotalRequests int64
	UserRequests  int64
	LastStart     string
}
