package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations. Methods accept
// context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RegisterUser upserts a user row. On first sight the user is created;
	// on later calls only last_start is touched, and only when sessionStart
	// is true (i.e. the call comes from a /start command, not an ordinary
	// message).
	RegisterUser(ctx context.Context, user *User, sessionStart bool) error

	// LastRequestAt returns the persisted last-request timestamp for a user.
	// A zero time is returned when the user is unknown or has never made a
	// request.
	LastRequestAt(ctx context.Context, userID int64) (time.Time, error)

	// SetLastRequest records t as the user's last-request timestamp.
	SetLastRequest(ctx context.Context, userID int64, t time.Time) error

	// IncrementRequestCount atomically increments the user's request counter.
	IncrementRequestCount(ctx context.Context, userID int64) error

	// SaveRequest appends one immutable request record.
	SaveRequest(ctx context.Context, req *Request) error

	// SaveLog appends one audit log entry.
	SaveLog(ctx context.Context, entry *LogEntry) error

	// Stats returns global totals plus the given user's request count and
	// last session start.
	Stats(ctx context.Context, userID int64) (*Stats, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RegisterUser upserts a user row inside a transaction so the exists-check
// and the insert/update are not interleaved with other writers.
func (s *sqlxStore) RegisterUser(ctx context.Context, user *User, sessionStart bool) error {
	if user == nil {
		return fmt.Errorf("cannot register nil user")
	}
	if user.UserID == 0 {
		return fmt.Errorf("user must have a non-zero user_id")
	}

	now := time.Now().UTC().Format(TimeLayout)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for user registration",
			"user_id", user.UserID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var exists bool
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM users WHERE user_id = ? LIMIT 1`, user.UserID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.ErrorContext(ctx, "Error checking if user exists", "user_id", user.UserID, "error", err)
		return fmt.Errorf("failed to check if user %d exists: %w", user.UserID, err)
	}

	if !exists {
		user.CreatedAt = now
		if sessionStart {
			user.LastStart = sql.NullString{String: now, Valid: true}
		}
		query := `
			INSERT INTO users (user_id, first_name, last_name, username, chat_type, request_count, last_start, created_at)
			VALUES (:user_id, :first_name, :last_name, :username, :chat_type, 0, :last_start, :created_at)
		`
		if _, err = tx.NamedExecContext(ctx, query, user); err != nil {
			s.logger.ErrorContext(ctx, "Error inserting user", "user_id", user.UserID, "error", err)
			return fmt.Errorf("failed to insert user %d: %w", user.UserID, err)
		}
	} else if sessionStart {
		if _, err = tx.ExecContext(ctx, `UPDATE users SET last_start = ? WHERE user_id = ?`, now, user.UserID); err != nil {
			s.logger.ErrorContext(ctx, "Error updating user session start", "user_id", user.UserID, "error", err)
			return fmt.Errorf("failed to update session start for user %d: %w", user.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit user registration", "user_id", user.UserID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "User registered", "user_id", user.UserID, "created", !exists, "session_start", sessionStart)
	return nil
}

// LastRequestAt returns the persisted last-request timestamp for a user.
func (s *sqlxStore) LastRequestAt(ctx context.Context, userID int64) (time.Time, error) {
	if userID == 0 {
		return time.Time{}, fmt.Errorf("user_id cannot be zero")
	}

	var raw sql.NullString
	err := s.db.GetContext(ctx, &raw, `SELECT last_request FROM users WHERE user_id = ?`, userID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error reading last request timestamp", "user_id", userID, "error", err)
		return time.Time{}, fmt.Errorf("failed to read last request for user %d: %w", userID, err)
	}

	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		s.logger.WarnContext(ctx, "Unparseable last request timestamp, treating as unset",
			"user_id", userID, "value", raw.String, "error", err)
		return time.Time{}, nil
	}
	return t, nil
}

// SetLastRequest records t as the user's last-request timestamp, stored as
// RFC3339 with nanoseconds in UTC. Sub-second precision matters here: the
// cooldown gate does interval arithmetic on the parsed value, and truncating
// to whole seconds would shorten the window by up to a second.
func (s *sqlxStore) SetLastRequest(ctx context.Context, userID int64, t time.Time) error {
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_request = ? WHERE user_id = ?`,
		t.UTC().Format(time.RFC3339Nano), userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error setting last request timestamp", "user_id", userID, "error", err)
		return fmt.Errorf("failed to set last request for user %d: %w", userID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected setting last request",
			"user_id", userID, "affected", affected)
	}
	return nil
}

// IncrementRequestCount atomically increments the user's request counter.
func (s *sqlxStore) IncrementRequestCount(ctx context.Context, userID int64) error {
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET request_count = request_count + 1 WHERE user_id = ?`, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error incrementing request count", "user_id", userID, "error", err)
		return fmt.Errorf("failed to increment request count for user %d: %w", userID, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected incrementing request count",
			"user_id", userID, "affected", affected)
	}
	return nil
}

// SaveRequest appends one immutable request record. The response must be
// non-empty; callers persist a sentinel failure message when no backend
// produced an answer.
func (s *sqlxStore) SaveRequest(ctx context.Context, req *Request) error {
	if req == nil {
		return fmt.Errorf("cannot save nil request")
	}
	if req.UserID == 0 {
		return fmt.Errorf("request must have a non-zero user_id")
	}
	if req.Response == "" {
		return fmt.Errorf("request must have a non-empty response")
	}

	if req.Time == "" {
		req.Time = time.Now().UTC().Format(TimeLayout)
	}

	query := `
		INSERT INTO requests (user_id, message, response, time)
		VALUES (:user_id, :message, :response, :time)
	`
	result, err := s.db.NamedExecContext(ctx, query, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving request", "user_id", req.UserID, "error", err)
		return fmt.Errorf("failed to save request for user %d: %w", req.UserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		req.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving request",
			"user_id", req.UserID, "error", err)
	}

	s.logger.DebugContext(ctx, "Request saved", "user_id", req.UserID, "request_id", req.ID)
	return nil
}

// SaveLog appends one audit log entry.
func (s *sqlxStore) SaveLog(ctx context.Context, entry *LogEntry) error {
	if entry == nil {
		return fmt.Errorf("cannot save nil log entry")
	}

	if entry.Time == "" {
		entry.Time = time.Now().UTC().Format(TimeLayout)
	}

	query := `
		INSERT INTO logs (time, chat_id, sender_id, name, username, chat_type, message)
		VALUES (:time, :chat_id, :sender_id, :name, :username, :chat_type, :message)
	`
	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		s.logger.ErrorContext(ctx, "Error saving log entry",
			"chat_id", entry.ChatID, "sender_id", entry.SenderID, "error", err)
		return fmt.Errorf("failed to save log entry for chat %d: %w", entry.ChatID, err)
	}
	return nil
}

// Stats returns global totals plus the given user's request count and last
// session start.
func (s *sqlxStore) Stats(ctx context.Context, userID int64) (*Stats, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	stats := &Stats{}

	if err := s.db.GetContext(ctx, &stats.TotalUsers, `SELECT COUNT(*) FROM users`); err != nil {
		s.logger.ErrorContext(ctx, "Error counting users", "error", err)
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	if err := s.db.GetContext(ctx, &stats.TotalRequests,
		`SELECT COALESCE(SUM(request_count), 0) FROM users`); err != nil {
		s.logger.ErrorContext(ctx, "Error summing request counts", "error", err)
		return nil, fmt.Errorf("failed to sum request counts: %w", err)
	}

	var row struct {
		RequestCount int64          `db:"request_count"`
		LastStart    sql.NullString `db:"last_start"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT request_count, last_start FROM users WHERE user_id = ?`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Unknown user: global totals still apply, user figures stay zero.
	case err != nil:
		s.logger.ErrorContext(ctx, "Error reading user stats", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to read stats for user %d: %w", userID, err)
	default:
		stats.UserRequests = row.RequestCount
		if row.LastStart.Valid {
			stats.LastStart = row.LastStart.String
		}
	}

	return stats, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
// VACUUM must run outside a transaction in SQLite.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
