package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

var _ ChatStore = (*SQLiteStore)(nil)

// SQLiteStore persists every collection in a single SQLite file. Timestamps are stored in UTC
// so that text comparison orders them.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, now: func() time.Time { return cfg.Now().UTC() }}, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	now := s.now()
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}
	last := rec.LastActivity
	if last.IsZero() {
		last = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			phone = excluded.phone,
			user_id = excluded.user_id,
			state = excluded.state,
			is_active = excluded.is_active,
			admin_handling = excluded.admin_handling,
			admin_id = excluded.admin_id,
			data = excluded.data,
			last_activity = excluded.last_activity,
			updated_at = excluded.updated_at`,
		rec.SessionID, nilIfEmpty(rec.Phone), nilIfEmpty(rec.UserID), rec.State, rec.IsActive,
		rec.AdminHandling, nilIfEmpty(rec.AdminID), string(jsonOrEmpty(rec.Data)),
		created.UTC(), last.UTC(), now)
	if err != nil {
		slog.Error("SQLiteStore.SaveSession failed", "error", err, "session_id", rec.SessionID)
		return fmt.Errorf("failed to save session %s: %w", rec.SessionID, err)
	}
	slog.Debug("SQLiteStore.SaveSession succeeded", "session_id", rec.SessionID, "state", rec.State)
	return nil
}

func (s *SQLiteStore) LoadSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE session_id = ?`, sessionID)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.LoadSession failed", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) SessionsByPhone(ctx context.Context, phone string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE phone = ? ORDER BY last_activity DESC LIMIT ?`,
		phone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by phone: %w", err)
	}
	return collectSessions(rows)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, f SessionFilter) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE 1 = 1`
	var args []any
	if f.Phone != "" {
		query += ` AND phone LIKE ?`
		args = append(args, "%"+f.Phone+"%")
	}
	if f.AdminHandling != nil {
		query += ` AND admin_handling = ?`
		args = append(args, *f.AdminHandling)
	}
	if !f.ActiveSince.IsZero() {
		query += ` AND is_active = 1 AND last_activity >= ?`
		args = append(args, f.ActiveSince.UTC())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY last_activity DESC, session_id LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return collectSessions(rows)
}

func (s *SQLiteStore) SetAdminHandling(ctx context.Context, sessionID, adminID string, handling bool) error {
	if !handling {
		adminID = ""
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET admin_handling = ?, admin_id = ?, last_activity = ? WHERE session_id = ?`,
		handling, nilIfEmpty(adminID), s.now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to set admin handling for %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkInactive(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET is_active = 0, updated_at = ? WHERE session_id = ?`, s.now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark session %s inactive: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE last_activity < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) UserMemory(ctx context.Context, phone string) (*UserMemory, error) {
	if phone == "" {
		return nil, nil
	}
	m, err := scanMemory(s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM user_memory WHERE phone = ?`, phone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user memory: %w", err)
	}
	return &m, nil
}

func (s *SQLiteStore) UpdateUserMemory(ctx context.Context, phone string, u MemoryUpdate) error {
	if phone == "" {
		return nil
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memory (phone, name, email, preferred_location, preferred_landmark, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET
			name = COALESCE(excluded.name, user_memory.name),
			email = COALESCE(excluded.email, user_memory.email),
			preferred_location = COALESCE(excluded.preferred_location, user_memory.preferred_location),
			preferred_landmark = COALESCE(excluded.preferred_landmark, user_memory.preferred_landmark),
			updated_at = excluded.updated_at`,
		phone, nilIfEmpty(u.Name), nilIfEmpty(u.Email), nilIfEmpty(u.Location), nilIfEmpty(u.Landmark), now, now)
	if err != nil {
		slog.Error("SQLiteStore.UpdateUserMemory failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update user memory: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordOrder(ctx context.Context, phone, orderID string, total float64, category string) error {
	if phone == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback()

	var cats []string
	m, err := scanMemory(tx.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM user_memory WHERE phone = ?`, phone))
	switch {
	case err == nil:
		cats = m.CategoriesInterested
	case err != sql.ErrNoRows:
		return fmt.Errorf("failed to load user memory: %w", err)
	}
	cats = withCategory(cats, category)

	now := s.now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_memory (phone, total_orders, total_spent, categories_interested, last_order_id, last_order_date, created_at, updated_at)
		VALUES (?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET
			total_orders = user_memory.total_orders + 1,
			total_spent = user_memory.total_spent + excluded.total_spent,
			categories_interested = excluded.categories_interested,
			last_order_id = excluded.last_order_id,
			last_order_date = excluded.last_order_date,
			updated_at = excluded.updated_at`,
		phone, total, encodeCategories(cats), orderID, now, now, now)
	if err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, e Event) error {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO chat_analytics (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.SessionID, nilIfEmpty(e.Intent), string(meta), e.Timestamp.UTC(), e.Hour, e.Date)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM chat_analytics WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return collectEvents(rows)
}

func (s *SQLiteStore) CountSessionsCreated(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_sessions WHERE created_at >= ? AND created_at < ?`, from.UTC(), to.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
