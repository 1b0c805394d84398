package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

var _ ChatStore = (*PostgresStore)(nil)

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db, now: cfg.Now}, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, rec SessionRecord) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO UPDATE SET
			phone = EXCLUDED.phone,
			user_id = EXCLUDED.user_id,
			state = EXCLUDED.state,
			is_active = EXCLUDED.is_active,
			admin_handling = EXCLUDED.admin_handling,
			admin_id = EXCLUDED.admin_id,
			data = EXCLUDED.data,
			last_activity = EXCLUDED.last_activity,
			updated_at = EXCLUDED.updated_at`,
		rec.SessionID, nilIfEmpty(rec.Phone), nilIfEmpty(rec.UserID), rec.State, rec.IsActive,
		rec.AdminHandling, nilIfEmpty(rec.AdminID), string(jsonOrEmpty(rec.Data)), created, last, now)
	if err != nil {
		slog.Error("PostgresStore.SaveSession failed", "error", err, "session_id", rec.SessionID)
		return fmt.Errorf("failed to save session %s: %w", rec.SessionID, err)
	}
	slog.Debug("PostgresStore.SaveSession succeeded", "session_id", rec.SessionID, "state", rec.State)
	return nil
}

func (s *PostgresStore) LoadSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE session_id = $1`, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.LoadSession failed", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return &rec, nil
}

func (s *PostgresStore) SessionsByPhone(ctx context.Context, phone string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE phone = $1 ORDER BY last_activity DESC LIMIT $2`,
		phone, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by phone: %w", err)
	}
	return collectSessions(rows)
}

func (s *PostgresStore) ListSessions(ctx context.Context, f SessionFilter) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Phone != "" {
		query += ` AND phone ILIKE ` + arg("%"+f.Phone+"%")
	}
	if f.AdminHandling != nil {
		query += ` AND admin_handling = ` + arg(*f.AdminHandling)
	}
	if !f.ActiveSince.IsZero() {
		query += ` AND is_active AND last_activity >= ` + arg(f.ActiveSince)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY last_activity DESC, session_id LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return collectSessions(rows)
}

func (s *PostgresStore) SetAdminHandling(ctx context.Context, sessionID, adminID string, handling bool) error {
	if !handling {
		adminID = ""
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET admin_handling = $1, admin_id = $2, last_activity = $3 WHERE session_id = $4`,
		handling, nilIfEmpty(adminID), s.now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to set admin handling for %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) MarkInactive(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET is_active = FALSE, updated_at = $1 WHERE session_id = $2`, s.now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark session %s inactive: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE last_activity < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) UserMemory(ctx context.Context, phone string) (*UserMemory, error) {
	if phone == "" {
		return nil, nil
	}
	m, err := scanMemory(s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM user_memory WHERE phone = $1`, phone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user memory: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) UpdateUserMemory(ctx context.Context, phone string, u MemoryUpdate) error {
	if phone == "" {
		return nil
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memory (phone, name, email, preferred_location, preferred_landmark, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (phone) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, user_memory.name),
			email = COALESCE(EXCLUDED.email, user_memory.email),
			preferred_location = COALESCE(EXCLUDED.preferred_location, user_memory.preferred_location),
			preferred_landmark = COALESCE(EXCLUDED.preferred_landmark, user_memory.preferred_landmark),
			updated_at = EXCLUDED.updated_at`,
		phone, nilIfEmpty(u.Name), nilIfEmpty(u.Email), nilIfEmpty(u.Location), nilIfEmpty(u.Landmark), now)
	if err != nil {
		slog.Error("PostgresStore.UpdateUserMemory failed", "error", err, "phone", phone)
		return fmt.Errorf("failed to update user memory: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordOrder(ctx context.Context, phone, orderID string, total float64, category string) error {
	if phone == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback()

	var cats []string
	m, err := scanMemory(tx.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM user_memory WHERE phone = $1 FOR UPDATE`, phone))
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
		VALUES ($1, 1, $2, $3, $4, $5, $5, $5)
		ON CONFLICT (phone) DO UPDATE SET
			total_orders = user_memory.total_orders + 1,
			total_spent = user_memory.total_spent + EXCLUDED.total_spent,
			categories_interested = EXCLUDED.categories_interested,
			last_order_id = EXCLUDED.last_order_id,
			last_order_date = EXCLUDED.last_order_date,
			updated_at = EXCLUDED.updated_at`,
		phone, total, encodeCategories(cats), orderID, now)
	if err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) RecordEvent(ctx context.Context, e Event) error {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_analytics (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Type, e.SessionID, nilIfEmpty(e.Intent), string(meta), e.Timestamp, e.Hour, e.Date)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *PostgresStore) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM chat_analytics WHERE timestamp >= $1 AND timestamp < $2 ORDER BY timestamp`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return collectEvents(rows)
}

func (s *PostgresStore) CountSessionsCreated(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_sessions WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
