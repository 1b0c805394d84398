// Package store persists chat sessions, per-customer memory and analytics events.
//
// Three collections are modelled: chat_sessions (upserted by session id), user_memory (upserted
// by phone, with counters) and chat_analytics (append-only). InMemoryStore, SQLiteStore and
// PostgresStore implement all three; RedisSessionStore caches sessions in front of another store.
package store

import (
	"context"
	"time"
)

// SessionRecord is the persisted form of a conversation session. Data carries the full session
// document; the remaining fields are indexed copies used for lookups.
type SessionRecord struct {
	SessionID     string    `json:"session_id"`
	Phone         string    `json:"phone,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	State         string    `json:"state"`
	IsActive      bool      `json:"is_active"`
	AdminHandling bool      `json:"admin_handling"`
	AdminID       string    `json:"admin_id,omitempty"`
	Data          []byte    `json:"data,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SessionFilter narrows ListSessions. Zero values match everything.
type SessionFilter struct {
	Phone         string
	AdminHandling *bool
	ActiveSince   time.Time
	Limit         int
	Offset        int
}

// UserMemory is what the shop remembers about a customer across sessions.
type UserMemory struct {
	Phone                string     `json:"phone"`
	Name                 string     `json:"name,omitempty"`
	Email                string     `json:"email,omitempty"`
	PreferredLocation    string     `json:"preferred_location,omitempty"`
	PreferredLandmark    string     `json:"preferred_landmark,omitempty"`
	TotalOrders          int        `json:"total_orders"`
	TotalSpent           float64    `json:"total_spent"`
	CategoriesInterested []string   `json:"categories_interested,omitempty"`
	LastOrderID          string     `json:"last_order_id,omitempty"`
	LastOrderDate        *time.Time `json:"last_order_date,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// MemoryUpdate sets the non-empty fields of a UserMemory.
type MemoryUpdate struct {
	Name     string
	Email    string
	Location string
	Landmark string
}

// Empty reports whether u would change nothing.
func (u MemoryUpdate) Empty() bool {
	return u.Name == "" && u.Email == "" && u.Location == "" && u.Landmark == ""
}

// apply copies the non-empty fields of u into m.
func (u MemoryUpdate) apply(m *UserMemory) {
	if u.Name != "" {
		m.Name = u.Name
	}
	if u.Email != "" {
		m.Email = u.Email
	}
	if u.Location != "" {
		m.PreferredLocation = u.Location
	}
	if u.Landmark != "" {
		m.PreferredLandmark = u.Landmark
	}
}

// SessionStore persists chat_sessions.
type SessionStore interface {
	// SaveSession upserts rec by session id, keeping the original CreatedAt.
	SaveSession(ctx context.Context, rec SessionRecord) error
	// LoadSession returns nil, nil when the session does not exist.
	LoadSession(ctx context.Context, sessionID string) (*SessionRecord, error)
	// SessionsByPhone returns the newest sessions for phone first.
	SessionsByPhone(ctx context.Context, phone string, limit int) ([]SessionRecord, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]SessionRecord, error)
	SetAdminHandling(ctx context.Context, sessionID, adminID string, handling bool) error
	MarkInactive(ctx context.Context, sessionID string) error
	// DeleteSessionsBefore purges sessions idle since before cutoff and reports how many.
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore persists user_memory.
type MemoryStore interface {
	// UserMemory returns nil, nil when nothing is remembered for phone.
	UserMemory(ctx context.Context, phone string) (*UserMemory, error)
	UpdateUserMemory(ctx context.Context, phone string, u MemoryUpdate) error
	// RecordOrder increments the order counters and adds category to the interests.
	RecordOrder(ctx context.Context, phone, orderID string, total float64, category string) error
}

// AnalyticsStore persists chat_analytics.
type AnalyticsStore interface {
	RecordEvent(ctx context.Context, e Event) error
	// Events returns events with from <= timestamp < to, oldest first.
	Events(ctx context.Context, from, to time.Time) ([]Event, error)
	// CountSessionsCreated counts sessions with from <= created_at < to.
	CountSessionsCreated(ctx context.Context, from, to time.Time) (int, error)
}

// ChatStore is the full persistence surface used by the chatbot.
type ChatStore interface {
	SessionStore
	MemoryStore
	AnalyticsStore
	DedupRepo
	Close() error
}
