package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// jsonOrEmpty returns data, or an empty object when data is empty.
func jsonOrEmpty(data []byte) []byte {
	if len(data) == 0 {
		return []byte("{}")
	}
	return data
}

const sessionColumns = `session_id, phone, user_id, state, is_active, admin_handling, admin_id, data, created_at, last_activity, updated_at`

// scanSession scans a SessionRecord in sessionColumns order.
func scanSession(row rowScanner) (SessionRecord, error) {
	var r SessionRecord
	var phone, userID, adminID sql.NullString
	var data []byte
	err := row.Scan(&r.SessionID, &phone, &userID, &r.State, &r.IsActive, &r.AdminHandling, &adminID,
		&data, &r.CreatedAt, &r.LastActivity, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.Phone = phone.String
	r.UserID = userID.String
	r.AdminID = adminID.String
	r.Data = slices.Clone(data)
	return r, nil
}

// collectSessions drains rows into records.
func collectSessions(rows *sql.Rows) ([]SessionRecord, error) {
	defer rows.Close()
	var out []SessionRecord
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return out, nil
}

const memoryColumns = `phone, name, email, preferred_location, preferred_landmark, total_orders, total_spent, categories_interested, last_order_id, last_order_date, created_at, updated_at`

// scanMemory scans a UserMemory in memoryColumns order.
func scanMemory(row rowScanner) (UserMemory, error) {
	var m UserMemory
	var name, email, loc, landmark, cats, lastOrder sql.NullString
	var lastDate sql.NullTime
	err := row.Scan(&m.Phone, &name, &email, &loc, &landmark, &m.TotalOrders, &m.TotalSpent, &cats,
		&lastOrder, &lastDate, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	m.Name = name.String
	m.Email = email.String
	m.PreferredLocation = loc.String
	m.PreferredLandmark = landmark.String
	m.LastOrderID = lastOrder.String
	if lastDate.Valid {
		t := lastDate.Time
		m.LastOrderDate = &t
	}
	if cats.String != "" {
		if err := json.Unmarshal([]byte(cats.String), &m.CategoriesInterested); err != nil {
			return m, fmt.Errorf("decode categories: %w", err)
		}
	}
	return m, nil
}

// encodeCategories renders a category set for storage.
func encodeCategories(cats []string) string {
	if len(cats) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(cats)
	return string(b)
}

// withCategory returns cats plus category when it is new.
func withCategory(cats []string, category string) []string {
	if category == "" || slices.Contains(cats, category) {
		return cats
	}
	return append(cats, category)
}

const eventColumns = `id, event_type, session_id, intent, metadata, timestamp, hour, date`

// scanEvent scans an Event in eventColumns order.
func scanEvent(row rowScanner) (Event, error) {
	var e Event
	var intent sql.NullString
	var meta []byte
	if err := row.Scan(&e.ID, &e.Type, &e.SessionID, &intent, &meta, &e.Timestamp, &e.Hour, &e.Date); err != nil {
		return e, err
	}
	e.Intent = intent.String
	if len(meta) > 0 && string(meta) != "{}" && string(meta) != "null" {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return e, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return e, nil
}

// collectEvents drains rows into events.
func collectEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return out, nil
}

// encodeMetadata renders event metadata for storage.
func encodeMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}
