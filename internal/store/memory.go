package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ ChatStore = (*InMemoryStore)(nil)

// InMemoryStore keeps every collection in process memory. It is the default when no database
// is configured and the backing store for tests.
type InMemoryStore struct {
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]SessionRecord
	memory   map[string]UserMemory
	events   []Event
	dedup    map[string]DedupRecord
}

// NewInMemoryStore returns an empty store. Only WithClock is honoured.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := applyOpts(opts)
	return &InMemoryStore{
		now:      cfg.Now,
		sessions: make(map[string]SessionRecord),
		memory:   make(map[string]UserMemory),
		dedup:    make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) SaveSession(_ context.Context, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if prev, ok := s.sessions[rec.SessionID]; ok && !prev.CreatedAt.IsZero() {
		rec.CreatedAt = prev.CreatedAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Data = slices.Clone(rec.Data)
	s.sessions[rec.SessionID] = rec
	return nil
}

func (s *InMemoryStore) LoadSession(_ context.Context, sessionID string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	rec.Data = slices.Clone(rec.Data)
	return &rec, nil
}

func (s *InMemoryStore) SessionsByPhone(ctx context.Context, phone string, limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	var out []SessionRecord
	for _, rec := range s.sessions {
		if rec.Phone == phone {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()
	return newestFirst(out, 0, limit), nil
}

func (s *InMemoryStore) ListSessions(_ context.Context, f SessionFilter) ([]SessionRecord, error) {
	s.mu.RLock()
	var out []SessionRecord
	for _, rec := range s.sessions {
		if f.Phone != "" && !strings.Contains(rec.Phone, f.Phone) {
			continue
		}
		if f.AdminHandling != nil && rec.AdminHandling != *f.AdminHandling {
			continue
		}
		if !f.ActiveSince.IsZero() && (!rec.IsActive || rec.LastActivity.Before(f.ActiveSince)) {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()
	return newestFirst(out, f.Offset, f.Limit), nil
}

func (s *InMemoryStore) SetAdminHandling(_ context.Context, sessionID, adminID string, handling bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	rec.AdminHandling = handling
	rec.AdminID = ""
	if handling {
		rec.AdminID = adminID
	}
	rec.LastActivity = s.now()
	s.sessions[sessionID] = rec
	return nil
}

func (s *InMemoryStore) MarkInactive(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[sessionID]; ok {
		rec.IsActive = false
		rec.UpdatedAt = s.now()
		s.sessions[sessionID] = rec
	}
	return nil
}

func (s *InMemoryStore) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.sessions {
		if rec.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) UserMemory(_ context.Context, phone string) (*UserMemory, error) {
	if phone == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memory[phone]
	if !ok {
		return nil, nil
	}
	m.CategoriesInterested = slices.Clone(m.CategoriesInterested)
	return &m, nil
}

func (s *InMemoryStore) UpdateUserMemory(_ context.Context, phone string, u MemoryUpdate) error {
	if phone == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.memoryLocked(phone)
	u.apply(&m)
	s.memory[phone] = m
	return nil
}

func (s *InMemoryStore) RecordOrder(_ context.Context, phone, orderID string, total float64, category string) error {
	if phone == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.memoryLocked(phone)
	now := s.now()
	m.TotalOrders++
	m.TotalSpent += total
	m.LastOrderID = orderID
	m.LastOrderDate = &now
	if category != "" && !slices.Contains(m.CategoriesInterested, category) {
		m.CategoriesInterested = append(m.CategoriesInterested, category)
	}
	s.memory[phone] = m
	return nil
}

// memoryLocked returns the record for phone, creating it. Callers hold mu.
func (s *InMemoryStore) memoryLocked(phone string) UserMemory {
	now := s.now()
	m, ok := s.memory[phone]
	if !ok {
		m = UserMemory{Phone: phone, CreatedAt: now}
	}
	m.UpdatedAt = now
	return m
}

func (s *InMemoryStore) RecordEvent(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *InMemoryStore) Events(_ context.Context, from, to time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *InMemoryStore) CountSessionsCreated(_ context.Context, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.sessions {
		if !rec.CreatedAt.Before(from) && rec.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, messageID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, SessionID: sessionID, ReceivedAt: s.now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.dedup[messageID]; ok {
		now := s.now()
		r.ProcessedAt = &now
		s.dedup[messageID] = r
	}
	return nil
}

func (s *InMemoryStore) PruneDedup(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.dedup {
		if r.ReceivedAt.Before(cutoff) {
			delete(s.dedup, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

// newestFirst sorts by last activity descending and applies offset and limit.
func newestFirst(recs []SessionRecord, offset, limit int) []SessionRecord {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].LastActivity.Equal(recs[j].LastActivity) {
			return recs[i].LastActivity.After(recs[j].LastActivity)
		}
		return recs[i].SessionID < recs[j].SessionID
	})
	if offset > 0 {
		if offset >= len(recs) {
			return nil
		}
		recs = recs[offset:]
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
