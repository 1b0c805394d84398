package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/resilience"
	"github.com/BTreeMap/ovnchat/internal/store"
)

const (
	shardCount = 32
	// DefaultTimeout is how long an idle session stays cached.
	DefaultTimeout = 30 * time.Minute
	// cleanupEvery throttles the opportunistic sweep in GetOrCreate.
	cleanupEvery = 30 * time.Second
)

// Store is the persistence a Manager needs.
type Store interface {
	store.SessionStore
	store.MemoryStore
}

// ManagerOpts configures a Manager.
type ManagerOpts struct {
	Store      Store
	Executor   *resilience.Executor
	Timeout    time.Duration
	MaxHistory int
	Now        func() time.Time
}

// ManagerOption mutates ManagerOpts.
type ManagerOption func(*ManagerOpts)

// WithStore persists sessions and user memory. Without a store sessions live only in memory.
func WithStore(s Store) ManagerOption {
	return func(o *ManagerOpts) { o.Store = s }
}

// WithExecutor routes store calls through e.
func WithExecutor(e *resilience.Executor) ManagerOption {
	return func(o *ManagerOpts) { o.Executor = e }
}

// WithTimeout sets the idle timeout after which sessions are persisted and evicted.
func WithTimeout(d time.Duration) ManagerOption {
	return func(o *ManagerOpts) { o.Timeout = d }
}

// WithMaxHistory caps the history kept per session.
func WithMaxHistory(n int) ManagerOption {
	return func(o *ManagerOpts) { o.MaxHistory = n }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(o *ManagerOpts) { o.Now = now }
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Manager caches live sessions in a sharded map and persists them through the store.
type Manager struct {
	opts        ManagerOpts
	shards      [shardCount]*shard
	lastCleanup atomic.Int64
}

// NewManager returns a manager. Defaults: 30 minute timeout, 20 history entries.
func NewManager(opts ...ManagerOption) *Manager {
	o := ManagerOpts{Timeout: DefaultTimeout, MaxHistory: DefaultMaxHistory, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Store != nil && o.Executor == nil {
		o.Executor = resilience.NewExecutor(resilience.NameStore)
	}
	m := &Manager{opts: o}
	for i := range m.shards {
		m.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return m
}

func (m *Manager) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return m.shards[h.Sum32()%shardCount]
}

func (m *Manager) adopt(s *Session) *Session {
	s.maxHistory = m.opts.MaxHistory
	s.now = m.opts.Now
	return s
}

// cache stores s unless another caller cached the same id first, and returns the winner.
func (m *Manager) cache(s *Session) *Session {
	sh := m.shardFor(s.SessionID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if existing, ok := sh.sessions[s.SessionID]; ok {
		return existing
	}
	sh.sessions[s.SessionID] = s
	return s
}

// GetOrCreate returns the session for id. It looks in the cache, then the store, then the
// user memory for phone (pre-filling a returning customer), and otherwise starts fresh.
func (m *Manager) GetOrCreate(ctx context.Context, id, phone string) *Session {
	m.maybeCleanup(ctx)

	if s := m.Get(id); s != nil {
		s.Lock()
		s.Touch()
		s.Unlock()
		return s
	}

	if s := m.load(ctx, id); s != nil {
		s = m.cache(s)
		s.Lock()
		s.Touch()
		s.Unlock()
		slog.Debug("Manager.GetOrCreate: restored from store", "session_id", id, "state", s.State)
		return s
	}

	s := m.adopt(New(id, m.opts.Now()))
	if mem := m.userMemory(ctx, phone); mem != nil {
		s.UserName = mem.Name
		s.UserPhone = mem.Phone
		s.UserEmail = mem.Email
		s.UserLocation = mem.PreferredLocation
		s.UserLandmark = mem.PreferredLandmark
		s.Preferences = Preferences{
			ReturningCustomer:    true,
			TotalOrders:          mem.TotalOrders,
			CategoriesInterested: mem.CategoriesInterested,
		}
		slog.Debug("Manager.GetOrCreate: returning customer", "session_id", id, "total_orders", mem.TotalOrders)
	}
	return m.cache(s)
}

func (m *Manager) load(ctx context.Context, id string) *Session {
	if m.opts.Store == nil {
		return nil
	}
	res := resilience.Execute(ctx, m.opts.Executor, func(ctx context.Context) (*store.SessionRecord, error) {
		return m.opts.Store.LoadSession(ctx, id)
	}, nil)
	if res.Err != nil {
		slog.Warn("Manager.load: store unavailable", "session_id", id, "error", res.Err)
		return nil
	}
	if res.Value == nil {
		return nil
	}
	s, err := FromRecord(*res.Value)
	if err != nil {
		slog.Warn("Manager.load: undecodable session", "session_id", id, "error", err)
		return nil
	}
	return m.adopt(s)
}

func (m *Manager) userMemory(ctx context.Context, phone string) *store.UserMemory {
	if phone == "" || m.opts.Store == nil {
		return nil
	}
	res := resilience.Execute(ctx, m.opts.Executor, func(ctx context.Context) (*store.UserMemory, error) {
		return m.opts.Store.UserMemory(ctx, phone)
	}, nil)
	if res.Err != nil {
		slog.Warn("Manager.userMemory: store unavailable", "error", res.Err)
		return nil
	}
	return res.Value
}

// Get returns a cached session or nil.
func (m *Manager) Get(id string) *Session {
	sh := m.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.sessions[id]
}

// Delete evicts id and marks it inactive in the store. History is kept.
func (m *Manager) Delete(ctx context.Context, id string) error {
	sh := m.shardFor(id)
	sh.mu.Lock()
	delete(sh.sessions, id)
	sh.mu.Unlock()

	if m.opts.Store == nil {
		return nil
	}
	res := resilience.Execute(ctx, m.opts.Executor, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.opts.Store.MarkInactive(ctx, id)
	}, nil)
	return res.Err
}

// Save persists s.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if m.opts.Store == nil {
		return nil
	}
	s.Lock()
	rec, err := s.Record()
	s.Unlock()
	if err != nil {
		return err
	}
	res := resilience.Execute(ctx, m.opts.Executor, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.opts.Store.SaveSession(ctx, rec)
	}, nil)
	if res.Err != nil {
		return fmt.Errorf("save session %s: %w", s.SessionID, res.Err)
	}
	return nil
}

// SaveAll persists every cached session, typically before shutdown.
func (m *Manager) SaveAll(ctx context.Context) error {
	var result *multierror.Error
	for _, s := range m.snapshot() {
		if err := m.Save(ctx, s); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (m *Manager) maybeCleanup(ctx context.Context) {
	now := m.opts.Now().UnixNano()
	last := m.lastCleanup.Load()
	if now-last < int64(cleanupEvery) || !m.lastCleanup.CompareAndSwap(last, now) {
		return
	}
	if _, err := m.CleanupExpired(ctx); err != nil {
		slog.Warn("Manager.GetOrCreate: cleanup incomplete", "error", err)
	}
}

// CleanupExpired persists then evicts sessions idle longer than the timeout. A session that
// cannot be saved stays cached. It returns how many were evicted.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	cutoff := m.opts.Now().Add(-m.opts.Timeout)
	var result *multierror.Error
	evicted := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		var expired []*Session
		for _, s := range sh.sessions {
			if s.LastSeen().Before(cutoff) {
				expired = append(expired, s)
			}
		}
		sh.mu.RUnlock()

		for _, s := range expired {
			if err := m.Save(ctx, s); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			if m.evict(sh, s, cutoff) {
				evicted++
			}
		}
	}
	if evicted > 0 {
		slog.Debug("Manager.CleanupExpired: evicted sessions", "count", evicted)
	}
	return evicted, result.ErrorOrNil()
}

// evict drops s from sh if it is still cached, still idle and not in a turn. A session whose
// lock is held is skipped until the next sweep.
func (m *Manager) evict(sh *shard, s *Session, cutoff time.Time) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.sessions[s.SessionID]; !ok || cur != s {
		return false
	}
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	if !s.LastSeen().Before(cutoff) {
		return false
	}
	delete(sh.sessions, s.SessionID)
	return true
}

// ActiveCount returns how many sessions are cached after a cleanup.
func (m *Manager) ActiveCount(ctx context.Context) int {
	m.CleanupExpired(ctx)
	n := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// All returns the cached sessions after a cleanup, most recently active first.
func (m *Manager) All(ctx context.Context) []*Session {
	m.CleanupExpired(ctx)
	out := m.snapshot()
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastSeen(), out[j].LastSeen()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

func (m *Manager) snapshot() []*Session {
	var out []*Session
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

// SessionsByPhone returns stored sessions for phone, newest first.
func (m *Manager) SessionsByPhone(ctx context.Context, phone string, limit int) ([]store.SessionRecord, error) {
	if m.opts.Store == nil || phone == "" {
		return nil, nil
	}
	res := resilience.Execute(ctx, m.opts.Executor, func(ctx context.Context) ([]store.SessionRecord, error) {
		return m.opts.Store.SessionsByPhone(ctx, phone, limit)
	}, nil)
	return res.Value, res.Err
}

// SetAdminHandling hands the session to (or back from) a human admin.
func (m *Manager) SetAdminHandling(ctx context.Context, id, adminID string, handling bool) error {
	s := m.Get(id)
	if s == nil {
		if s = m.load(ctx, id); s != nil {
			s = m.cache(s)
		}
	}
	if s == nil {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	s.Lock()
	s.AdminHandling = handling
	s.AdminID = ""
	if handling {
		s.AdminID = adminID
	}
	s.Unlock()

	if m.opts.Store == nil {
		return nil
	}
	res := resilience.Execute(ctx, m.opts.Executor, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.opts.Store.SetAdminHandling(ctx, id, adminID, handling)
	}, nil)
	return res.Err
}

// UpdateUserMemory remembers customer details by phone.
func (m *Manager) UpdateUserMemory(ctx context.Context, phone string, u store.MemoryUpdate) error {
	if m.opts.Store == nil || phone == "" || u.Empty() {
		return nil
	}
	res := resilience.Execute(ctx, m.opts.Executor, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.opts.Store.UpdateUserMemory(ctx, phone, u)
	}, nil)
	return res.Err
}

// RecordOrder adds an order to the customer's memory.
func (m *Manager) RecordOrder(ctx context.Context, phone, orderID string, total float64, category string) error {
	if m.opts.Store == nil || phone == "" {
		return nil
	}
	res := resilience.Execute(ctx, m.opts.Executor, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.opts.Store.RecordOrder(ctx, phone, orderID, total, category)
	}, nil)
	return res.Err
}
