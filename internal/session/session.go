package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/store"
)

// DefaultMaxHistory caps the conversation history kept per session.
const DefaultMaxHistory = 20

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAdmin     = "admin"
	RoleSystem    = "system"
)

// Turn is one conversation history entry.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Preferences are learned about returning customers.
type Preferences struct {
	ReturningCustomer    bool     `json:"returning_customer,omitempty"`
	TotalOrders          int      `json:"total_orders,omitempty"`
	CategoriesInterested []string `json:"categories_interested,omitempty"`
}

// Memory is remembered customer detail. Empty fields are ignored by Remember.
type Memory struct {
	Name     string
	Phone    string
	Email    string
	Location string
	Landmark string
}

// Session is one customer's conversation. A session is mutated by one turn at a time; callers
// that may race (admin views, concurrent transports) hold Lock around access.
type Session struct {
	mu sync.Mutex
	// lastSeen mirrors LastActivity in unix nanos for readers that do not hold mu.
	lastSeen atomic.Int64

	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	UserID       string    `json:"user_id,omitempty"`
	IsLoggedIn   bool      `json:"is_logged_in"`

	State   State       `json:"state"`
	Context FlowContext `json:"-"`

	UserName     string `json:"user_name,omitempty"`
	UserPhone    string `json:"user_phone,omitempty"`
	UserEmail    string `json:"user_email,omitempty"`
	UserLocation string `json:"user_location,omitempty"`
	UserLandmark string `json:"user_landmark,omitempty"`

	SelectedProducts   []models.Product `json:"selected_products,omitempty"`
	LastViewedProducts []models.Product `json:"last_viewed_products,omitempty"`
	History            []Turn           `json:"conversation_history,omitempty"`
	Preferences        Preferences      `json:"preferences"`

	AdminHandling bool   `json:"admin_handling"`
	AdminID       string `json:"admin_id,omitempty"`

	maxHistory int
	now        func() time.Time
}

// New returns an idle session created at now.
func New(id string, now time.Time) *Session {
	s := &Session{
		SessionID:    id,
		CreatedAt:    now,
		LastActivity: now,
		State:        StateIdle,
		maxHistory:   DefaultMaxHistory,
		now:          time.Now,
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// Lock serialises access to the session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases Lock.
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Touch records activity. Callers hold Lock.
func (s *Session) Touch() {
	s.LastActivity = s.clock()
	s.lastSeen.Store(s.LastActivity.UnixNano())
}

// LastSeen returns the time of the last Touch. It is safe without Lock.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// AddMessage appends to the history, dropping the oldest entries beyond the cap.
func (s *Session) AddMessage(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content, Timestamp: s.clock()})
	limit := s.maxHistory
	if limit <= 0 {
		limit = DefaultMaxHistory
	}
	if over := len(s.History) - limit; over > 0 {
		s.History = append([]Turn(nil), s.History[over:]...)
	}
}

// RecentHistory returns the last n turns, 6 when n is not positive.
func (s *Session) RecentHistory(n int) []Turn {
	if n <= 0 {
		n = 6
	}
	if n > len(s.History) {
		n = len(s.History)
	}
	return append([]Turn(nil), s.History[len(s.History)-n:]...)
}

// Remember stores the non-empty fields of m.
func (s *Session) Remember(m Memory) {
	if m.Name != "" {
		s.UserName = m.Name
	}
	if m.Phone != "" {
		s.UserPhone = m.Phone
	}
	if m.Email != "" {
		s.UserEmail = m.Email
	}
	if m.Location != "" {
		s.UserLocation = m.Location
	}
	if m.Landmark != "" {
		s.UserLandmark = m.Landmark
	}
}

// SetState moves to state. A non-nil c replaces the flow context; otherwise the current context
// is kept when it belongs to the state's flow and replaced by an empty one when it does not.
// Moving to StateIdle is a Reset.
func (s *Session) SetState(state State, c FlowContext) {
	group := HandlerGroup(state)
	if group == GroupNone {
		s.Reset()
		return
	}
	s.State = state
	switch {
	case c != nil:
		s.Context = c
	case s.Context == nil || s.Context.Group() != group:
		s.Context = newContext(group)
	}
}

// Reset returns to idle and drops the flow context.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Context = nil
}

// Settle drops a context left behind on an idle session.
func (s *Session) Settle() {
	if s.State == StateIdle {
		s.Context = nil
	}
}

// Placement returns the order placement context, attaching an empty one when another flow's
// context (or none) is live.
func (s *Session) Placement() *PlacementContext {
	if c, ok := s.Context.(*PlacementContext); ok {
		return c
	}
	c := &PlacementContext{}
	s.Context = c
	return c
}

// Tracking returns the order tracking context, attaching an empty one when needed.
func (s *Session) Tracking() *TrackingContext {
	if c, ok := s.Context.(*TrackingContext); ok {
		return c
	}
	c := &TrackingContext{}
	s.Context = c
	return c
}

// Support returns the support context, attaching an empty one when needed.
func (s *Session) Support() *SupportContext {
	if c, ok := s.Context.(*SupportContext); ok {
		return c
	}
	c := &SupportContext{}
	s.Context = c
	return c
}

// Review returns the review context, attaching an empty one when needed.
func (s *Session) Review() *ReviewContext {
	if c, ok := s.Context.(*ReviewContext); ok {
		return c
	}
	c := &ReviewContext{}
	s.Context = c
	return c
}

// AddToCart adds quantity of p, merging with an existing line for the same product.
func (s *Session) AddToCart(p models.Product, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	for i := range s.SelectedProducts {
		if s.SelectedProducts[i].ID == p.ID {
			s.SelectedProducts[i].Quantity += quantity
			return
		}
	}
	p.Quantity = quantity
	s.SelectedProducts = append(s.SelectedProducts, p)
}

// ClearCart empties the cart.
func (s *Session) ClearCart() {
	s.SelectedProducts = nil
}

// Summary is the public view of a session.
type Summary struct {
	SessionID  string `json:"session_id"`
	State      State  `json:"state"`
	UserName   string `json:"user_name"`
	UserPhone  string `json:"user_phone"`
	IsLoggedIn bool   `json:"is_logged_in"`
	CartItems  int    `json:"cart_items"`
}

// Summary returns the public view of s.
func (s *Session) Summary() Summary {
	return Summary{
		SessionID:  s.SessionID,
		State:      s.State,
		UserName:   s.UserName,
		UserPhone:  s.UserPhone,
		IsLoggedIn: s.IsLoggedIn,
		CartItems:  len(s.SelectedProducts),
	}
}

// document is the JSON body persisted in store.SessionRecord.Data.
type document struct {
	*Session
	StateContext json.RawMessage `json:"state_context,omitempty"`
}

// Record encodes s for the store.
func (s *Session) Record() (store.SessionRecord, error) {
	s.Settle()
	raw, err := encodeContext(s.Context)
	if err != nil {
		return store.SessionRecord{}, fmt.Errorf("encode flow context: %w", err)
	}
	data, err := json.Marshal(document{Session: s, StateContext: raw})
	if err != nil {
		return store.SessionRecord{}, fmt.Errorf("encode session: %w", err)
	}
	return store.SessionRecord{
		SessionID:     s.SessionID,
		Phone:         s.UserPhone,
		UserID:        s.UserID,
		State:         string(s.State),
		IsActive:      true,
		AdminHandling: s.AdminHandling,
		AdminID:       s.AdminID,
		Data:          data,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
	}, nil
}

// FromRecord decodes a stored session. Unknown states decode to idle, and a context that cannot
// be decoded resets the session rather than failing the load.
func FromRecord(rec store.SessionRecord) (*Session, error) {
	s := New(rec.SessionID, rec.CreatedAt)
	if len(rec.Data) > 0 && string(rec.Data) != "{}" {
		doc := document{Session: s}
		if err := json.Unmarshal(rec.Data, &doc); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", rec.SessionID, err)
		}
		c, err := decodeContext(doc.StateContext)
		if err == nil {
			s.Context = c
		}
	}
	s.SessionID = rec.SessionID
	s.State = ParseState(string(s.State))
	if rec.State != "" {
		s.State = ParseState(rec.State)
	}
	s.AdminHandling = rec.AdminHandling
	s.AdminID = rec.AdminID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = rec.CreatedAt
	}
	if !rec.LastActivity.IsZero() {
		s.LastActivity = rec.LastActivity
	}
	s.lastSeen.Store(s.LastActivity.UnixNano())
	if s.State != StateIdle && (s.Context == nil || s.Context.Group() != HandlerGroup(s.State)) {
		s.Reset()
	}
	s.Settle()
	return s, nil
}
