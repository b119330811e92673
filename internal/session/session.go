package session

import (
	"sort"
	"sync"

	"ai-nutritionist/internal/history"
	"ai-nutritionist/internal/plan"

	"github.com/google/uuid"
)

// View identifies which screen the router should present.
type View string

const (
	ViewLogin       View = "login"
	ViewMealPlanner View = "meal_planner"
	ViewHistory     View = "history"
	ViewViewPlan    View = "view_plan"
)

// CurrentPlan is the plan on display: either freshly generated (no id or
// timestamp yet) or a saved record selected from history.
type CurrentPlan struct {
	ID          string
	Timestamp   string
	Preferences plan.Preferences
	MealPlan    string
	Failed      bool
}

// Session is the ephemeral state of one interactive user between login and
// logout. It is an explicit object handed to every handler; there is no
// process-wide session singleton.
type Session struct {
	ID            string
	Authenticated bool
	Username      string
	View          View
	History       history.History
	Current       *CurrentPlan
}

// New creates a session in its default (logged-out) state.
func New(id string) *Session {
	return &Session{
		ID:      id,
		View:    ViewLogin,
		History: history.History{},
	}
}

// HistoryEntry pairs a plan id with its record for display.
type HistoryEntry struct {
	ID     string
	Record plan.Record
}

// UserHistory returns the session user's saved plans, newest first. Ties on
// timestamp fall back to the id so the order is stable.
func (s *Session) UserHistory() []HistoryEntry {
	records := s.History[s.Username]
	entries := make([]HistoryEntry, 0, len(records))
	for id, rec := range records {
		entries = append(entries, HistoryEntry{ID: id, Record: rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Record.Timestamp != entries[j].Record.Timestamp {
			return entries[i].Record.Timestamp > entries[j].Record.Timestamp
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Manager tracks live sessions by id. A session is created when a visitor
// first hits the login surface and dropped at logout.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	newID    func() string
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		newID:    uuid.NewString,
	}
}

// Create registers and returns a fresh session.
func (m *Manager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := New(m.newID())
	m.sessions[s.ID] = s
	return s
}

// Get looks up a live session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Drop discards a session.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}
