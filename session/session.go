// Package session tracks per-conversation state: the acting identity,
// stored tool results available for later reference, and preferences
// injected into downstream tool calls. It is grounded on the teacher's
// session store, simplified from a durable multi-run store to an
// in-memory, process-local map since the kernel owns no persistence layer.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaleyeah/agentkernel/authz"
	"github.com/shaleyeah/agentkernel/types"
)

// Session holds everything scoped to one conversation.
type Session struct {
	mu sync.RWMutex

	id           string
	identity     types.UserIdentity
	preferences  types.Preferences
	createdAt    time.Time
	lastActivity time.Time
	results      map[string]any
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// touch stamps lastActivity. Called under s.mu already held for writing, or
// taken fresh for read-only accessors.
func (s *Session) touch() {
	s.lastActivity = time.Now().UTC()
}

// Identity returns a copy of the session's acting identity.
func (s *Session) Identity() types.UserIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.identity
}

// StoreResult records a tool's output under toolName for later retrieval
// within the same session. A later call with the same toolName overwrites
// the prior result.
func (s *Session) StoreResult(toolName string, result any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[toolName] = result
	s.touch()
}

// GetResult retrieves a previously stored tool result.
func (s *Session) GetResult(toolName string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	v, ok := s.results[toolName]
	return v, ok
}

// AvailableResults lists the tool names with stored results.
func (s *Session) AvailableResults() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.availableResultsLocked()
}

// availableResultsLocked assumes s.mu is already held.
func (s *Session) availableResultsLocked() []string {
	out := make([]string, 0, len(s.results))
	for name := range s.results {
		out = append(out, name)
	}
	return out
}

// InjectedContext builds the per-request context handed to workers,
// carrying identity, timing, and previously gathered results.
func (s *Session) InjectedContext() types.InjectedContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return types.InjectedContext{
		UserID:           s.identity.UserID,
		Role:             s.identity.Role,
		SessionID:        s.id,
		Timestamp:        time.Now().UTC(),
		Timezone:         "UTC",
		DefaultBasin:     s.preferences.DefaultBasin,
		RiskTolerance:    s.preferences.RiskTolerance,
		AvailableResults: s.availableResultsLocked(),
	}
}

// Info returns the sanitized view of the session exposed through the
// kernel's getSession facade method, omitting raw result payloads.
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.SessionInfo{
		ID:               s.id,
		UserID:           s.identity.UserID,
		Role:             s.identity.Role,
		CreatedAt:        s.createdAt,
		LastActivity:     s.lastActivity,
		AvailableResults: s.availableResultsLocked(),
	}
}

// Manager creates and tracks sessions, enforcing strict per-session
// isolation: no session can observe another's results or identity.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// defaultIdentity is used when CreateSession is called without an explicit
// identity, matching the kernel's "demo mode" posture.
func defaultIdentity() types.UserIdentity {
	return types.UserIdentity{
		UserID:      "demo",
		Role:        types.RoleAnalyst,
		Permissions: authz.PermissionsForRole(types.RoleAnalyst),
	}
}

// CreateSession allocates a new session. A nil identity falls back to the
// default demo identity with analyst-level permissions. A nil preferences
// leaves the session's preferences at their zero value.
func (m *Manager) CreateSession(identity *types.UserIdentity, preferences *types.Preferences) *Session {
	id := uuid.NewString()
	ident := defaultIdentity()
	if identity != nil {
		ident = *identity
		if ident.Permissions == nil {
			ident.Permissions = authz.PermissionsForRole(ident.Role)
		}
	}

	var prefs types.Preferences
	if preferences != nil {
		prefs = *preferences
	}

	now := time.Now().UTC()
	s := &Session{
		id:           id,
		identity:     ident,
		preferences:  prefs,
		createdAt:    now,
		lastActivity: now,
		results:      make(map[string]any),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s
}

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// DestroySession removes a session, returning false if it did not exist.
func (m *Manager) DestroySession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// ListSessions returns the sanitized info for every active session.
func (m *Manager) ListSessions() []types.SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]types.SessionInfo, len(sessions))
	for i, s := range sessions {
		out[i] = s.Info()
	}
	return out
}

// ErrNotFound is returned by helpers that resolve a session ID string that
// has no backing session.
type ErrNotFound struct{ ID string }

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}
