// Package session holds per-user conversational working state.
//
// A session is a cache, not the durable profile: it may be rebuilt from
// durable state at any time and must never be treated as authoritative for
// already-confirmed profiles. The store enforces one exclusive lock per
// identity, so at most one conversation turn per user mutates state at a
// time.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/FitPulse/internal/genai"
	"github.com/BTreeMap/FitPulse/internal/models"
)

// MaxHistory caps the retained conversation turns per session. Older turns
// are dropped oldest-first.
const MaxHistory = 50

// Session is one user's ephemeral conversation state.
type Session struct {
	Identity             string
	Stage                models.Stage
	Profile              models.Profile
	ConfirmationAttempts int
	JustViewedProfile    bool
	History              []genai.Message
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AppendTurn records one conversation turn, trimming history to MaxHistory.
func (s *Session) AppendTurn(role, content string) {
	s.History = append(s.History, genai.Message{Role: role, Content: content})
	if len(s.History) > MaxHistory {
		s.History = s.History[len(s.History)-MaxHistory:]
	}
	s.UpdatedAt = time.Now()
}

// Store is the process-wide session registry keyed by sender identity.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// WithSession runs fn while holding the identity's exclusive lock, creating
// the session on first use. Concurrent turns for the same identity serialize;
// turns for different identities proceed in parallel.
func (st *Store) WithSession(identity string, fn func(*Session) error) error {
	st.mu.Lock()
	e, ok := st.entries[identity]
	if !ok {
		e = &entry{sess: &Session{
			Identity:  identity,
			Stage:     models.StageBasic,
			Profile:   models.Profile{Phone: identity},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}}
		st.entries[identity] = e
		slog.Debug("SessionStore.WithSession: created session", "identity", identity)
	}
	st.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}

// Peek returns a copy of the identity's session for inspection.
func (st *Store) Peek(identity string) (Session, bool) {
	st.mu.Lock()
	e, ok := st.entries[identity]
	st.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.sess, true
}

// Delete drops the identity's session. In-flight turns holding the entry
// lock finish against the detached session.
func (st *Store) Delete(identity string) {
	st.mu.Lock()
	delete(st.entries, identity)
	st.mu.Unlock()
	slog.Debug("SessionStore.Delete: removed session", "identity", identity)
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}
