package wizard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"school-time-bot/api/internal/generate"
	"school-time-bot/api/internal/llm"
)

// Session is one user's wizard plus what the surfaces keep next to it: the
// chosen engine, the assistant chat history, a staged edit form and an input
// mode. All of it goes when the session expires.
type Session struct {
	ID string

	mu      sync.Mutex
	w       *Wizard
	touched time.Time

	// meta guards the fields below; it may be taken inside Do.
	meta    sync.Mutex
	engine  llm.Engine
	history []generate.Turn
	staged  Form
	mode    string
}

// Do runs fn with exclusive access to the session's wizard.
func (s *Session) Do(fn func(w *Wizard) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	return fn(s.w)
}

// Engine is the engine chosen for this session, nil for the default.
func (s *Session) Engine() llm.Engine {
	s.meta.Lock()
	defer s.meta.Unlock()
	return s.engine
}

func (s *Session) SetEngine(e llm.Engine) {
	s.meta.Lock()
	s.engine = e
	s.meta.Unlock()
}

func (s *Session) History() []generate.Turn {
	s.meta.Lock()
	defer s.meta.Unlock()
	return append([]generate.Turn(nil), s.history...)
}

func (s *Session) AddTurn(t generate.Turn) {
	s.meta.Lock()
	defer s.meta.Unlock()
	s.history = append(s.history, t)
	if n := len(s.history); n > maxTurns {
		s.history = append([]generate.Turn(nil), s.history[n-maxTurns:]...)
	}
}

// Stage keeps f as an unconfirmed edit of its step.
func (s *Session) Stage(f Form) {
	s.meta.Lock()
	s.staged = f
	s.meta.Unlock()
}

// TakeStaged removes the staged form and returns it if it belongs to step.
func (s *Session) TakeStaged(step Step) (Form, bool) {
	s.meta.Lock()
	defer s.meta.Unlock()
	f := s.staged
	s.staged = nil
	if f == nil || f.Step() != step {
		return nil, false
	}
	return f, true
}

func (s *Session) Staged() Form {
	s.meta.Lock()
	defer s.meta.Unlock()
	return s.staged
}

// Mode is a surface-defined input mode, empty by default.
func (s *Session) Mode() string {
	s.meta.Lock()
	defer s.meta.Unlock()
	return s.mode
}

func (s *Session) SetMode(m string) {
	s.meta.Lock()
	s.mode = m
	s.meta.Unlock()
}

// ClearSurface drops the staged form and the input mode.
func (s *Session) ClearSurface() {
	s.meta.Lock()
	s.staged, s.mode = nil, ""
	s.meta.Unlock()
}

const maxTurns = 20

// Store keeps sessions in memory, keyed by chat id or a generated uuid.
type Store struct {
	sessions sync.Map // id -> *Session
}

func NewStore() *Store { return &Store{} }

// Get returns the session for id, creating it on first use.
func (st *Store) Get(id string) *Session {
	if v, ok := st.sessions.Load(id); ok {
		return v.(*Session)
	}
	v, _ := st.sessions.LoadOrStore(id, &Session{ID: id, w: New(), touched: time.Now()})
	return v.(*Session)
}

// Lookup returns an existing session only.
func (st *Store) Lookup(id string) (*Session, bool) {
	v, ok := st.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Create starts a session under a fresh uuid.
func (st *Store) Create() *Session {
	return st.Get(uuid.NewString())
}

func (st *Store) Delete(id string) { st.sessions.Delete(id) }

// Expire drops sessions idle for longer than ttl and returns how many went.
func (st *Store) Expire(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	n := 0
	st.sessions.Range(func(k, v any) bool {
		s := v.(*Session)
		s.mu.Lock()
		idle := s.touched.Before(cutoff)
		s.mu.Unlock()
		if idle {
			st.sessions.Delete(k)
			n++
		}
		return true
	})
	return n
}
