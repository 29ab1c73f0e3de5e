package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meetline/recapd/internal/metrics"
)

// ErrNotFound is returned for operations on unknown session ids.
var ErrNotFound = errors.New("session not found")

// ErrExists is returned by CreateWithID when the id is already live.
var ErrExists = errors.New("session already exists")

// Store is the registry of live sessions. Constructed once at process
// start and injected into every component that needs it. A session is
// pinned to the process that created it; the store never auto-expires
// idle sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
	metrics  *metrics.Metrics
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
		metrics:  metrics.Default,
	}
}

// Create registers a session under a generated id.
func (st *Store) Create(cfg Config) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	id := uuid.NewString()
	sess := newSession(id, cfg, st.now())
	st.sessions[id] = sess
	st.metrics.SessionsTotal.Inc()
	st.metrics.SessionsActive.Set(float64(len(st.sessions)))
	return sess
}

// CreateWithID registers a session under an externally assigned id.
func (st *Store) CreateWithID(id string, cfg Config) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; ok {
		return nil, ErrExists
	}
	sess := newSession(id, cfg, st.now())
	st.sessions[id] = sess
	st.metrics.SessionsTotal.Inc()
	st.metrics.SessionsActive.Set(float64(len(st.sessions)))
	return sess, nil
}

// Get looks up a live session.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// Ensure returns the session for id, creating it with cfg (or defaults
// when cfg is nil) on first sight. Idempotent: an existing session keeps
// its configuration and window/cursor state, only last_activity_at is
// bumped.
func (st *Store) Ensure(id string, cfg *Config) *Session {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	if !ok {
		c := DefaultConfig()
		if cfg != nil {
			c = *cfg
		}
		sess = newSession(id, c, st.now())
		st.sessions[id] = sess
		st.metrics.SessionsTotal.Inc()
		st.metrics.SessionsActive.Set(float64(len(st.sessions)))
	}
	st.mu.Unlock()

	sess.Touch(st.now())
	return sess
}

// Touch bumps last_activity_at for a live session.
func (st *Store) Touch(id string) error {
	sess, ok := st.Get(id)
	if !ok {
		return ErrNotFound
	}
	sess.Touch(st.now())
	return nil
}

// AppendTranscript appends text to the session's bounded rolling text
// buffer and returns the current buffer contents.
func (st *Store) AppendTranscript(id, text string, maxChars int) (string, error) {
	sess, ok := st.Get(id)
	if !ok {
		return "", ErrNotFound
	}
	return sess.AppendText(text, maxChars), nil
}

// NextSequence allocates the session's next producer sequence number.
func (st *Store) NextSequence(id string) (uint64, error) {
	sess, ok := st.Get(id)
	if !ok {
		return 0, ErrNotFound
	}
	return sess.NextSeq(), nil
}

// Remove tears down a single session.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.metrics.SessionsActive.Set(float64(len(st.sessions)))
	st.mu.Unlock()
}

// Clear drops every live session. Part of deliberate shutdown.
func (st *Store) Clear() {
	st.mu.Lock()
	st.sessions = make(map[string]*Session)
	st.metrics.SessionsActive.Set(0)
	st.mu.Unlock()
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
