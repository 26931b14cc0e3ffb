package quiz

import (
	"sync"
	"time"

	"github.com/example/quizbot/pkg/models"
)

// Session tracks one participant's progress through a quiz attempt. All
// fields past the mutex are owned by the engine and only touched with the
// session lock held; answer callbacks and timer expirations for the same
// participant are thereby serialized.
type Session struct {
	mu sync.Mutex

	ParticipantID   int64
	ChatID          int64
	QuizID          string
	QuizName        string
	Questions       []models.Question // shuffled session-local copy
	TimePerQuestion time.Duration
	CurrentIndex    int
	Score           int
	StartedAt       time.Time

	answered map[int]bool   // question indexes already resolved
	pending  map[string]int // correlation token -> question index
	closed   bool           // terminal: no further resolutions accepted
}

// SessionStore is the process-wide table of active sessions, keyed by
// participant id. It only guards the map itself; per-session state is
// serialized by each Session's own mutex.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewSessionStore creates an empty session table.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]*Session)}
}

// Get returns the participant's active session, if any.
func (s *SessionStore) Get(participantID int64) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[participantID]
	return sess, ok
}

// Put registers a session, returning the session it displaced (nil if the
// participant had none).
func (s *SessionStore) Put(sess *Session) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[sess.ParticipantID]
	s.sessions[sess.ParticipantID] = sess
	return prev
}

// Remove deletes the session from the table, but only if it is still the
// registered one; a session replaced by a newer attempt stays untouched.
func (s *SessionStore) Remove(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.ParticipantID] == sess {
		delete(s.sessions, sess.ParticipantID)
	}
}

// Snapshot returns the current sessions; used by the stale-session sweep.
func (s *SessionStore) Snapshot() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Len reports the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
