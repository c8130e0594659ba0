package honeypot

import (
	"sync"
	"time"

	"github.com/soyeahso/snare/internal/domain"
)

// SessionStore manages honeypot sessions. Implementations must be safe for
// concurrent use and must return snapshots the caller can hold without
// observing later mutations.
type SessionStore interface {
	// GetOrCreate finds a session by id or creates an empty one. The second
	// return value reports whether the session was created by this call.
	GetOrCreate(id string) (*domain.Session, bool, error)

	// Get returns a session snapshot, or nil when the id is unknown.
	Get(id string) (*domain.Session, error)

	// Append adds a message to a session, assigning its sequence number and
	// receipt time. The session is created if missing.
	Append(id string, msg domain.Message) (domain.Message, error)

	// MarkDetected flags the session as a detected scam. Sticky: once set the
	// flag never clears, but the confidence is updated.
	MarkDetected(id string, confidence float64) error

	// Engage marks the agent as engaged. The engagement point is pinned to
	// the next sequence number, so the message that triggered engagement does
	// not count toward the post-engagement total. No-op if already engaged.
	Engage(id string) error

	// MergeIntelligence unions a bundle into the session and returns the
	// merged result.
	MergeIntelligence(id string, b domain.Bundle) (domain.Bundle, error)

	// MarkConcluded flags the session as concluded. Sticky.
	MarkConcluded(id string) error

	// MarkCallbackSent records that the final report was delivered. Sticky.
	MarkCallbackSent(id string) error

	// List returns snapshots of all sessions.
	List() ([]*domain.Session, error)

	// Delete removes a session, reporting whether it existed.
	Delete(id string) (bool, error)
}

// MemorySessionStore is an in-memory SessionStore implementation.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*domain.Session),
	}
}

// getOrCreateLocked returns the live session, creating it if needed.
// Caller must hold the write lock.
func (s *MemorySessionStore) getOrCreateLocked(id string) (*domain.Session, bool) {
	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}
	now := time.Now()
	sess := &domain.Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[id] = sess
	return sess, true
}

func (s *MemorySessionStore) GetOrCreate(id string) (*domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, created := s.getOrCreateLocked(id)
	return sess.Clone(), created, nil
}

func (s *MemorySessionStore) Get(id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

func (s *MemorySessionStore) Append(id string, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.getOrCreateLocked(id)
	msg.Seq = sess.LastSeq() + 1
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
	return msg, nil
}

func (s *MemorySessionStore) MarkDetected(id string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.getOrCreateLocked(id)
	if !sess.ScamDetected {
		sess.ScamDetected = true
		sess.DetectedAt = time.Now()
	}
	sess.ScamConfidence = confidence
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySessionStore) Engage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.getOrCreateLocked(id)
	if sess.AgentEngaged {
		return nil
	}
	sess.AgentEngaged = true
	sess.EngagedAt = time.Now()
	sess.EngagedSeq = sess.LastSeq() + 1
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySessionStore) MergeIntelligence(id string, b domain.Bundle) (domain.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.getOrCreateLocked(id)
	sess.Intelligence = sess.Intelligence.Merge(b)
	sess.UpdatedAt = time.Now()
	return sess.Intelligence.Clone(), nil
}

func (s *MemorySessionStore) MarkConcluded(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.getOrCreateLocked(id)
	if !sess.Concluded {
		sess.Concluded = true
		sess.ConcludedAt = time.Now()
	}
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySessionStore) MarkCallbackSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, _ := s.getOrCreateLocked(id)
	if !sess.CallbackSent {
		sess.CallbackSent = true
		sess.CallbackSentAt = time.Now()
	}
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemorySessionStore) List() ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	return out, nil
}

func (s *MemorySessionStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok, nil
}
