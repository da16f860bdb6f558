package editor

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired draft ids
var ErrSessionNotFound = errors.New("draft session not found")

type session struct {
	draft    *Draft
	lastSeen time.Time
}

// Sessions keeps open drafts between requests
type Sessions struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]*session
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a registry. Drafts idle for longer than ttl are
// dropped by Sweep; ttl <= 0 keeps them until removed.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		drafts: make(map[uuid.UUID]*session),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Add registers a draft and returns its id
func (s *Sessions) Add(d *Draft) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[d.ID()] = &session{draft: d, lastSeen: s.now()}
	return d.ID()
}

// Get returns an open draft and refreshes its idle timer
func (s *Sessions) Get(id uuid.UUID) (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.drafts[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = s.now()
	return sess.draft, nil
}

// Remove forgets a draft
func (s *Sessions) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
}

// Len returns the number of open drafts
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

// Sweep drops idle, saved and cancelled drafts and returns how many were removed
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := s.now().Add(-s.ttl)
	for id, sess := range s.drafts {
		st := sess.draft.State()
		if st == StateSaved || st == StateCancelled || (s.ttl > 0 && sess.lastSeen.Before(cutoff)) {
			delete(s.drafts, id)
			removed++
		}
	}
	return removed
}
