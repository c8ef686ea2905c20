// Package conversation contains the calculation dialog engine: an
// in-memory session store and the step-by-step flow that turns validated
// answers into a computed score and a ledger debit.
package conversation

import (
	"sync"
	"time"

	"github.com/admit-hub/admission-calc-bot/internal/domain/session"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STORE
// Keeps active sessions in process memory, one per user. Sessions are never
// persisted: a restart drops every dialog, which is the documented behavior.
// ══════════════════════════════════════════════════════════════════════════════

// sweepInterval is how often the idle sweeper wakes up.
const sweepInterval = time.Minute

// Store keeps at most one active session per user.
//
// All access goes through Update, which serializes work per user: two
// updates from the same user are applied one after the other, while
// different users proceed in parallel.
type Store struct {
	mu      sync.Mutex
	entries map[int64]*storeEntry

	idleTTL time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

type storeEntry struct {
	mu sync.Mutex
	// removed marks an entry that was deleted from the map while another
	// goroutine was waiting on its lock. The waiter must retry.
	removed bool
	sess    *session.Session
}

// NewStore creates a session store. idleTTL bounds how long a session may
// sit without an answer before it is abandoned; zero disables eviction.
func NewStore(idleTTL time.Duration) *Store {
	s := &Store{
		entries: make(map[int64]*storeEntry),
		idleTTL: idleTTL,
		done:    make(chan struct{}),
	}

	if idleTTL > 0 {
		go s.sweepLoop()
	}

	return s
}

// Update runs fn under the user's lock. fn receives the current session
// (nil if the user has none) and returns the session to keep; returning
// nil removes the user's session.
func (s *Store) Update(userID int64, fn func(current *session.Session) *session.Session) {
	for {
		s.mu.Lock()
		e, ok := s.entries[userID]
		if !ok {
			e = &storeEntry{}
			s.entries[userID] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}

		e.sess = fn(e.sess)
		if e.sess == nil {
			e.removed = true
			s.mu.Lock()
			delete(s.entries, userID)
			s.mu.Unlock()
		}
		e.mu.Unlock()
		return
	}
}

// Peek returns the user's current session without taking the user lock.
// Intended for read-only checks; the session must not be mutated.
func (s *Store) Peek(userID int64) (*session.Session, bool) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	return sess, sess != nil
}

// ActiveCount returns the number of users with a live session.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop halts the idle sweeper. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now().UTC())
		}
	}
}

// sweep abandons and removes sessions idle longer than idleTTL.
func (s *Store) sweep(now time.Time) (evicted int) {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Update(id, func(current *session.Session) *session.Session {
			if current == nil {
				return nil
			}
			if current.IdleFor(now) < s.idleTTL {
				return current
			}
			_ = current.Abandon()
			evicted++
			return nil
		})
	}

	return evicted
}
