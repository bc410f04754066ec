package timeout

import (
	"sync"
	"time"
)

// Supervisor owns at most one pending delayed action per user.
//
// Arm replaces any pending timer for the user (implicit disarm-then-arm), so
// two competing timeouts can never run for one user. Disarm is idempotent:
// cancelling an absent or already-fired timer is a no-op. A timer that loses
// the race with Disarm/Arm checks its own identity before invoking the
// callback, so stale fires are dropped.
type Supervisor struct {
	mu     sync.Mutex
	timers map[int64]*armed
}

type armed struct {
	timer *time.Timer
}

func New() *Supervisor {
	return &Supervisor{timers: map[int64]*armed{}}
}

// Arm schedules fn to run after d unless disarmed or re-armed first.
func (s *Supervisor) Arm(userID int64, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[userID]; ok {
		old.timer.Stop()
	}

	a := &armed{}
	a.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		cur, ok := s.timers[userID]
		if !ok || cur != a {
			// Superseded or disarmed between fire and lock.
			s.mu.Unlock()
			return
		}
		delete(s.timers, userID)
		s.mu.Unlock()
		fn()
	})
	s.timers[userID] = a
}

// Disarm cancels the user's pending timer, if any.
func (s *Supervisor) Disarm(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.timers[userID]; ok {
		a.timer.Stop()
		delete(s.timers, userID)
	}
}

// Pending reports whether a timer is currently armed for the user.
func (s *Supervisor) Pending(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[userID]
	return ok
}

// Close disarms everything. New Arms are still possible afterwards; Close is
// only meant for shutdown.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.timers {
		a.timer.Stop()
		delete(s.timers, id)
	}
}
