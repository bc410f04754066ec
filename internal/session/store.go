package session

import (
	"sync"

	"nagbot/internal/transport"
)

// Origin is the task message a picker was opened for.
type Origin struct {
	MessageID int
	Text      string
	Caption   string
	HasMedia  bool
}

// Session is the per-user ephemeral state of an in-flight picker.
// The zero value means "no picker open".
type Session struct {
	ChatID int64
	// Picker is the active calendar message, nil when closed.
	Picker *transport.MessageRef
	Origin *Origin
}

func (s Session) Empty() bool { return s.Picker == nil && s.Origin == nil }

// Store keeps one Session per user.
//
// Two concurrent events for the same user (a stray double-tap) must not
// corrupt state: Update holds a per-user lock for the whole read-modify-write,
// so sequences for one user never interleave. Different users never contend.
type Store struct {
	mu    sync.Mutex
	users map[int64]*slot
}

type slot struct {
	mu sync.Mutex
	s  Session
}

func NewStore() *Store {
	return &Store{users: map[int64]*slot{}}
}

func (st *Store) slotFor(userID int64) *slot {
	st.mu.Lock()
	defer st.mu.Unlock()
	sl := st.users[userID]
	if sl == nil {
		sl = &slot{}
		st.users[userID] = sl
	}
	return sl
}

// Update runs fn with exclusive access to the user's Session.
// Mutations made through the pointer are committed when fn returns.
func (st *Store) Update(userID int64, fn func(*Session)) {
	sl := st.slotFor(userID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fn(&sl.s)
}

// Get returns a copy of the user's Session (empty if absent).
func (st *Store) Get(userID int64) Session {
	sl := st.slotFor(userID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.s
}

// Set fully replaces the user's Session.
func (st *Store) Set(userID int64, s Session) {
	st.Update(userID, func(cur *Session) { *cur = s })
}

// Clear resets the user's Session to empty.
func (st *Store) Clear(userID int64) {
	st.Set(userID, Session{})
}
