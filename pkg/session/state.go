package session

import (
	"sync"
	"time"
)

// Step is a user's position in the conversation.
type Step int

const (
	Idle Step = iota
	AwaitingCredentials
	AwaitingConsent
	AwaitingSemester

	// LoggingIn holds the user while a login, or the session write that
	// follows it, is in progress
	LoggingIn
)

func (s Step) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCredentials:
		return "awaiting_credentials"
	case AwaitingConsent:
		return "awaiting_consent"
	case AwaitingSemester:
		return "awaiting_semester"
	case LoggingIn:
		return "logging_in"
	default:
		return "unknown"
	}
}

// State is one user's conversation state.
type State struct {
	Step Step

	// PendingToken is a session token held only in memory, either while
	// consent is asked or after the user declined to have it cached
	PendingToken string

	// Temporary marks a semester selection that must use PendingToken
	Temporary bool

	// Since is when the state was entered
	Since time.Time
}

// StateStore keeps conversation states in process memory, keyed by user.
// The zero State (Idle) is never stored.
type StateStore struct {
	mu     sync.Mutex
	states map[int64]State
	now    func() time.Time
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[int64]State),
		now:    time.Now,
	}
}

// Get returns the user's state, Idle if none.
func (s *StateStore) Get(user int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[user]
}

// Set replaces the user's state.
func (s *StateStore) Set(user int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(user, st)
}

func (s *StateStore) setLocked(user int64, st State) {
	if st.Step == Idle {
		delete(s.states, user)
		return
	}
	if st.Since.IsZero() {
		st.Since = s.now()
	}
	s.states[user] = st
}

// Update applies fn to the user's current state under the store lock.
// If fn returns false nothing is written. Update returns the state fn saw
// and whether the new state was applied, so two concurrent events for the
// same user cannot both win the same transition.
func (s *StateStore) Update(user int64, fn func(State) (State, bool)) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.states[user]
	next, ok := fn(prev)
	if ok {
		s.setLocked(user, next)
	}
	return prev, ok
}

// Claim moves the user from step to next if they are currently at step.
func (s *StateStore) Claim(user int64, step Step, next State) (State, bool) {
	return s.Update(user, func(cur State) (State, bool) {
		return next, cur.Step == step
	})
}

// Delete forgets the user, which makes them Idle.
func (s *StateStore) Delete(user int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, user)
}

// Len returns the number of non-idle users.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
