package beacon

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// DefaultSessionLifetime bounds how long one session identifier stays valid
// before it rotates.
const DefaultSessionLifetime = 4 * time.Hour

type sessionState struct {
	id      string
	started time.Time
}

// Session owns the opaque identifier for one continuous period of
// application usage. Reads are lock-free and valid from any goroutine at any
// time. The identifier rotates once its lifetime elapses, so callers must
// retrieve it on every use rather than cache it.
type Session struct {
	clock    clockz.Clock
	lifetime time.Duration
	state    atomic.Pointer[sessionState]

	mu        sync.Mutex
	listeners []func(previous, current string)
}

// NewSession returns a session with a fresh identifier. A nil clock falls
// back to the real clock; a non-positive lifetime falls back to
// DefaultSessionLifetime.
func NewSession(clock clockz.Clock, lifetime time.Duration) *Session {
	if clock == nil {
		clock = clockz.RealClock
	}
	if lifetime <= 0 {
		lifetime = DefaultSessionLifetime
	}
	s := &Session{clock: clock, lifetime: lifetime}
	s.state.Store(&sessionState{id: newSessionID(), started: clock.Now()})
	return s
}

// ID returns the current session identifier, rotating it first when the
// session has outlived its lifetime. When several goroutines observe the
// expiry at once, exactly one rotation wins and all of them return the
// winner's identifier.
func (s *Session) ID() string {
	for {
		state := s.state.Load()
		if s.clock.Now().Sub(state.started) < s.lifetime {
			return state.id
		}
		fresh := &sessionState{id: newSessionID(), started: s.clock.Now()}
		if s.state.CompareAndSwap(state, fresh) {
			s.notify(state.id, fresh.id)
			return fresh.id
		}
	}
}

// OnRotation registers fn to run after every rotation with the previous and
// current identifiers. Register listeners before the session is shared.
func (s *Session) OnRotation(fn func(previous, current string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) notify(previous, current string) {
	s.mu.Lock()
	listeners := make([]func(string, string), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(previous, current)
	}
}

// newSessionID produces a 32-character hex identifier.
func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
