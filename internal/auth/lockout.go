package auth

import (
	"sync"
	"time"
)

const (
	lockoutThreshold = 5
	lockoutDuration  = 15 * time.Minute
	failureWindow    = 5 * time.Minute
)

type lockoutState struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// LockoutTracker throttles password guessing per email. Five failures inside
// a five-minute window lock the account for fifteen minutes. State is held in
// memory; a restart clears it, which is acceptable for a brute-force brake.
type LockoutTracker struct {
	mu        sync.Mutex
	state     map[string]*lockoutState
	now       func() time.Time
	lastSweep time.Time
}

// NewLockoutTracker constructs a tracker with the default thresholds.
func NewLockoutTracker(opts ...LockoutOption) *LockoutTracker {
	t := &LockoutTracker{
		state: make(map[string]*lockoutState),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LockoutOption configures a LockoutTracker.
type LockoutOption func(*LockoutTracker)

// WithLockoutClock overrides the time source (useful for tests).
func WithLockoutClock(fn func() time.Time) LockoutOption {
	return func(t *LockoutTracker) {
		if fn != nil {
			t.now = fn
		}
	}
}

// Locked reports whether the key is currently locked out.
func (t *LockoutTracker) Locked(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.state[key]
	if !ok {
		return false
	}
	return t.now().Before(st.lockedUntil)
}

// RecordFailure counts a failed attempt and reports whether the key is now
// locked. Failures older than the window reset the count.
func (t *LockoutTracker) RecordFailure(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.sweep(now)
	st, ok := t.state[key]
	if !ok {
		st = &lockoutState{}
		t.state[key] = st
	}
	if now.Sub(st.lastFailure) > failureWindow {
		st.failures = 0
	}
	st.failures++
	st.lastFailure = now
	if st.failures >= lockoutThreshold {
		st.lockedUntil = now.Add(lockoutDuration)
		st.failures = 0
		return true
	}
	return false
}

// sweep evicts entries whose failures have aged out of the window and whose
// lock has elapsed, so spraying nonexistent emails cannot grow the map
// without bound. Runs at most once per window. Caller holds the lock.
func (t *LockoutTracker) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < failureWindow {
		return
	}
	t.lastSweep = now
	for key, st := range t.state {
		if now.Sub(st.lastFailure) > failureWindow && !now.Before(st.lockedUntil) {
			delete(t.state, key)
		}
	}
}

// Reset clears the failure history for the key, typically after a successful
// login.
func (t *LockoutTracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, key)
}
