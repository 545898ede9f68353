package lockout

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Tracker. Each identifier owns a record with its
// own mutex; the index is a sync.Map, so operations on different identifiers
// do not block each other.
type Memory struct {
	cfg     Config
	now     func() time.Time
	entries sync.Map // string -> *entry
}

type entry struct {
	mu          sync.Mutex
	failures    int
	lockedUntil time.Time
	touched     time.Time
	// dead is set by Sweep after the entry has been removed from the index;
	// callers holding a stale pointer retry with a fresh one.
	dead bool
}

// MemoryOption customises a Memory tracker.
type MemoryOption func(*Memory)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory returns an in-memory tracker. Zero config fields take the package
// defaults (5 failures, 15 minutes).
func NewMemory(cfg Config, opts ...MemoryOption) *Memory {
	m := &Memory{cfg: cfg.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective policy.
func (m *Memory) Config() Config {
	return m.cfg
}

// withEntry runs fn with the identifier's record locked, creating it on demand.
func (m *Memory) withEntry(identifier string, create bool, fn func(e *entry)) {
	for {
		var e *entry
		if create {
			v, _ := m.entries.LoadOrStore(identifier, &entry{})
			e = v.(*entry)
		} else {
			v, ok := m.entries.Load(identifier)
			if !ok {
				return
			}
			e = v.(*entry)
		}

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		fn(e)
		e.mu.Unlock()
		return
	}
}

// RecordFailure counts one failed attempt for identifier and locks it once the
// threshold is reached. While a lock is active the call changes nothing.
func (m *Memory) RecordFailure(_ context.Context, identifier string) (State, error) {
	var st State
	m.withEntry(identifier, true, func(e *entry) {
		now := m.now()
		e.touched = now

		if !e.lockedUntil.IsZero() {
			if now.Before(e.lockedUntil) {
				st = m.stateLocked(e, now)
				return
			}
			e.failures = 0
			e.lockedUntil = time.Time{}
		}

		e.failures++
		if e.failures >= m.cfg.Threshold {
			e.lockedUntil = now.Add(m.cfg.Duration)
		}
		st = m.stateLocked(e, now)
	})
	return st, nil
}

// IsLocked reports whether identifier is locked and until when. An expired
// lock reads as unlocked.
func (m *Memory) IsLocked(_ context.Context, identifier string) (bool, time.Time, error) {
	var (
		locked bool
		until  time.Time
	)
	m.withEntry(identifier, false, func(e *entry) {
		if !e.lockedUntil.IsZero() && m.now().Before(e.lockedUntil) {
			locked, until = true, e.lockedUntil
		}
	})
	return locked, until, nil
}

// Reset clears identifier's failures and any lock.
func (m *Memory) Reset(_ context.Context, identifier string) error {
	m.withEntry(identifier, false, func(e *entry) {
		e.failures = 0
		e.lockedUntil = time.Time{}
		e.touched = m.now()
	})
	return nil
}

// RemainingAttempts returns how many failures identifier may still make
// before it locks.
func (m *Memory) RemainingAttempts(_ context.Context, identifier string) (int, error) {
	n := m.cfg.Threshold
	m.withEntry(identifier, false, func(e *entry) {
		n = m.stateLocked(e, m.now()).Remaining
	})
	return n, nil
}

// State returns the identifier's current view without mutating it.
func (m *Memory) State(identifier string) State {
	st := State{Remaining: m.cfg.Threshold}
	m.withEntry(identifier, false, func(e *entry) {
		st = m.stateLocked(e, m.now())
	})
	return st
}

// stateLocked builds a State from e, treating an expired lock as already
// cleared. e.mu must be held.
func (m *Memory) stateLocked(e *entry, now time.Time) State {
	if !e.lockedUntil.IsZero() && !now.Before(e.lockedUntil) {
		return State{Remaining: m.cfg.Threshold}
	}
	st := State{
		Failures:  e.failures,
		Remaining: remaining(m.cfg.Threshold, e.failures),
	}
	if !e.lockedUntil.IsZero() {
		st.Locked = true
		st.LockedUntil = e.lockedUntil
	}
	return st
}

// Sweep drops records that are not locked and have been idle for longer than
// idle. It returns the number of records removed.
func (m *Memory) Sweep(idle time.Duration) int {
	now := m.now()
	cutoff := now.Add(-idle)
	removed := 0

	m.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		e.mu.Lock()
		locked := !e.lockedUntil.IsZero() && now.Before(e.lockedUntil)
		if !locked && e.touched.Before(cutoff) {
			e.dead = true
			m.entries.CompareAndDelete(key, e)
			removed++
		}
		e.mu.Unlock()
		return true
	})

	return removed
}

// Len returns the number of tracked identifiers.
func (m *Memory) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
