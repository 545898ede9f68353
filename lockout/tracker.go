package lockout

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultThreshold is the number of consecutive failures that triggers a lock.
	DefaultThreshold = 5
	// DefaultDuration is how long a lock lasts.
	DefaultDuration = 15 * time.Minute
)

// ErrUnavailable indicates the tracker backend could not be reached.
var ErrUnavailable = errors.New("lockout backend unavailable")

// Config holds the lockout policy.
type Config struct {
	Threshold int
	Duration  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	return c
}

// State is a point-in-time view of one identifier.
type State struct {
	Failures    int
	Locked      bool
	LockedUntil time.Time
	Remaining   int
}

// RemainingLock returns how long the lock still holds at now, or zero.
func (s State) RemainingLock(now time.Time) time.Duration {
	if !s.Locked || !now.Before(s.LockedUntil) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// Tracker is the lockout contract consumed by the engine.
type Tracker interface {
	// RecordFailure registers one failed attempt and returns the resulting state.
	RecordFailure(ctx context.Context, identifier string) (State, error)
	// IsLocked reports whether identifier is locked and until when.
	IsLocked(ctx context.Context, identifier string) (bool, time.Time, error)
	// Reset clears all state for identifier.
	Reset(ctx context.Context, identifier string) error
	// RemainingAttempts returns max(0, threshold - failures).
	RemainingAttempts(ctx context.Context, identifier string) (int, error)
}

func remaining(threshold, failures int) int {
	if n := threshold - failures; n > 0 {
		return n
	}
	return 0
}
