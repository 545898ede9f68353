package lockout

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// trackerFactory lets the same behavioural suite run against every backend.
type trackerFactory func(t *testing.T, clock *fakeClock) Tracker

func runTrackerSuite(t *testing.T, newTracker trackerFactory) {
	ctx := context.Background()

	t.Run("ThresholdLocks", func(t *testing.T) {
		clock := newFakeClock()
		tr := newTracker(t, clock)

		for i := 1; i <= 4; i++ {
			st, err := tr.RecordFailure(ctx, "alice@example.com")
			require.NoError(t, err)
			assert.False(t, st.Locked, "attempt %d", i)
			assert.Equal(t, 5-i, st.Remaining)
		}

		st, err := tr.RecordFailure(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.True(t, st.Locked)
		assert.Equal(t, 0, st.Remaining)
		assert.Equal(t, clock.Now().Add(DefaultDuration), st.LockedUntil)

		locked, until, err := tr.IsLocked(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.True(t, locked)
		assert.Equal(t, st.LockedUntil, until)

		n, err := tr.RemainingAttempts(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("FailuresWhileLockedDoNotExtend", func(t *testing.T) {
		clock := newFakeClock()
		tr := newTracker(t, clock)

		for i := 0; i < 5; i++ {
			_, err := tr.RecordFailure(ctx, "bob@example.com")
			require.NoError(t, err)
		}
		_, firstUntil, err := tr.IsLocked(ctx, "bob@example.com")
		require.NoError(t, err)

		clock.Advance(10 * time.Minute)
		for i := 0; i < 3; i++ {
			st, err := tr.RecordFailure(ctx, "bob@example.com")
			require.NoError(t, err)
			assert.True(t, st.Locked)
			assert.Equal(t, firstUntil, st.LockedUntil)
		}

		_, until, err := tr.IsLocked(ctx, "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, firstUntil, until)
	})

	t.Run("ExpiryIsLazyAndRestartsCount", func(t *testing.T) {
		clock := newFakeClock()
		tr := newTracker(t, clock)

		for i := 0; i < 5; i++ {
			_, err := tr.RecordFailure(ctx, "carol@example.com")
			require.NoError(t, err)
		}

		clock.Advance(DefaultDuration - time.Second)
		locked, _, err := tr.IsLocked(ctx, "carol@example.com")
		require.NoError(t, err)
		assert.True(t, locked)

		clock.Advance(time.Second)
		locked, _, err = tr.IsLocked(ctx, "carol@example.com")
		require.NoError(t, err)
		assert.False(t, locked, "lock must end exactly at lockedUntil")

		n, err := tr.RemainingAttempts(ctx, "carol@example.com")
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		st, err := tr.RecordFailure(ctx, "carol@example.com")
		require.NoError(t, err)
		assert.Equal(t, 1, st.Failures)
		assert.Equal(t, 4, st.Remaining)
		assert.False(t, st.Locked)
	})

	t.Run("ResetClearsState", func(t *testing.T) {
		clock := newFakeClock()
		tr := newTracker(t, clock)

		for i := 0; i < 5; i++ {
			_, err := tr.RecordFailure(ctx, "dave@example.com")
			require.NoError(t, err)
		}
		require.NoError(t, tr.Reset(ctx, "dave@example.com"))

		locked, _, err := tr.IsLocked(ctx, "dave@example.com")
		require.NoError(t, err)
		assert.False(t, locked)

		n, err := tr.RemainingAttempts(ctx, "dave@example.com")
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("UnknownIdentifier", func(t *testing.T) {
		tr := newTracker(t, newFakeClock())

		locked, until, err := tr.IsLocked(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, locked)
		assert.True(t, until.IsZero())

		n, err := tr.RemainingAttempts(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		require.NoError(t, tr.Reset(ctx, "nobody"))
	})

	t.Run("IdentifiersAreIndependent", func(t *testing.T) {
		tr := newTracker(t, newFakeClock())

		for i := 0; i < 5; i++ {
			_, err := tr.RecordFailure(ctx, "10.0.0.1")
			require.NoError(t, err)
		}
		locked, _, err := tr.IsLocked(ctx, "10.0.0.2")
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("ConcurrentFailuresAreNotLost", func(t *testing.T) {
		clock := newFakeClock()
		tr := newTracker(t, clock)

		var (
			wg          sync.WaitGroup
			lockedSeen  atomic.Int32
			transitions atomic.Int32
		)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				st, err := tr.RecordFailure(ctx, "race@example.com")
				assert.NoError(t, err)
				if st.Locked {
					lockedSeen.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Zero(t, lockedSeen.Load())

		n, err := tr.RemainingAttempts(ctx, "race@example.com")
		require.NoError(t, err)
		assert.Equal(t, 1, n, "four concurrent failures must all be counted")

		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				st, err := tr.RecordFailure(ctx, "race@example.com")
				assert.NoError(t, err)
				if st.Locked && st.Failures == 5 {
					transitions.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(8), transitions.Load(), "every caller observes the single lock")

		_, until, err := tr.IsLocked(ctx, "race@example.com")
		require.NoError(t, err)
		assert.Equal(t, clock.Now().Add(DefaultDuration), until)
	})
}

func TestMemoryTracker(t *testing.T) {
	runTrackerSuite(t, func(t *testing.T, clock *fakeClock) Tracker {
		return NewMemory(Config{}, WithClock(clock.Now))
	})
}

func TestMemoryTracker_CustomPolicy(t *testing.T) {
	clock := newFakeClock()
	tr := NewMemory(Config{Threshold: 2, Duration: time.Minute}, WithClock(clock.Now))
	ctx := context.Background()

	_, _ = tr.RecordFailure(ctx, "x")
	st, _ := tr.RecordFailure(ctx, "x")
	assert.True(t, st.Locked)
	assert.Equal(t, time.Minute, st.RemainingLock(clock.Now()))

	clock.Advance(30 * time.Second)
	assert.Equal(t, 30*time.Second, tr.State("x").RemainingLock(clock.Now()))
}

func TestMemoryTracker_Sweep(t *testing.T) {
	clock := newFakeClock()
	tr := NewMemory(Config{}, WithClock(clock.Now))
	ctx := context.Background()

	_, _ = tr.RecordFailure(ctx, "idle")
	for i := 0; i < 5; i++ {
		_, _ = tr.RecordFailure(ctx, "locked")
	}
	require.Equal(t, 2, tr.Len())

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, tr.Sweep(5*time.Minute))
	assert.Equal(t, 1, tr.Len())

	locked, _, _ := tr.IsLocked(ctx, "locked")
	assert.True(t, locked, "active locks survive a sweep")

	// A swept identifier starts from scratch.
	st, _ := tr.RecordFailure(ctx, "idle")
	assert.Equal(t, 1, st.Failures)
}

func TestMemoryTracker_ParallelIdentifiers(t *testing.T) {
	tr := NewMemory(Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d@example.com", i%8)
			_, _ = tr.RecordFailure(ctx, id)
			_, _, _ = tr.IsLocked(ctx, id)
			if i%16 == 0 {
				_ = tr.Reset(ctx, id)
				tr.Sweep(time.Hour)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		n, err := tr.RemainingAttempts(ctx, fmt.Sprintf("user-%d@example.com", i))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
	}
}
