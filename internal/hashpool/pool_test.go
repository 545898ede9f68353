package hashpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBoundsConcurrency(t *testing.T) {
	p := New(2, 0, nil)
	var (
		running atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Run(context.Background(), p, func() (struct{}, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				running.Add(-1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunReturnsResultAndObserves(t *testing.T) {
	var observed atomic.Int32
	p := New(1, 0, func(time.Duration) { observed.Add(1) })

	got, err := Run(context.Background(), p, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	want := errors.New("boom")
	_, err = Run(context.Background(), p, func() (int, error) { return 0, want })
	assert.ErrorIs(t, err, want)
	assert.Equal(t, int32(2), observed.Load())
}

func TestRunQueueTimeout(t *testing.T) {
	p := New(1, 10*time.Millisecond, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Run(context.Background(), p, func() (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	_, err := Run(context.Background(), p, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrBusy)
	close(release)
}

func TestRunCancelledContext(t *testing.T) {
	p := New(1, 0, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Run(context.Background(), p, func() (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, p, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}
