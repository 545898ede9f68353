// Package hashpool bounds how many password hash or verify calls run at once.
// bcrypt and argon2id are deliberately slow; without a bound a burst of logins
// can pin every CPU.
package hashpool

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when no worker frees up within the queue timeout.
var ErrBusy = errors.New("hash pool busy")

// Pool is a counting semaphore around CPU-heavy calls.
type Pool struct {
	sem     *semaphore.Weighted
	size    int64
	timeout time.Duration
	observe func(time.Duration)
}

// New returns a pool running at most workers calls concurrently. A zero
// timeout waits on the caller's context only. observe, when non-nil, receives
// the wall time of every completed call.
func New(workers int, timeout time.Duration, observe func(time.Duration)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		size:    int64(workers),
		timeout: timeout,
		observe: observe,
	}
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return int(p.size)
}

func (p *Pool) acquire(ctx context.Context) error {
	waitCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	return nil
}

// Run executes fn on a worker slot.
func Run[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.acquire(ctx); err != nil {
		return zero, err
	}
	defer p.sem.Release(1)

	start := time.Now()
	out, err := fn()
	if p.observe != nil {
		p.observe(time.Since(start))
	}
	return out, err
}
