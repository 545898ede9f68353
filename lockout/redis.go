package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "glo:"
	defaultIdleTTL     = 24 * time.Hour
)

// RedisConfig extends Config with key layout settings.
type RedisConfig struct {
	Config
	// Prefix namespaces the per-identifier hash keys.
	Prefix string
	// IdleTTL bounds how long an idle, unlocked record survives. It is always
	// at least the lock duration.
	IdleTTL time.Duration
}

// recordFailureScript performs the check, expiry reset, increment and lock in
// one step. Times are unix milliseconds supplied by the caller's clock.
var recordFailureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local duration = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local failures = tonumber(redis.call('HGET', KEYS[1], 'f') or '0')
local lockedUntil = tonumber(redis.call('HGET', KEYS[1], 'u') or '0')

if lockedUntil > 0 then
	if now < lockedUntil then
		return {failures, lockedUntil}
	end
	failures = 0
	lockedUntil = 0
	redis.call('HDEL', KEYS[1], 'u')
end

failures = failures + 1
redis.call('HSET', KEYS[1], 'f', string.format('%d', failures))
if failures >= threshold then
	lockedUntil = now + duration
	redis.call('HSET', KEYS[1], 'u', string.format('%d', lockedUntil))
end
redis.call('PEXPIRE', KEYS[1], ttl)

return {failures, lockedUntil}
`)

// Redis is a Tracker shared by every instance connected to the same Redis.
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
	now    func() time.Time
}

// NewRedis returns a Redis-backed tracker.
func NewRedis(client redis.UniversalClient, cfg RedisConfig, now func() time.Time) *Redis {
	cfg.Config = cfg.Config.withDefaults()
	if cfg.Prefix == "" {
		cfg.Prefix = defaultRedisPrefix
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.IdleTTL < cfg.Duration {
		cfg.IdleTTL = cfg.Duration
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, cfg: cfg, now: now}
}

func (r *Redis) key(identifier string) string {
	return r.cfg.Prefix + identifier
}

// RecordFailure runs the failure script for identifier. The script is atomic
// on the server, so concurrent instances never lose a count.
func (r *Redis) RecordFailure(ctx context.Context, identifier string) (State, error) {
	now := r.now()
	res, err := recordFailureScript.Run(ctx, r.client,
		[]string{r.key(identifier)},
		now.UnixMilli(),
		r.cfg.Threshold,
		r.cfg.Duration.Milliseconds(),
		(r.cfg.IdleTTL + r.cfg.Duration).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) != 2 {
		return State{}, fmt.Errorf("%w: unexpected script reply", ErrUnavailable)
	}
	return r.state(int(res[0]), res[1], now), nil
}

// IsLocked reads identifier's hash and reports an active lock.
func (r *Redis) IsLocked(ctx context.Context, identifier string) (bool, time.Time, error) {
	st, err := r.load(ctx, identifier)
	if err != nil {
		return false, time.Time{}, err
	}
	return st.Locked, st.LockedUntil, nil
}

// Reset deletes identifier's record.
func (r *Redis) Reset(ctx context.Context, identifier string) error {
	if err := r.client.Del(ctx, r.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RemainingAttempts returns the attempts left before identifier locks.
func (r *Redis) RemainingAttempts(ctx context.Context, identifier string) (int, error) {
	st, err := r.load(ctx, identifier)
	if err != nil {
		return 0, err
	}
	return st.Remaining, nil
}

func (r *Redis) load(ctx context.Context, identifier string) (State, error) {
	vals, err := r.client.HMGet(ctx, r.key(identifier), "f", "u").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var failures, lockedUntil int64
	if len(vals) == 2 {
		failures = parseField(vals[0])
		lockedUntil = parseField(vals[1])
	}
	return r.state(int(failures), lockedUntil, r.now()), nil
}

func (r *Redis) state(failures int, lockedUntilMs int64, now time.Time) State {
	if lockedUntilMs > 0 {
		until := time.UnixMilli(lockedUntilMs).UTC()
		if !now.Before(until) {
			return State{Remaining: r.cfg.Threshold}
		}
		return State{
			Failures:    failures,
			Locked:      true,
			LockedUntil: until,
			Remaining:   remaining(r.cfg.Threshold, failures),
		}
	}
	return State{Failures: failures, Remaining: remaining(r.cfg.Threshold, failures)}
}

func parseField(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
