// Command goguard-loadtest drives concurrent logins and failed-login attacks
// against an in-process engine and checks the lockout invariants afterwards.
//
// Lockout state lives in Redis: -redis-addr or REDIS_ADDR selects a server,
// otherwise an embedded miniredis is started.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	seedPassword   = "L0adTest!Passw0rd"
	attackPassword = "definitely-Wr0ng!"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts to seed")
		targets     = flag.Int("targets", 20, "accounts attacked with wrong passwords")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 5000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *targets <= 0 || *targets > *accounts {
		fmt.Fprintln(os.Stderr, "accounts, targets, concurrency and ops must be > 0, targets <= accounts")
		os.Exit(2)
	}

	client, cleanup, err := redisClient(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := buildEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	emails, err := seed(ctx, engine, *accounts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}

	attacked := emails[:*targets]
	healthy := emails[*targets:]
	if len(healthy) == 0 {
		healthy = emails
	}

	loginStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.Login(ctx, healthy[r.Intn(len(healthy))], seedPassword)
		return err
	})

	var lockedSeen atomic.Int64
	attackStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.Login(ctx, attacked[r.Intn(len(attacked))], attackPassword)
		switch {
		case errors.Is(err, goGuard.ErrAccountLocked):
			lockedSeen.Add(1)
			return nil
		case errors.Is(err, goGuard.ErrInvalidCredentials):
			return nil
		default:
			return fmt.Errorf("unexpected attack result: %v", err)
		}
	})

	violations := checkInvariants(ctx, engine, attacked, healthy)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("attack", attackStats)
	fmt.Printf("attack: locked responses=%d\n", lockedSeen.Load())
	snapshot := engine.MetricsSnapshot()
	fmt.Printf("metrics: login_success=%d login_failure=%d login_locked=%d\n",
		snapshot.Counters[goGuard.MetricLoginSuccess],
		snapshot.Counters[goGuard.MetricLoginFailure],
		snapshot.Counters[goGuard.MetricLoginLocked],
	)
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, "invariant violated:", v)
		}
		os.Exit(1)
	}
	fmt.Println("invariants: ok")
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(client redis.UniversalClient) (*goGuard.Engine, error) {
	cfg := goGuard.DefaultConfig()
	cfg.Session.PrivateKey = bytes.Repeat([]byte("L"), 32)
	cfg.Password.Algorithm = "argon2id"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	cfg.EmailVerification.SendOnRegister = false
	// Prefix per run so a shared Redis starts clean.
	cfg.Lockout.RedisPrefix = fmt.Sprintf("glt:%d:", time.Now().UnixNano())

	return goGuard.New().
		WithConfig(cfg).
		WithStore(goGuard.NewMemoryStore()).
		WithRedis(client).
		Build()
}

func seed(ctx context.Context, engine *goGuard.Engine, n int) ([]string, error) {
	emails := make([]string, n)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%d@example.com", i)
		email := emails[i]
		g.Go(func() error {
			_, err := engine.Register(gctx, goGuard.RegisterRequest{
				Email:    email,
				Password: seedPassword,
				Name:     "Load Test",
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	fmt.Printf("seeded %d accounts in %s\n", n, time.Since(start).Round(time.Millisecond))
	return emails, nil
}

// checkInvariants verifies that every attacked account is locked and refuses
// even the right password, while healthy accounts still log in.
func checkInvariants(ctx context.Context, engine *goGuard.Engine, attacked, healthy []string) []string {
	var out []string
	threshold := engine.Config().Lockout.MaxAttempts
	tracker := engine.LockoutTracker()

	for _, email := range attacked {
		locked, _, err := tracker.IsLocked(ctx, email)
		if err != nil {
			out = append(out, fmt.Sprintf("%s: lockout lookup: %v", email, err))
			continue
		}
		if !locked {
			// Few ops per target can legitimately stay under the threshold.
			remaining, rerr := tracker.RemainingAttempts(ctx, email)
			if rerr != nil || remaining <= 0 || remaining > threshold {
				out = append(out, fmt.Sprintf("%s: unlocked with %d attempts remaining", email, remaining))
			}
			continue
		}
		if _, err := engine.Login(ctx, email, seedPassword); !errors.Is(err, goGuard.ErrAccountLocked) {
			out = append(out, fmt.Sprintf("%s: correct password accepted while locked (err=%v)", email, err))
		}
	}

	if len(healthy) > 0 {
		if _, err := engine.Login(ctx, healthy[0], seedPassword); err != nil {
			out = append(out, fmt.Sprintf("%s: healthy account rejected: %v", healthy[0], err))
		}
	}
	return out
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
