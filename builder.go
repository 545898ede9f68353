package goGuard

import (
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/hashpool"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/lockout"
	"github.com/MrEthical07/goGuard/mfa"
	"github.com/MrEthical07/goGuard/password"
)

// Builder assembles an Engine.
//
// Builder instances are single use: Build may be called once.
type Builder struct {
	config Config
	store  AccountStore

	notifier Notifier
	tracker  lockout.Tracker
	redis    redis.UniversalClient
	logger   *zap.Logger
	sinks    []AuditSink
	now      func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account store. Required.
func (b *Builder) WithStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the out-of-band message sender. The default drops messages.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLockoutTracker sets an explicit lockout tracker. It takes precedence
// over WithRedis.
func (b *Builder) WithLockoutTracker(t lockout.Tracker) *Builder {
	b.tracker = t
	return b
}

// WithRedis shares lockout state across instances through client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink adds an audit sink. Sinks are only used when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink != nil {
		b.sinks = append(b.sinks, sink)
	}
	return b
}

// WithClock replaces time.Now for every time-dependent decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and returns the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.Session.SigningMethod = strings.ToLower(cfg.Session.SigningMethod)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("goguard")

	engine := &Engine{
		config:   cfg,
		policy:   policyFromConfig(cfg),
		store:    b.store,
		notifier: b.notifier,
		logger:   logger,
		now:      now,
	}
	if engine.notifier == nil {
		engine.notifier = noopNotifier{}
	}

	// -------- LOCKOUT --------
	lockCfg := lockout.Config{Threshold: cfg.Lockout.MaxAttempts, Duration: cfg.Lockout.Duration}
	switch {
	case b.tracker != nil:
		engine.lockout = b.tracker
	case b.redis != nil:
		engine.lockout = lockout.NewRedis(b.redis, lockout.RedisConfig{
			Config:  lockCfg,
			Prefix:  cfg.Lockout.RedisPrefix,
			IdleTTL: cfg.Lockout.IdleTTL,
		}, now)
	default:
		engine.lockout = lockout.NewMemory(lockCfg, lockout.WithClock(now))
	}

	// -------- PASSWORDS --------
	bc, err := password.NewBcrypt(password.BcryptConfig{Cost: cfg.Password.BcryptCost})
	if err != nil {
		return nil, err
	}
	a2, err := password.NewArgon2(password.Argon2Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		if password.Algorithm(cfg.Password.Algorithm) == password.AlgorithmArgon2 {
			return nil, err
		}
		a2 = nil
	}
	hasher, err := password.NewMulti(password.Algorithm(cfg.Password.Algorithm), bc, a2)
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	// -------- MFA & SESSIONS --------
	mm, err := mfa.NewManager(mfa.Config{
		Issuer:          cfg.MFA.Issuer,
		Digits:          cfg.MFA.Digits,
		Period:          cfg.MFA.Period,
		Skew:            cfg.MFA.Skew,
		SecretSize:      cfg.MFA.SecretSize,
		BackupCodeCount: cfg.MFA.BackupCodeCount,
	})
	if err != nil {
		return nil, err
	}
	engine.mfa = mm

	jm, err := jwt.NewManager(jwt.Config{
		SessionTTL:    cfg.Session.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		KeyID:         cfg.Session.KeyID,
		Leeway:        cfg.Session.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- OBSERVABILITY --------
	engine.metrics = NewMetrics(cfg.Metrics)
	sinks := b.sinks
	if cfg.Audit.Enabled && len(sinks) == 0 {
		sinks = []AuditSink{internalaudit.NewZapSink(logger)}
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sinks...)

	engine.pool = hashpool.New(cfg.Hashing.Workers, cfg.Hashing.QueueTimeout, func(d time.Duration) {
		engine.metrics.Observe(MetricHashLatency, d)
	})

	b.built = true

	logger.Info("engine ready",
		zap.String("password_algorithm", cfg.Password.Algorithm),
		zap.String("session_signing", cfg.Session.SigningMethod),
		zap.Duration("session_ttl", cfg.Session.TTL),
		zap.Bool("shared_lockout", b.redis != nil && b.tracker == nil),
		zap.Bool("audit", cfg.Audit.Enabled),
	)

	return engine, nil
}
