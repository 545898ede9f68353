// Package settings loads goGuard binaries' configuration from a TOML file and
// GOGUARD_* environment variables using viper.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	goGuard "github.com/MrEthical07/goGuard"
)

// EnvPrefix prefixes every environment override, e.g. GOGUARD_SESSION_TTL.
const EnvPrefix = "GOGUARD"

type ServerSettings struct {
	Addr            string        `mapstructure:"addr"`
	Env             string        `mapstructure:"env"`
	LogLevel        string        `mapstructure:"log_level"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustProxy      bool          `mapstructure:"trust_proxy"`
}

type MongoSettings struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RedisSettings enables the shared lockout backend when Addr is set.
type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SessionSettings struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SigningMethod string        `mapstructure:"signing_method"`
	Secret        string        `mapstructure:"secret"`
	PublicKey     string        `mapstructure:"public_key"`
	Issuer        string        `mapstructure:"issuer"`
	KeyID         string        `mapstructure:"key_id"`
	Leeway        time.Duration `mapstructure:"leeway"`
}

type PasswordSettings struct {
	Algorithm      string `mapstructure:"algorithm"`
	BcryptCost     int    `mapstructure:"bcrypt_cost"`
	Memory         uint32 `mapstructure:"memory"`
	Time           uint32 `mapstructure:"time"`
	Parallelism    uint8  `mapstructure:"parallelism"`
	SaltLength     uint32 `mapstructure:"salt_length"`
	KeyLength      uint32 `mapstructure:"key_length"`
	UpgradeOnLogin bool   `mapstructure:"upgrade_on_login"`
}

type LockoutSettings struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Duration      time.Duration `mapstructure:"duration"`
	TrackClientIP bool          `mapstructure:"track_client_ip"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
}

type MFASettings struct {
	Issuer          string `mapstructure:"issuer"`
	Digits          int    `mapstructure:"digits"`
	Period          uint   `mapstructure:"period"`
	Skew            uint   `mapstructure:"skew"`
	SecretSize      uint   `mapstructure:"secret_size"`
	BackupCodeCount int    `mapstructure:"backup_code_count"`
	AdminOnly       bool   `mapstructure:"admin_only"`
}

type SubscriptionSettings struct {
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	TrialPeriod      time.Duration `mapstructure:"trial_period"`
	MonthLength      time.Duration `mapstructure:"month_length"`
	MaxRenewalMonths int           `mapstructure:"max_renewal_months"`
	AdminMFAGrace    time.Duration `mapstructure:"admin_mfa_grace"`
}

type TokenSettings struct {
	ResetEnabled         bool          `mapstructure:"reset_enabled"`
	ResetTTL             time.Duration `mapstructure:"reset_ttl"`
	VerificationEnabled  bool          `mapstructure:"verification_enabled"`
	VerificationTTL      time.Duration `mapstructure:"verification_ttl"`
	VerifyOnRegistration bool          `mapstructure:"verify_on_registration"`
}

type ObservabilitySettings struct {
	AuditEnabled      bool `mapstructure:"audit_enabled"`
	AuditBuffer       int  `mapstructure:"audit_buffer"`
	AuditDropIfFull   bool `mapstructure:"audit_drop_if_full"`
	MetricsEnabled    bool `mapstructure:"metrics_enabled"`
	LatencyHistograms bool `mapstructure:"latency_histograms"`
}

type HashingSettings struct {
	Workers      int           `mapstructure:"workers"`
	QueueTimeout time.Duration `mapstructure:"queue_timeout"`
}

// Settings is the full file layout.
type Settings struct {
	Server        ServerSettings        `mapstructure:"server"`
	Mongo         MongoSettings         `mapstructure:"mongo"`
	Redis         RedisSettings         `mapstructure:"redis"`
	Session       SessionSettings       `mapstructure:"session"`
	Password      PasswordSettings      `mapstructure:"password"`
	Lockout       LockoutSettings       `mapstructure:"lockout"`
	MFA           MFASettings           `mapstructure:"mfa"`
	Subscription  SubscriptionSettings  `mapstructure:"subscription"`
	Tokens        TokenSettings         `mapstructure:"tokens"`
	Observability ObservabilitySettings `mapstructure:"observability"`
	Hashing       HashingSettings       `mapstructure:"hashing"`
	MaxNameLength int                   `mapstructure:"max_name_length"`
}

// Load reads path (TOML, optional) and applies GOGUARD_* overrides on top of
// the engine defaults.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	d := goGuard.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.env", "production")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "goguard")
	v.SetDefault("mongo.collection", "users")
	v.SetDefault("mongo.timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.signing_method", d.Session.SigningMethod)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.public_key", "")
	v.SetDefault("session.issuer", "")
	v.SetDefault("session.key_id", "")
	v.SetDefault("session.leeway", d.Session.Leeway)

	v.SetDefault("password.algorithm", d.Password.Algorithm)
	v.SetDefault("password.bcrypt_cost", d.Password.BcryptCost)
	v.SetDefault("password.memory", d.Password.Memory)
	v.SetDefault("password.time", d.Password.Time)
	v.SetDefault("password.parallelism", d.Password.Parallelism)
	v.SetDefault("password.salt_length", d.Password.SaltLength)
	v.SetDefault("password.key_length", d.Password.KeyLength)
	v.SetDefault("password.upgrade_on_login", d.Password.UpgradeOnLogin)

	v.SetDefault("lockout.max_attempts", d.Lockout.MaxAttempts)
	v.SetDefault("lockout.duration", d.Lockout.Duration)
	v.SetDefault("lockout.track_client_ip", d.Lockout.TrackClientIP)
	v.SetDefault("lockout.redis_prefix", d.Lockout.RedisPrefix)
	v.SetDefault("lockout.idle_ttl", d.Lockout.IdleTTL)

	v.SetDefault("mfa.issuer", d.MFA.Issuer)
	v.SetDefault("mfa.digits", d.MFA.Digits)
	v.SetDefault("mfa.period", d.MFA.Period)
	v.SetDefault("mfa.skew", d.MFA.Skew)
	v.SetDefault("mfa.secret_size", d.MFA.SecretSize)
	v.SetDefault("mfa.backup_code_count", d.MFA.BackupCodeCount)
	v.SetDefault("mfa.admin_only", d.MFA.AdminOnly)

	v.SetDefault("subscription.grace_period", d.Subscription.GracePeriod)
	v.SetDefault("subscription.trial_period", d.Subscription.TrialPeriod)
	v.SetDefault("subscription.month_length", d.Subscription.MonthLength)
	v.SetDefault("subscription.max_renewal_months", d.Subscription.MaxRenewalMonths)
	v.SetDefault("subscription.admin_mfa_grace", d.Admin.MFAGracePeriod)

	v.SetDefault("tokens.reset_enabled", d.PasswordReset.Enabled)
	v.SetDefault("tokens.reset_ttl", d.PasswordReset.TokenTTL)
	v.SetDefault("tokens.verification_enabled", d.EmailVerification.Enabled)
	v.SetDefault("tokens.verification_ttl", d.EmailVerification.TokenTTL)
	v.SetDefault("tokens.verify_on_registration", d.EmailVerification.SendOnRegister)

	v.SetDefault("observability.audit_enabled", d.Audit.Enabled)
	v.SetDefault("observability.audit_buffer", d.Audit.BufferSize)
	v.SetDefault("observability.audit_drop_if_full", d.Audit.DropIfFull)
	v.SetDefault("observability.metrics_enabled", d.Metrics.Enabled)
	v.SetDefault("observability.latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("hashing.workers", d.Hashing.Workers)
	v.SetDefault("hashing.queue_timeout", d.Hashing.QueueTimeout)

	v.SetDefault("max_name_length", d.Account.MaxNameLength)
}

// EngineConfig maps the loaded settings onto a goGuard.Config.
func (s *Settings) EngineConfig() goGuard.Config {
	cfg := goGuard.DefaultConfig()

	cfg.Session.TTL = s.Session.TTL
	cfg.Session.SigningMethod = s.Session.SigningMethod
	cfg.Session.PrivateKey = []byte(s.Session.Secret)
	if s.Session.PublicKey != "" {
		cfg.Session.PublicKey = []byte(s.Session.PublicKey)
	}
	cfg.Session.Issuer = s.Session.Issuer
	cfg.Session.KeyID = s.Session.KeyID
	cfg.Session.Leeway = s.Session.Leeway

	cfg.Password = goGuard.PasswordConfig{
		Algorithm:      s.Password.Algorithm,
		BcryptCost:     s.Password.BcryptCost,
		Memory:         s.Password.Memory,
		Time:           s.Password.Time,
		Parallelism:    s.Password.Parallelism,
		SaltLength:     s.Password.SaltLength,
		KeyLength:      s.Password.KeyLength,
		UpgradeOnLogin: s.Password.UpgradeOnLogin,
	}

	cfg.Lockout = goGuard.LockoutConfig{
		MaxAttempts:   s.Lockout.MaxAttempts,
		Duration:      s.Lockout.Duration,
		TrackClientIP: s.Lockout.TrackClientIP,
		RedisPrefix:   s.Lockout.RedisPrefix,
		IdleTTL:       s.Lockout.IdleTTL,
	}

	cfg.MFA = goGuard.MFAConfig{
		Issuer:          s.MFA.Issuer,
		Digits:          s.MFA.Digits,
		Period:          s.MFA.Period,
		Skew:            s.MFA.Skew,
		SecretSize:      s.MFA.SecretSize,
		BackupCodeCount: s.MFA.BackupCodeCount,
		AdminOnly:       s.MFA.AdminOnly,
	}

	cfg.Subscription = goGuard.SubscriptionConfig{
		GracePeriod:      s.Subscription.GracePeriod,
		TrialPeriod:      s.Subscription.TrialPeriod,
		MonthLength:      s.Subscription.MonthLength,
		MaxRenewalMonths: s.Subscription.MaxRenewalMonths,
	}
	cfg.Admin.MFAGracePeriod = s.Subscription.AdminMFAGrace

	cfg.PasswordReset = goGuard.PasswordResetConfig{
		Enabled:  s.Tokens.ResetEnabled,
		TokenTTL: s.Tokens.ResetTTL,
	}
	cfg.EmailVerification = goGuard.EmailVerificationConfig{
		Enabled:        s.Tokens.VerificationEnabled,
		TokenTTL:       s.Tokens.VerificationTTL,
		SendOnRegister: s.Tokens.VerifyOnRegistration,
	}

	cfg.Audit = goGuard.AuditConfig{
		Enabled:    s.Observability.AuditEnabled,
		BufferSize: s.Observability.AuditBuffer,
		DropIfFull: s.Observability.AuditDropIfFull,
	}
	cfg.Metrics = goGuard.MetricsConfig{
		Enabled:                 s.Observability.MetricsEnabled,
		EnableLatencyHistograms: s.Observability.LatencyHistograms,
	}
	cfg.Hashing = goGuard.HashingConfig{
		Workers:      s.Hashing.Workers,
		QueueTimeout: s.Hashing.QueueTimeout,
	}
	cfg.Account.MaxNameLength = s.MaxNameLength

	return cfg
}
