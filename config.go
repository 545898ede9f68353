package goGuard

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/password"
)

// Config holds every engine setting.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Session           SessionConfig
	Password          PasswordConfig
	Lockout           LockoutConfig
	MFA               MFAConfig
	Subscription      SubscriptionConfig
	Admin             AdminConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Account           AccountConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	Hashing           HashingConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls signed session tokens. Sessions are stateless; TTL
// is the only way to bound a leaked token's lifetime.
type SessionConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	// PrivateKey is the HMAC secret for hs256 or a PKCS#8/raw key for ed25519.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	KeyID      string
	Leeway     time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the credential hash. Hashes in the other supported
// format keep verifying; UpgradeOnLogin rewrites them on the next good login.
type PasswordConfig struct {
	Algorithm      string // "bcrypt" (default) or "argon2id"
	BcryptCost     int
	Memory         uint32 // argon2, in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls failed-login lockout.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
	// TrackClientIP also counts failures per client IP (see WithClientIP).
	TrackClientIP bool
	RedisPrefix   string
	// IdleTTL bounds the lifetime of idle Redis records and the in-memory sweep age.
	IdleTTL time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig controls TOTP enrollment and backup codes.
type MFAConfig struct {
	Issuer          string
	Digits          int
	Period          uint
	Skew            uint
	SecretSize      uint
	BackupCodeCount int
	// AdminOnly restricts enrollment to admin accounts.
	AdminOnly bool
}

/*
====================================
SUBSCRIPTION CONFIG
====================================
*/

// SubscriptionConfig controls entitlement windows.
type SubscriptionConfig struct {
	GracePeriod time.Duration
	TrialPeriod time.Duration
	// MonthLength is the length of one renewal month.
	MonthLength      time.Duration
	MaxRenewalMonths int
}

// AdminConfig controls the admin-critical gate.
type AdminConfig struct {
	// MFAGracePeriod is how long a new (or re-anchored) admin may run
	// admin-critical operations without MFA.
	MFAGracePeriod time.Duration
}

/*
====================================
RESET & VERIFICATION CONFIG
====================================
*/

// PasswordResetConfig controls reset tokens.
type PasswordResetConfig struct {
	Enabled  bool
	TokenTTL time.Duration
}

// EmailVerificationConfig controls verification tokens.
type EmailVerificationConfig struct {
	Enabled  bool
	TokenTTL time.Duration
	// SendOnRegister issues a token from Register.
	SendOnRegister bool
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls registration input and listing.
type AccountConfig struct {
	MaxNameLength    int
	DefaultListLimit int
	MaxListLimit     int
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// HashingConfig bounds concurrent password hashing.
type HashingConfig struct {
	// Workers is the maximum number of hash or verify calls running at once.
	Workers int
	// QueueTimeout caps how long a call waits for a worker. Zero waits for the
	// caller's context only.
	QueueTimeout time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. Session.PrivateKey is empty
// and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Algorithm:      string(password.AlgorithmBcrypt),
			BcryptCost:     password.DefaultBcryptCost,
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
			RedisPrefix: "glo:",
			IdleTTL:     24 * time.Hour,
		},
		MFA: MFAConfig{
			Issuer:          "AudioMedic",
			Digits:          6,
			Period:          30,
			Skew:            1,
			SecretSize:      20,
			BackupCodeCount: 10,
			AdminOnly:       true,
		},
		Subscription: SubscriptionConfig{
			GracePeriod:      7 * 24 * time.Hour,
			TrialPeriod:      14 * 24 * time.Hour,
			MonthLength:      30 * 24 * time.Hour,
			MaxRenewalMonths: 120,
		},
		Admin: AdminConfig{
			MFAGracePeriod: 7 * 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:  true,
			TokenTTL: time.Hour,
		},
		EmailVerification: EmailVerificationConfig{
			Enabled:        true,
			TokenTTL:       24 * time.Hour,
			SendOnRegister: true,
		},
		Account: AccountConfig{
			MaxNameLength:    100,
			DefaultListLimit: 100,
			MaxListLimit:     1000,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Hashing: HashingConfig{
			Workers: 4,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cfg for unusable or unsafe values.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	switch strings.ToLower(c.Session.SigningMethod) {
	case "hs256":
		if len(c.Session.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.Session.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Session signing method")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be between 0 and 2m")
	}

	// Password
	switch password.Algorithm(c.Password.Algorithm) {
	case password.AlgorithmBcrypt:
		if c.Password.BcryptCost < password.MinBcryptCost {
			return errors.New("Password BcryptCost must be >= 12")
		}
	case password.AlgorithmArgon2:
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2id'")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.IdleTTL < 0 {
		return errors.New("Lockout IdleTTL must be >= 0")
	}

	// MFA
	if strings.TrimSpace(c.MFA.Issuer) == "" {
		return errors.New("MFA Issuer must be set")
	}
	if c.MFA.Digits != 6 && c.MFA.Digits != 8 {
		return errors.New("MFA Digits must be 6 or 8")
	}
	if c.MFA.Period == 0 || c.MFA.Period > 120 {
		return errors.New("MFA Period must be between 1 and 120 seconds")
	}
	if c.MFA.Skew > 2 {
		return errors.New("MFA Skew must be <= 2")
	}
	if c.MFA.SecretSize < 20 {
		return errors.New("MFA SecretSize must be >= 20 bytes")
	}
	if c.MFA.BackupCodeCount < 1 || c.MFA.BackupCodeCount > 20 {
		return errors.New("MFA BackupCodeCount must be between 1 and 20")
	}

	// Subscription
	if c.Subscription.GracePeriod < 0 {
		return errors.New("Subscription GracePeriod must be >= 0")
	}
	if c.Subscription.TrialPeriod < 0 {
		return errors.New("Subscription TrialPeriod must be >= 0")
	}
	if c.Subscription.MonthLength <= 0 {
		return errors.New("Subscription MonthLength must be > 0")
	}
	if c.Subscription.MaxRenewalMonths <= 0 {
		return errors.New("Subscription MaxRenewalMonths must be > 0")
	}

	// Admin
	if c.Admin.MFAGracePeriod < 0 {
		return errors.New("Admin MFAGracePeriod must be >= 0")
	}

	// Tokens
	if c.PasswordReset.Enabled && c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.EmailVerification.Enabled && c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification TokenTTL must be > 0")
	}

	// Account
	if c.Account.MaxNameLength <= 0 {
		return errors.New("Account MaxNameLength must be > 0")
	}
	if c.Account.DefaultListLimit <= 0 || c.Account.MaxListLimit < c.Account.DefaultListLimit {
		return errors.New("Account list limits must satisfy 0 < DefaultListLimit <= MaxListLimit")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Hashing
	if c.Hashing.Workers <= 0 {
		return errors.New("Hashing Workers must be > 0")
	}
	if c.Hashing.QueueTimeout < 0 {
		return errors.New("Hashing QueueTimeout must be >= 0")
	}

	return nil
}
