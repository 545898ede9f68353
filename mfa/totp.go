package mfa

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultIssuer          = "AudioMedic"
	DefaultDigits          = 6
	DefaultPeriod          = 30
	DefaultSkew            = 1
	DefaultSecretSize      = 20
	DefaultBackupCodeCount = 10
)

var (
	// ErrInvalidConfig is returned by NewManager for unusable parameters.
	ErrInvalidConfig = errors.New("mfa: invalid configuration")
	// ErrEmptyAccount is returned when enrollment has no account label.
	ErrEmptyAccount = errors.New("mfa: account name is required")
)

// Config controls TOTP parameters and backup code generation.
type Config struct {
	Issuer string
	// Digits is 6 or 8.
	Digits int
	// Period is the step length in seconds.
	Period uint
	// Skew is the number of steps accepted on either side of the current one.
	Skew uint
	// SecretSize is the raw secret length in bytes. 20 bytes is 160 bits.
	SecretSize      uint
	BackupCodeCount int
}

// DefaultConfig returns the production parameters.
func DefaultConfig() Config {
	return Config{
		Issuer:          DefaultIssuer,
		Digits:          DefaultDigits,
		Period:          DefaultPeriod,
		Skew:            DefaultSkew,
		SecretSize:      DefaultSecretSize,
		BackupCodeCount: DefaultBackupCodeCount,
	}
}

// Enrollment is the material handed to a user starting MFA setup.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// Manager generates and validates TOTP material. It is safe for concurrent use.
type Manager struct {
	cfg    Config
	digits otp.Digits
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidConfig)
	}
	var digits otp.Digits
	switch cfg.Digits {
	case 6:
		digits = otp.DigitsSix
	case 8:
		digits = otp.DigitsEight
	default:
		return nil, fmt.Errorf("%w: digits must be 6 or 8", ErrInvalidConfig)
	}
	if cfg.Period == 0 || cfg.Period > 120 {
		return nil, fmt.Errorf("%w: period must be in (0,120]", ErrInvalidConfig)
	}
	if cfg.Skew > 2 {
		return nil, fmt.Errorf("%w: skew must be <= 2", ErrInvalidConfig)
	}
	if cfg.SecretSize < 16 {
		return nil, fmt.Errorf("%w: secret size must be at least 16 bytes", ErrInvalidConfig)
	}
	if cfg.BackupCodeCount <= 0 || cfg.BackupCodeCount > 20 {
		return nil, fmt.Errorf("%w: backup code count must be in [1,20]", ErrInvalidConfig)
	}
	return &Manager{cfg: cfg, digits: digits}, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// BeginEnrollment creates a fresh secret, its provisioning URI labelled with
// account, and a new set of backup codes.
func (m *Manager) BeginEnrollment(account string) (Enrollment, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Enrollment{}, ErrEmptyAccount
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: account,
		Period:      m.cfg.Period,
		SecretSize:  m.cfg.SecretSize,
		Digits:      m.digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	codes, err := GenerateBackupCodes(m.cfg.BackupCodeCount)
	if err != nil {
		return Enrollment{}, err
	}

	return Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	}, nil
}

// Validate reports whether code is a valid TOTP for secret at now, within the
// configured skew.
func (m *Manager) Validate(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != m.digits.Length() || !isDigits(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), m.validateOpts())
	return err == nil && ok
}

// GenerateCode returns the code for secret at t.
func (m *Manager) GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), m.validateOpts())
}

func (m *Manager) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    m.cfg.Period,
		Skew:      m.cfg.Skew,
		Digits:    m.digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
