package goGuard

import (
	"time"

	"github.com/MrEthical07/goGuard/lockout"
)

// SecurityReport summarizes the security posture of a built engine. It holds
// no secrets and is safe to log or expose on an admin endpoint.
type SecurityReport struct {
	SigningAlgorithm    string
	SessionTTL          time.Duration
	PasswordAlgorithm   string
	BcryptCost          int
	Argon2              PasswordConfigReport
	UpgradeOnLogin      bool
	LockoutThreshold    int
	LockoutDuration     time.Duration
	LockoutPerIP        bool
	SharedLockout       bool
	MFAAdminOnly        bool
	BackupCodeCount     int
	SubscriptionGrace   time.Duration
	AdminMFAGrace       time.Duration
	PasswordResetActive bool
	EmailVerificationOn bool
	AuditEnabled        bool
	HashWorkers         int
}

// PasswordConfigReport mirrors the argon2id parameters in effect.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	_, shared := e.lockout.(*lockout.Redis)

	return SecurityReport{
		SigningAlgorithm:  e.config.Session.SigningMethod,
		SessionTTL:        e.config.Session.TTL,
		PasswordAlgorithm: e.config.Password.Algorithm,
		BcryptCost:        e.config.Password.BcryptCost,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		UpgradeOnLogin:      e.config.Password.UpgradeOnLogin,
		LockoutThreshold:    e.config.Lockout.MaxAttempts,
		LockoutDuration:     e.config.Lockout.Duration,
		LockoutPerIP:        e.config.Lockout.TrackClientIP,
		SharedLockout:       shared,
		MFAAdminOnly:        e.config.MFA.AdminOnly,
		BackupCodeCount:     e.config.MFA.BackupCodeCount,
		SubscriptionGrace:   e.policy.SubscriptionGrace,
		AdminMFAGrace:       e.policy.AdminMFAGrace,
		PasswordResetActive: e.config.PasswordReset.Enabled,
		EmailVerificationOn: e.config.EmailVerification.Enabled,
		AuditEnabled:        e.config.Audit.Enabled,
		HashWorkers:         e.config.Hashing.Workers,
	}
}
