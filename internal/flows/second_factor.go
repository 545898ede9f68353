package flows

import (
	"context"
	"time"
)

// SecondFactorErrors carries host-level errors.
type SecondFactorErrors struct {
	Invalid     error
	Unavailable error
}

// SecondFactorDeps verifies a TOTP code or consumes a backup code.
type SecondFactorDeps struct {
	Now                    func() time.Time
	ValidateTOTP           func(secret, code string, now time.Time) bool
	CanonicalizeBackupCode func(string) string
	HashBackupCode         func(userID, canonical string) string
	// ConsumeBackupCode atomically removes hash from the account's set and
	// reports whether it was present.
	ConsumeBackupCode func(ctx context.Context, userID, hash string) (bool, error)

	Errors SecondFactorErrors
}

// RunVerifySecondFactor accepts a TOTP code for secret or, failing that, an
// unused backup code. A backup code is consumed by the same call that accepts
// it, so replaying it fails.
func RunVerifySecondFactor(ctx context.Context, userID, secret, code string, deps SecondFactorDeps) (usedBackup bool, err error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ValidateTOTP == nil || deps.CanonicalizeBackupCode == nil || deps.HashBackupCode == nil || deps.ConsumeBackupCode == nil {
		return false, deps.Errors.Unavailable
	}

	if secret != "" && deps.ValidateTOTP(secret, code, deps.Now()) {
		return false, nil
	}

	canonical := deps.CanonicalizeBackupCode(code)
	if canonical == "" {
		return false, deps.Errors.Invalid
	}
	ok, err := deps.ConsumeBackupCode(ctx, userID, deps.HashBackupCode(userID, canonical))
	if err != nil {
		return false, deps.Errors.Unavailable
	}
	if !ok {
		return false, deps.Errors.Invalid
	}
	return true, nil
}
