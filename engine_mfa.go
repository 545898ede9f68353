package goGuard

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/mfa"
)

// SetupMFA starts TOTP enrollment for the caller. The new secret is stored as
// pending and the backup codes are stored hashed; both are returned once.
// Starting again before ConfirmMFA replaces the pending enrollment.
func (e *Engine) SetupMFA(ctx context.Context, token string) (*MFASetup, error) {
	user, err := e.mfaCaller(ctx, token)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	enrollment, err := e.mfa.BeginEnrollment(user.Email)
	if err != nil {
		e.logger.Error("mfa enrollment failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, err
	}

	disabled := false
	err = e.store.Update(ctx, user.ID, UserPatch{
		MFASecretPending: Set(enrollment.Secret),
		MFABackupCodes:   Set(mfa.HashBackupCodes(user.ID, enrollment.BackupCodes)),
		Precondition:     Precondition{MFAEnabled: &disabled},
	})
	if err != nil {
		if errors.Is(err, ErrPatchConflict) {
			return nil, ErrMFAAlreadyEnabled
		}
		return nil, e.storeFailure("mfa setup", err)
	}

	e.metricInc(MetricMFASetupStarted)
	e.emitAudit(ctx, auditEventMFASetupRequested, true, user.ID, user.ID, nil, nil)

	return &MFASetup{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
		BackupCodes:     enrollment.BackupCodes,
	}, nil
}

// ConfirmMFA enables MFA once code verifies against the pending secret. A
// wrong code changes nothing.
func (e *Engine) ConfirmMFA(ctx context.Context, token, code string) error {
	user, err := e.mfaCaller(ctx, token)
	if err != nil {
		return err
	}
	if user.MFAEnabled {
		return ErrMFAAlreadyEnabled
	}
	if user.MFASecretPending == "" {
		return ErrMFANotPending
	}

	if !e.mfa.Validate(user.MFASecretPending, code, e.now()) {
		e.metricInc(MetricMFAVerifyFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, user.ID, ErrMFAInvalid, func() map[string]string {
			return map[string]string{"stage": "confirm"}
		})
		return ErrMFAInvalid
	}

	disabled := false
	err = e.store.Update(ctx, user.ID, UserPatch{
		MFAEnabled:       Set(true),
		MFASecret:        Set(user.MFASecretPending),
		MFASecretPending: Unset[string](),
		Precondition: Precondition{
			MFASecretPending: user.MFASecretPending,
			MFAEnabled:       &disabled,
		},
	})
	if err != nil {
		if errors.Is(err, ErrPatchConflict) {
			return ErrMFANotPending
		}
		return e.storeFailure("mfa confirm", err)
	}

	e.metricInc(MetricMFAEnabled)
	e.logger.Info("mfa enabled", zap.String("user_id", user.ID))
	e.emitAudit(ctx, auditEventMFAEnabled, true, user.ID, user.ID, nil, nil)
	e.notify(ctx, NotifyMFAEnabled, user.Email, map[string]string{"name": user.Name})
	return nil
}

// DisableMFA turns MFA off after verifying a TOTP or backup code, and clears
// the secret and every remaining backup code.
func (e *Engine) DisableMFA(ctx context.Context, token, code string) error {
	user, err := e.authorize(ctx, token, OpRead)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return ErrMFANotEnabled
	}

	if _, err := e.verifySecondFactor(ctx, user.ID, user.MFASecret, code); err != nil {
		if errors.Is(err, ErrMFAInvalid) {
			e.metricInc(MetricMFAVerifyFailure)
			e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, user.ID, err, func() map[string]string {
				return map[string]string{"stage": "disable"}
			})
		}
		return err
	}

	enabled := true
	err = e.store.Update(ctx, user.ID, UserPatch{
		MFAEnabled:       Set(false),
		MFASecret:        Unset[string](),
		MFASecretPending: Unset[string](),
		MFABackupCodes:   Unset[[]string](),
		Precondition:     Precondition{MFAEnabled: &enabled},
	})
	if err != nil {
		if errors.Is(err, ErrPatchConflict) {
			return ErrMFANotEnabled
		}
		return e.storeFailure("mfa disable", err)
	}

	e.metricInc(MetricMFADisabled)
	e.logger.Info("mfa disabled", zap.String("user_id", user.ID))
	e.emitAudit(ctx, auditEventMFADisabled, true, user.ID, user.ID, nil, nil)
	return nil
}

// GetMFAStatus reports the caller's MFA posture. Required is true for admins;
// GraceDeadline is set for admins still running without MFA.
func (e *Engine) GetMFAStatus(ctx context.Context, token string) (*MFAStatus, error) {
	user, err := e.authorize(ctx, token, OpRead)
	if err != nil {
		return nil, err
	}
	return e.mfaStatus(user, e.now()), nil
}

func (e *Engine) mfaStatus(user *User, now time.Time) *MFAStatus {
	st := &MFAStatus{
		Enabled:  user.MFAEnabled,
		Required: user.IsAdmin,
	}
	if user.MFAEnabled {
		st.BackupCodesRemaining = len(user.MFABackupCodes)
	}
	if user.IsAdmin && !user.MFAEnabled {
		deadline := e.policy.AdminGraceDeadline(user)
		st.GraceDeadline = &deadline
		st.WithinGrace = now.Before(deadline)
	}
	return st
}

// mfaCaller authenticates the caller of an enrollment step and applies the
// admin-only restriction.
func (e *Engine) mfaCaller(ctx context.Context, token string) (*User, error) {
	user, err := e.authorize(ctx, token, OpRead)
	if err != nil {
		return nil, err
	}
	if e.config.MFA.AdminOnly && !user.IsAdmin {
		e.metricInc(MetricAuthzDeniedAdmin)
		e.emitAudit(ctx, auditEventAuthorizationDenied, false, user.ID, user.ID, ErrMFAAdminOnly, func() map[string]string {
			return map[string]string{"operation": "mfa_enrollment"}
		})
		return nil, ErrMFAAdminOnly
	}
	return user, nil
}
