package goGuard

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/internal"
)

// RequestPasswordReset issues a one-hour reset token and hands it to the
// Notifier. Unknown emails return nil exactly like known ones.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrFeatureDisabled
	}

	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	e.metricInc(MetricPasswordResetRequest)

	user, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.logger.Info("password reset for unknown account", zap.String("email", email))
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", ErrUserNotFound, func() map[string]string {
				return map[string]string{"identifier": email}
			})
			return nil
		}
		return e.storeFailure("reset lookup", err)
	}

	token, hash, err := newAccountToken(user.ID)
	if err != nil {
		return err
	}
	expires := e.now().UTC().Add(e.config.PasswordReset.TokenTTL)
	if err := e.store.Update(ctx, user.ID, UserPatch{
		ResetTokenHash:      Set(hash),
		ResetTokenExpiresAt: Set(expires),
	}); err != nil {
		return e.storeFailure("reset token store", err)
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, "", nil, nil)
	e.notify(ctx, NotifyPasswordReset, user.Email, map[string]string{
		"name":       user.Name,
		"token":      token,
		"expires_at": expires.Format(time.RFC3339),
	})
	return nil
}

// ResetPassword sets a new password using a token from RequestPasswordReset.
//
// Tokens are single use: the stored hash is cleared in the same conditional
// update that writes the new password, so two concurrent resets with one token
// cannot both succeed. Unknown, used and expired tokens all return
// ErrResetTokenInvalid. A successful reset also clears the email's lockout.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled {
		return ErrFeatureDisabled
	}

	userID, hash, ok := parseAccountToken(token)
	if !ok {
		return e.resetFailure(ctx, "", "malformed")
	}

	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return e.resetFailure(ctx, "", "unknown_account")
		}
		return e.storeFailure("reset account lookup", err)
	}
	if !internal.TokenHashEqual(user.ResetTokenHash, hash) {
		return e.resetFailure(ctx, user.ID, "mismatch")
	}
	if user.ResetTokenExpiresAt == nil || !e.now().Before(*user.ResetTokenExpiresAt) {
		return e.resetFailure(ctx, user.ID, "expired")
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	newHash, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		return err
	}

	err = e.store.Update(ctx, user.ID, UserPatch{
		PasswordHash:        Set(newHash),
		ResetTokenHash:      Unset[string](),
		ResetTokenExpiresAt: Unset[time.Time](),
		Precondition:        Precondition{ResetTokenHash: hash},
	})
	if err != nil {
		if errors.Is(err, ErrPatchConflict) {
			return e.resetFailure(ctx, user.ID, "replayed")
		}
		return e.storeFailure("password reset", err)
	}

	if err := e.lockout.Reset(ctx, user.Email); err != nil {
		e.logger.Warn("lockout reset after password reset failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, "", nil, nil)
	return nil
}

func (e *Engine) resetFailure(ctx context.Context, userID, reason string) error {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, "", ErrResetTokenInvalid, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrResetTokenInvalid
}
