package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal"
)

// RequestEmailVerification issues a fresh verification token for the caller
// and replaces any earlier one.
func (e *Engine) RequestEmailVerification(ctx context.Context, token string) error {
	user, err := e.authorize(ctx, token, OpRead)
	if err != nil {
		return err
	}
	if !e.config.EmailVerification.Enabled {
		return ErrFeatureDisabled
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}

	verifyToken, hash, err := newAccountToken(user.ID)
	if err != nil {
		return err
	}
	expires := e.now().UTC().Add(e.config.EmailVerification.TokenTTL)
	if err := e.store.Update(ctx, user.ID, UserPatch{
		VerificationTokenHash:      Set(hash),
		VerificationTokenExpiresAt: Set(expires),
	}); err != nil {
		return e.storeFailure("verification token store", err)
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, user.ID, user.ID, nil, nil)
	e.notify(ctx, NotifyVerification, user.Email, map[string]string{
		"name":  user.Name,
		"token": verifyToken,
	})
	return nil
}

// VerifyEmail marks the account's email verified. The token is single use.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if !e.config.EmailVerification.Enabled {
		return ErrFeatureDisabled
	}

	userID, hash, ok := parseAccountToken(token)
	if !ok {
		return e.verificationFailure(ctx, "")
	}
	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return e.verificationFailure(ctx, "")
		}
		return e.storeFailure("verification account lookup", err)
	}
	if !internal.TokenHashEqual(user.VerificationTokenHash, hash) ||
		user.VerificationTokenExpiresAt == nil ||
		!e.now().Before(*user.VerificationTokenExpiresAt) {
		return e.verificationFailure(ctx, user.ID)
	}

	err = e.store.Update(ctx, user.ID, UserPatch{
		EmailVerified:              Set(true),
		VerificationTokenHash:      Unset[string](),
		VerificationTokenExpiresAt: Unset[time.Time](),
		Precondition:               Precondition{VerificationTokenHash: hash},
	})
	if err != nil {
		if errors.Is(err, ErrPatchConflict) {
			return e.verificationFailure(ctx, user.ID)
		}
		return e.storeFailure("email verification", err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, user.ID, "", nil, nil)
	return nil
}

func (e *Engine) verificationFailure(ctx context.Context, userID string) error {
	e.metricInc(MetricEmailVerificationFailure)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, userID, "", ErrVerificationTokenInvalid, nil)
	return ErrVerificationTokenInvalid
}
