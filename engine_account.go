package goGuard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/internal"
)

// Register creates an account on a trial subscription.
//
// The email is trimmed, lower-cased and format checked, the name is
// sanitized, and the password must pass the strength policy. A duplicate email
// returns ErrAccountExists. When email verification is enabled a verification
// token is issued and handed to the Notifier.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*UserView, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email := NormalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	name := sanitizeName(req.Name, e.config.Account.MaxNameLength)
	if name == "" {
		return nil, ErrInvalidInput
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	if _, err := e.store.FindByEmail(ctx, email); err == nil {
		return nil, e.registrationDuplicate(ctx, email)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, e.storeFailure("registration lookup", err)
	}

	hash, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Error("password hash failed", zap.Error(err))
		return nil, err
	}

	now := e.now().UTC()
	trialEnd := now.Add(e.config.Subscription.TrialPeriod)
	user := &User{
		ID:                  uuid.NewString(),
		Email:               email,
		Name:                name,
		PasswordHash:        hash,
		SubscriptionEndDate: &trialEnd,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	var verifyToken string
	if e.config.EmailVerification.Enabled && e.config.EmailVerification.SendOnRegister {
		token, tokenHash, err := newAccountToken(user.ID)
		if err != nil {
			return nil, err
		}
		expires := now.Add(e.config.EmailVerification.TokenTTL)
		user.VerificationTokenHash = tokenHash
		user.VerificationTokenExpiresAt = &expires
		verifyToken = token
	}

	if err := e.store.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, e.registrationDuplicate(ctx, email)
		}
		return nil, e.storeFailure("registration create", err)
	}

	e.metricInc(MetricRegistrationSuccess)
	e.logger.Info("account registered", zap.String("user_id", user.ID))
	e.emitAudit(ctx, auditEventRegistrationSuccess, true, user.ID, "", nil, nil)

	if verifyToken != "" {
		e.notify(ctx, NotifyVerification, email, map[string]string{
			"name":  name,
			"token": verifyToken,
		})
	}

	view := e.view(user)
	return &view, nil
}

func (e *Engine) registrationDuplicate(ctx context.Context, email string) error {
	e.metricInc(MetricRegistrationDuplicate)
	e.emitAudit(ctx, auditEventRegistrationDuplicate, false, "", "", ErrAccountExists, func() map[string]string {
		return map[string]string{"identifier": email}
	})
	return ErrAccountExists
}

// ChangePassword replaces the caller's password after checking the current one.
//
// A wrong current password returns ErrInvalidCredentials and does not count
// towards the lockout; the caller already holds a valid session. Any pending
// reset token is invalidated.
func (e *Engine) ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error {
	user, err := e.authorize(ctx, token, OpRead)
	if err != nil {
		return err
	}

	ok, err := e.verifyPassword(ctx, currentPassword, user.PasswordHash)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Error("password check did not run", zap.String("user_id", user.ID), zap.Error(err))
		return ErrHashUnavailable
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidCurrent)
		e.logger.Info("password change with wrong current password", zap.String("user_id", user.ID))
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, user.ID, user.ID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	if newPassword == currentPassword {
		return ErrPasswordReuse
	}

	hash, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := e.store.Update(ctx, user.ID, UserPatch{
		PasswordHash:        Set(hash),
		ResetTokenHash:      Unset[string](),
		ResetTokenExpiresAt: Unset[time.Time](),
	}); err != nil {
		return e.storeFailure("password change", err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, user.ID, user.ID, nil, nil)
	return nil
}

// newAccountToken returns a reset or verification token for userID and the
// hash to persist.
func newAccountToken(userID string) (token, hash string, err error) {
	secret, err := internal.NewTokenSecret()
	if err != nil {
		return "", "", err
	}
	token, err = internal.EncodeAccountToken(userID, secret)
	if err != nil {
		return "", "", err
	}
	return token, internal.HashTokenSecret(secret), nil
}

// parseAccountToken splits token into its user id and secret hash. ok is false
// for anything malformed.
func parseAccountToken(token string) (userID, hash string, ok bool) {
	userID, secret, err := internal.DecodeAccountToken(strings.TrimSpace(token))
	if err != nil {
		return "", "", false
	}
	return userID, internal.HashTokenSecret(secret), true
}
