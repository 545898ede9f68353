package goGuard

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/hashpool"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/lockout"
	"github.com/MrEthical07/goGuard/mfa"
	"github.com/MrEthical07/goGuard/password"
)

// Engine is the account-security and entitlement engine. It is safe for
// concurrent use once built.
type Engine struct {
	config     Config
	policy     Policy
	store      AccountStore
	notifier   Notifier
	lockout    lockout.Tracker
	hasher     *password.Multi
	pool       *hashpool.Pool
	mfa        *mfa.Manager
	jwtManager *jwt.Manager
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time

	burnOnce sync.Once
	burnHash string
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped so far.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Policy returns the authorization windows in force.
func (e *Engine) Policy() Policy {
	return e.policy
}

// LockoutTracker exposes the tracker, mainly for operational tooling.
func (e *Engine) LockoutTracker() lockout.Tracker {
	return e.lockout
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.jwtManager != nil && e.hasher != nil && e.lockout != nil
}

/*
====================================
AUTHENTICATION & AUTHORIZATION
====================================
*/

// Authenticate validates a session token and loads its account.
//
// Expired tokens return ErrSessionExpired; every other rejection, including a
// token for an account that no longer exists, returns ErrSessionInvalid.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	user, claims, err := e.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return e.principal(user, claims), nil
}

// Authorize authenticates token and applies the gate for op.
func (e *Engine) Authorize(ctx context.Context, token string, op OperationClass) (*Principal, error) {
	user, claims, err := e.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := e.checkOperation(ctx, user, op); err != nil {
		return nil, err
	}
	return e.principal(user, claims), nil
}

// CheckOperation applies the authorization gate to an already loaded account.
func (e *Engine) CheckOperation(user *User, op OperationClass) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.policy.Check(user, op, e.now())
}

// GetCurrentUser returns the caller's public profile.
func (e *Engine) GetCurrentUser(ctx context.Context, token string) (*UserView, error) {
	user, _, err := e.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	view := e.view(user)
	return &view, nil
}

func (e *Engine) authenticate(ctx context.Context, token string) (*User, *jwt.Claims, error) {
	if !e.ready() {
		return nil, nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.Validate(strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			e.metricInc(MetricSessionExpired)
			return nil, nil, ErrSessionExpired
		}
		e.metricInc(MetricSessionInvalid)
		e.logger.Debug("session rejected", zap.Error(err))
		return nil, nil, ErrSessionInvalid
	}

	user, err := e.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricSessionInvalid)
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, e.storeFailure("session account lookup", err)
	}
	return user, claims, nil
}

// authorize is the common prologue of every token-taking operation.
func (e *Engine) authorize(ctx context.Context, token string, op OperationClass) (*User, error) {
	user, _, err := e.authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := e.checkOperation(ctx, user, op); err != nil {
		return nil, err
	}
	return user, nil
}

func (e *Engine) checkOperation(ctx context.Context, user *User, op OperationClass) error {
	err := e.policy.Check(user, op, e.now())
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrSubscriptionExpired):
		e.metricInc(MetricAuthzDeniedSubscription)
	case errors.Is(err, ErrAdminRequired):
		e.metricInc(MetricAuthzDeniedAdmin)
	case errors.Is(err, ErrAdminMFARequired):
		e.metricInc(MetricAuthzDeniedAdminMFA)
	}
	e.logger.Info("operation denied",
		zap.String("user_id", user.ID),
		zap.Stringer("operation", op),
		zap.Error(err),
	)
	e.emitAudit(ctx, auditEventAuthorizationDenied, false, user.ID, user.ID, err, func() map[string]string {
		return map[string]string{"operation": op.String()}
	})
	return err
}

func (e *Engine) principal(user *User, claims *jwt.Claims) *Principal {
	p := &Principal{
		UserID:       user.ID,
		Email:        user.Email,
		IsAdmin:      user.IsAdmin,
		MFAEnabled:   user.MFAEnabled,
		Subscription: e.policy.SubscriptionStatus(user, e.now()),
	}
	if user.SubscriptionEndDate != nil {
		p.SubscriptionEnd = *user.SubscriptionEndDate
	}
	if claims != nil && claims.ExpiresAt != nil {
		p.SessionExpires = claims.ExpiresAt.Time
	}
	return p
}

func (e *Engine) view(user *User) UserView {
	return UserView{
		ID:                  user.ID,
		Email:               user.Email,
		Name:                user.Name,
		IsAdmin:             user.IsAdmin,
		EmailVerified:       user.EmailVerified,
		MFAEnabled:          user.MFAEnabled,
		SubscriptionEndDate: cloneTime(user.SubscriptionEndDate),
		SubscriptionStatus:  e.policy.SubscriptionStatus(user, e.now()),
		CreatedAt:           user.CreatedAt,
		LastLoginAt:         cloneTime(user.LastLoginAt),
	}
}

/*
====================================
HASHING
====================================
*/

func (e *Engine) hashPassword(ctx context.Context, pw string) (string, error) {
	return hashpool.Run(ctx, e.pool, func() (string, error) {
		return e.hasher.Hash(pw)
	})
}

func (e *Engine) verifyPassword(ctx context.Context, pw, hash string) (bool, error) {
	return hashpool.Run(ctx, e.pool, func() (bool, error) {
		return e.hasher.Verify(pw, hash)
	})
}

// burnPasswordCheck spends one verification on a throwaway hash so unknown
// accounts cost about as much as known ones.
func (e *Engine) burnPasswordCheck(ctx context.Context, pw string) {
	e.burnOnce.Do(func() {
		h, err := e.hasher.Hash("goguard-unknown-account-placeholder")
		if err != nil {
			e.logger.Warn("placeholder hash unavailable", zap.Error(err))
			return
		}
		e.burnHash = h
	})
	if e.burnHash == "" {
		return
	}
	_, _ = e.verifyPassword(ctx, pw, e.burnHash)
}

// upgradePassword rehashes a credential stored under an outdated algorithm or
// cost. Failures leave the old hash in place.
func (e *Engine) upgradePassword(ctx context.Context, userID, pw, hash string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	need, err := e.hasher.NeedsUpgrade(hash)
	if err != nil || !need {
		return
	}
	newHash, err := e.hashPassword(ctx, pw)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := e.store.Update(ctx, userID, UserPatch{PasswordHash: Set(newHash)}); err != nil {
		e.logger.Warn("password rehash not stored", zap.String("user_id", userID), zap.Error(err))
		return
	}
	e.metricInc(MetricPasswordRehashed)
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	res := password.CheckStrength(pw)
	if res.OK {
		return nil
	}
	return &PasswordPolicyError{Rule: res.Rule, Message: res.Reason}
}

/*
====================================
INPUT
====================================
*/

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const maxEmailLength = 254

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLength || !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// sanitizeName collapses whitespace, drops control characters and truncates
// to maxRunes.
func sanitizeName(name string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(name))
	space := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := b.String()
	if utf8.RuneCountInString(out) > maxRunes {
		out = string([]rune(out)[:maxRunes])
		out = strings.TrimSpace(out)
	}
	return out
}

/*
====================================
BACKENDS
====================================
*/

// storeFailure logs a raw store error and returns the wrapped sentinel.
func (e *Engine) storeFailure(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e.logger.Error("account store failure", zap.String("op", op), zap.Error(err))
	return storeErr(err)
}

func (e *Engine) notify(ctx context.Context, kind NotificationKind, recipient string, payload map[string]string) {
	if ok := e.notifier.Notify(ctx, kind, recipient, payload); !ok {
		e.logger.Warn("notification not delivered",
			zap.String("kind", string(kind)),
			zap.String("recipient", recipient),
		)
	}
}
