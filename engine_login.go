package goGuard

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/lockout"
	"github.com/MrEthical07/goGuard/mfa"
)

// Login authenticates email and password and issues a session token.
//
// Accounts with MFA enabled return ErrMFARequired; call LoginWithMFA with the
// code. Unknown emails and wrong passwords both return *CredentialsError and
// both count towards the lockout. While the identifier is locked every
// attempt returns *LockedError without touching the store.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return e.login(ctx, flows.LoginRequest{
		Email:    NormalizeEmail(email),
		Password: password,
	})
}

// LoginWithMFA is Login plus a TOTP or backup code. A wrong or empty code is a
// failed attempt and counts towards the lockout. A backup code is consumed by
// the login that accepts it.
func (e *Engine) LoginWithMFA(ctx context.Context, email, password, code string) (*LoginResult, error) {
	return e.login(ctx, flows.LoginRequest{
		Email:        NormalizeEmail(email),
		Password:     password,
		Code:         code,
		CodeSupplied: true,
	})
}

func (e *Engine) login(ctx context.Context, req flows.LoginRequest) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	out, err := flows.RunLogin(ctx, req, e.loginDeps())
	if err != nil {
		return nil, err
	}

	user, err := e.store.FindByID(ctx, out.UserID)
	if err != nil {
		return nil, e.storeFailure("login account reload", err)
	}

	view := e.view(user)
	return &LoginResult{
		Token:                out.Token,
		TokenType:            "bearer",
		ExpiresAt:            out.ExpiresAt,
		User:                 view,
		Subscription:         view.SubscriptionStatus,
		BackupCodeUsed:       out.BackupCodeUsed,
		BackupCodesRemaining: len(user.MFABackupCodes),
	}, nil
}

func (e *Engine) loginDeps() flows.LoginDeps {
	return flows.LoginDeps{
		TrackClientIP:       e.config.Lockout.TrackClientIP,
		ClientIPFromContext: ClientIPFromContext,
		Now:                 e.now,
		Logger:              e.logger,

		IsLocked: e.lockout.IsLocked,
		RecordFailure: func(ctx context.Context, id string) (flows.LockState, error) {
			st, err := e.lockout.RecordFailure(ctx, id)
			if err != nil {
				return flows.LockState{}, err
			}
			return toLockState(st), nil
		},
		ResetFailures: e.lockout.Reset,

		FindUser: func(ctx context.Context, email string) (flows.LoginUser, error) {
			u, err := e.store.FindByEmail(ctx, email)
			if err != nil {
				return flows.LoginUser{}, err
			}
			return flows.LoginUser{
				ID:           u.ID,
				Email:        u.Email,
				PasswordHash: u.PasswordHash,
				MFAEnabled:   u.MFAEnabled,
				MFASecret:    u.MFASecret,
			}, nil
		},
		IsNotFound: func(err error) bool { return errors.Is(err, ErrUserNotFound) },

		VerifyPassword:    e.verifyPassword,
		BurnPasswordCheck: e.burnPasswordCheck,
		UpgradePassword:   e.upgradePassword,

		VerifySecondFactor: func(ctx context.Context, u flows.LoginUser, code string) (bool, error) {
			return e.verifySecondFactor(ctx, u.ID, u.MFASecret, code)
		},
		IssueSession: e.jwtManager.Issue,
		RecordLogin: func(ctx context.Context, userID string, at time.Time) error {
			return e.store.Update(ctx, userID, UserPatch{LastLoginAt: Set(at.UTC())})
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: func(ctx context.Context, event string, success bool, userID string, err error, meta func() map[string]string) {
			e.emitAudit(ctx, event, success, userID, "", err, meta)
		},

		Metrics: flows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginLocked:      int(MetricLoginLocked),
			LoginMFARequired: int(MetricLoginMFARequired),
			MFALoginSuccess:  int(MetricMFALoginSuccess),
			MFALoginFailure:  int(MetricMFALoginFailure),
			BackupCodeUsed:   int(MetricBackupCodeUsed),
			SessionIssued:    int(MetricSessionIssued),
		},
		Events: flows.LoginEvents{
			LoginSuccess:   auditEventLoginSuccess,
			LoginFailure:   auditEventLoginFailure,
			LoginLocked:    auditEventLoginLocked,
			MFARequired:    auditEventMFARequired,
			MFAFailure:     auditEventMFAFailure,
			BackupCodeUsed: auditEventBackupCodeUsed,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			MFARequired:        ErrMFARequired,
			MFAInvalid:         ErrMFAInvalid,
			LockoutUnavailable: ErrLockoutUnavailable,
			StoreUnavailable:   ErrStoreUnavailable,
			SessionFailed:      ErrSessionInvalid,
			HashUnavailable:    ErrHashUnavailable,
			Locked: func(until, now time.Time) error {
				return &LockedError{Until: until, Remaining: until.Sub(now)}
			},
			Credentials: func(remaining int) error {
				return &CredentialsError{RemainingAttempts: remaining}
			},
		},
	}
}

func toLockState(st lockout.State) flows.LockState {
	return flows.LockState{
		Locked:      st.Locked,
		LockedUntil: st.LockedUntil,
		Remaining:   st.Remaining,
	}
}

// verifySecondFactor accepts a TOTP code or consumes one backup code.
func (e *Engine) verifySecondFactor(ctx context.Context, userID, secret, code string) (bool, error) {
	return flows.RunVerifySecondFactor(ctx, userID, secret, code, flows.SecondFactorDeps{
		Now:                    e.now,
		ValidateTOTP:           e.mfa.Validate,
		CanonicalizeBackupCode: mfa.CanonicalizeBackupCode,
		HashBackupCode:         mfa.HashBackupCode,
		ConsumeBackupCode: func(ctx context.Context, userID, hash string) (bool, error) {
			ok, err := e.store.ConsumeBackupCode(ctx, userID, hash)
			if err != nil {
				e.logger.Error("backup code consume failed", zap.String("user_id", userID), zap.Error(err))
			}
			return ok, err
		},
		Errors: flows.SecondFactorErrors{
			Invalid:     ErrMFAInvalid,
			Unavailable: ErrStoreUnavailable,
		},
	})
}
