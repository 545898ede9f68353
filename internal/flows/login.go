package flows

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoginUser is the flow-local view of an account.
type LoginUser struct {
	ID           string
	Email        string
	PasswordHash string
	MFAEnabled   bool
	MFASecret    string
}

// LoginRequest carries normalized login input. CodeSupplied distinguishes the
// password-only entry point from the MFA one, where an empty code is a failed
// attempt rather than a prompt.
type LoginRequest struct {
	Email        string
	Password     string
	Code         string
	CodeSupplied bool
}

// LoginOutcome is returned on success.
type LoginOutcome struct {
	UserID         string
	Email          string
	Token          string
	ExpiresAt      time.Time
	BackupCodeUsed bool
}

// LockState is the flow-local lockout snapshot returned by RecordFailure.
type LockState struct {
	Locked      bool
	LockedUntil time.Time
	Remaining   int
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginLocked      int
	LoginMFARequired int
	MFALoginSuccess  int
	MFALoginFailure  int
	BackupCodeUsed   int
	SessionIssued    int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess   string
	LoginFailure   string
	LoginLocked    string
	MFARequired    string
	MFAFailure     string
	BackupCodeUsed string
}

// LoginErrors carries host-level errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	MFARequired        error
	MFAInvalid         error
	LockoutUnavailable error
	StoreUnavailable   error
	SessionFailed      error

	// HashUnavailable is returned when the password check itself could not
	// run (worker pool busy, unusable stored hash). It is not a failed attempt.
	HashUnavailable error

	// Locked builds the lockout rejection for a lock ending at until.
	Locked func(until, now time.Time) error
	// Credentials builds the bad-credentials rejection.
	Credentials func(remaining int) error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	// TrackClientIP adds the caller IP as a second lockout identifier.
	TrackClientIP       bool
	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time
	Logger              *zap.Logger

	IsLocked      func(context.Context, string) (bool, time.Time, error)
	RecordFailure func(context.Context, string) (LockState, error)
	ResetFailures func(context.Context, string) error

	FindUser   func(context.Context, string) (LoginUser, error)
	IsNotFound func(error) bool

	VerifyPassword func(ctx context.Context, password, hash string) (bool, error)
	// BurnPasswordCheck spends a comparable amount of hashing work when the
	// account does not exist.
	BurnPasswordCheck func(ctx context.Context, password string)
	// UpgradePassword is best-effort; failures are logged by the host.
	UpgradePassword func(ctx context.Context, userID, password, hash string)

	VerifySecondFactor func(ctx context.Context, user LoginUser, code string) (usedBackup bool, err error)
	IssueSession       func(userID, email string) (string, time.Time, error)
	RecordLogin        func(ctx context.Context, userID string, at time.Time) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, err error, metadata func() map[string]string)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.BurnPasswordCheck == nil {
		deps.BurnPasswordCheck = func(context.Context, string) {}
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
}

// RunLogin executes the login state machine: lockout check, credential check,
// second factor, lockout reset, session issuance.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) (*LoginOutcome, error) {
	normalizeLoginDeps(&deps)

	if deps.IsLocked == nil ||
		deps.RecordFailure == nil ||
		deps.ResetFailures == nil ||
		deps.FindUser == nil ||
		deps.VerifyPassword == nil ||
		deps.VerifySecondFactor == nil ||
		deps.IssueSession == nil ||
		deps.Errors.Locked == nil ||
		deps.Errors.Credentials == nil {
		return nil, deps.Errors.EngineNotReady
	}

	log := deps.Logger.With(zap.String("flow", "login"))
	identifiers := lockoutIdentifiers(ctx, req.Email, deps)

	for _, id := range identifiers {
		locked, until, err := deps.IsLocked(ctx, id)
		if err != nil {
			log.Error("lockout check failed", zap.Error(err))
			return nil, deps.Errors.LockoutUnavailable
		}
		if locked {
			now := deps.Now()
			deps.MetricInc(deps.Metrics.LoginLocked)
			lockErr := deps.Errors.Locked(until, now)
			deps.EmitAudit(ctx, deps.Events.LoginLocked, false, "", lockErr, func() map[string]string {
				return map[string]string{"identifier": req.Email}
			})
			return nil, lockErr
		}
	}

	user, err := deps.FindUser(ctx, req.Email)
	if err != nil {
		if !deps.IsNotFound(err) {
			log.Error("account lookup failed", zap.Error(err))
			return nil, deps.Errors.StoreUnavailable
		}
		deps.BurnPasswordCheck(ctx, req.Password)
		log.Info("login for unknown account", zap.String("email", req.Email))
		return nil, recordLoginFailure(ctx, req.Email, "", "unknown_account", identifiers, deps, log)
	}

	ok, err := deps.VerifyPassword(ctx, req.Password, user.PasswordHash)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error("password check did not run", zap.String("user_id", user.ID), zap.Error(err))
		if deps.Errors.HashUnavailable != nil {
			return nil, deps.Errors.HashUnavailable
		}
		return nil, err
	}
	if !ok {
		log.Info("login with wrong password", zap.String("user_id", user.ID))
		return nil, recordLoginFailure(ctx, req.Email, user.ID, "bad_password", identifiers, deps, log)
	}

	usedBackup := false
	if user.MFAEnabled {
		if !req.CodeSupplied {
			deps.MetricInc(deps.Metrics.LoginMFARequired)
			deps.EmitAudit(ctx, deps.Events.MFARequired, false, user.ID, deps.Errors.MFARequired, nil)
			return nil, deps.Errors.MFARequired
		}

		usedBackup, err = deps.VerifySecondFactor(ctx, user, req.Code)
		if err != nil {
			if err != deps.Errors.MFAInvalid {
				log.Error("second factor check failed", zap.String("user_id", user.ID), zap.Error(err))
				return nil, err
			}
			deps.MetricInc(deps.Metrics.MFALoginFailure)
			deps.EmitAudit(ctx, deps.Events.MFAFailure, false, user.ID, err, nil)
			lockErr := recordFailures(ctx, identifiers, deps, log)
			if lockErr != nil {
				return nil, lockErr
			}
			return nil, deps.Errors.MFAInvalid
		}
		deps.MetricInc(deps.Metrics.MFALoginSuccess)
		if usedBackup {
			deps.MetricInc(deps.Metrics.BackupCodeUsed)
			deps.EmitAudit(ctx, deps.Events.BackupCodeUsed, true, user.ID, nil, nil)
		}
	}

	// Only the account's own record is cleared. A per-IP record spans many
	// accounts and expires on its own.
	if err := deps.ResetFailures(ctx, identifiers[0]); err != nil {
		log.Warn("lockout reset failed", zap.Error(err))
	}

	token, expiresAt, err := deps.IssueSession(user.ID, user.Email)
	if err != nil {
		log.Error("session issuance failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, deps.Errors.SessionFailed
	}
	deps.MetricInc(deps.Metrics.SessionIssued)

	if deps.RecordLogin != nil {
		if err := deps.RecordLogin(ctx, user.ID, deps.Now()); err != nil {
			log.Warn("last login update failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	if deps.UpgradePassword != nil {
		deps.UpgradePassword(ctx, user.ID, req.Password, user.PasswordHash)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.ID, nil, func() map[string]string {
		if !user.MFAEnabled {
			return nil
		}
		method := "totp"
		if usedBackup {
			method = "backup_code"
		}
		return map[string]string{"mfa": method}
	})

	return &LoginOutcome{
		UserID:         user.ID,
		Email:          user.Email,
		Token:          token,
		ExpiresAt:      expiresAt,
		BackupCodeUsed: usedBackup,
	}, nil
}

func lockoutIdentifiers(ctx context.Context, email string, deps LoginDeps) []string {
	ids := []string{email}
	if deps.TrackClientIP {
		if ip := deps.ClientIPFromContext(ctx); ip != "" {
			ids = append(ids, "ip:"+ip)
		}
	}
	return ids
}

func recordLoginFailure(ctx context.Context, email, userID, reason string, identifiers []string, deps LoginDeps, log *zap.Logger) error {
	deps.MetricInc(deps.Metrics.LoginFailure)

	st, err := recordFailuresState(ctx, identifiers, deps, log)
	if err != nil {
		return err
	}

	var out error
	if st.Locked {
		out = deps.Errors.Locked(st.LockedUntil, deps.Now())
	} else {
		out = deps.Errors.Credentials(st.Remaining)
	}
	deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, out, func() map[string]string {
		return map[string]string{"identifier": email, "reason": reason}
	})
	return out
}

// recordFailures records one failure per identifier and returns a lockout error
// when the email identifier just reached the threshold.
func recordFailures(ctx context.Context, identifiers []string, deps LoginDeps, log *zap.Logger) error {
	st, err := recordFailuresState(ctx, identifiers, deps, log)
	if err != nil {
		return err
	}
	if st.Locked {
		return deps.Errors.Locked(st.LockedUntil, deps.Now())
	}
	return nil
}

func recordFailuresState(ctx context.Context, identifiers []string, deps LoginDeps, log *zap.Logger) (LockState, error) {
	var primary LockState
	for i, id := range identifiers {
		st, err := deps.RecordFailure(ctx, id)
		if err != nil {
			log.Error("lockout record failed", zap.Error(err))
			return LockState{}, deps.Errors.LockoutUnavailable
		}
		if i == 0 {
			primary = st
		}
	}
	return primary, nil
}
