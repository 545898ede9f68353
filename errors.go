package goGuard

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/MrEthical07/goGuard/password"
)

var (
	// ErrInvalidInput is returned for malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidEmail is returned when an email address fails format checks.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrPasswordPolicy is returned when a password fails the strength policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a new password equals the current one.
	ErrPasswordReuse = errors.New("new password must differ from the current one")
	// ErrAccountExists is returned when registering an email already in use.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is the generic authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while an identifier is locked out.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrMFARequired is returned by Login when the account needs a second factor.
	ErrMFARequired = errors.New("mfa code required")
	// ErrMFAInvalid is returned for a wrong TOTP or backup code.
	ErrMFAInvalid = errors.New("invalid mfa code")
	// ErrSessionInvalid is returned for tokens that fail verification.
	ErrSessionInvalid = errors.New("invalid session")
	// ErrSessionExpired is returned for well-formed tokens past their expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrSubscriptionExpired is returned when a write is attempted on an expired subscription.
	ErrSubscriptionExpired = errors.New("subscription expired")
	// ErrAdminRequired is returned when a non-admin calls an admin operation.
	ErrAdminRequired = errors.New("admin privileges required")
	// ErrAdminMFARequired is returned by the admin-critical gate once the grace window is over.
	ErrAdminMFARequired = errors.New("admin mfa required")
	// ErrMFANotEnabled is returned when disabling MFA on an account without it.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFAAlreadyEnabled is returned by SetupMFA on an enrolled account.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotPending is returned by ConfirmMFA when no enrollment is in progress.
	ErrMFANotPending = errors.New("mfa not configured")
	// ErrMFAAdminOnly is returned when MFA enrollment is restricted to admins.
	ErrMFAAdminOnly = errors.New("mfa enrollment restricted to admins")
	// ErrUserNotFound is returned for unknown account ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrResetTokenInvalid covers unknown, used and expired reset tokens alike.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrVerificationTokenInvalid covers unknown, used and expired verification tokens.
	ErrVerificationTokenInvalid = errors.New("invalid or expired verification token")
	// ErrAlreadyVerified is returned when resending verification for a verified email.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrStoreUnavailable wraps account store failures. The wrapped detail is
	// logged, never returned to callers through PublicMessage.
	ErrStoreUnavailable = errors.New("account store unavailable")
	// ErrLockoutUnavailable is returned when the lockout backend cannot be
	// consulted. Login fails closed.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
	// ErrHashUnavailable is returned when a password check could not run,
	// for example because every hashing worker stayed busy past
	// Hashing.QueueTimeout. It never counts as a failed attempt.
	ErrHashUnavailable = errors.New("password check unavailable")
	// ErrEngineNotReady is returned by a nil or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrPatchConflict is returned by AccountStore.Update when a precondition no longer holds.
	ErrPatchConflict = errors.New("account changed concurrently")
	// ErrInvalidSubscriptionMonths is returned for renewals outside 1..120 months.
	ErrInvalidSubscriptionMonths = errors.New("subscription months must be between 1 and 120")
	// ErrSelfAdminToggle is returned when an admin tries to flip their own admin flag.
	ErrSelfAdminToggle = errors.New("cannot change own admin status")
	// ErrFeatureDisabled is returned by operations switched off in Config.
	ErrFeatureDisabled = errors.New("feature disabled")
)

// PasswordPolicyError names the first policy rule a password failed.
type PasswordPolicyError struct {
	Rule    password.Rule
	Message string
}

func (e *PasswordPolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPasswordPolicy.Error(), e.Message)
}

func (e *PasswordPolicyError) Unwrap() error { return ErrPasswordPolicy }

// LockedError reports an active lockout.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: try again in %d minutes", ErrAccountLocked.Error(), e.RemainingMinutes())
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// RemainingMinutes rounds the remaining lock up to whole minutes, minimum one.
func (e *LockedError) RemainingMinutes() int {
	m := int(math.Ceil(e.Remaining.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}

// CredentialsError is a failed login that did not (yet) lock the identifier.
type CredentialsError struct {
	RemainingAttempts int
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrInvalidCredentials.Error(), e.RemainingAttempts)
}

func (e *CredentialsError) Unwrap() error { return ErrInvalidCredentials }

// SubscriptionExpiredError names the instant the subscription ended. ExpiredAt
// is zero when the account never had one.
type SubscriptionExpiredError struct {
	ExpiredAt time.Time
}

func (e *SubscriptionExpiredError) Error() string {
	if e.ExpiredAt.IsZero() {
		return ErrSubscriptionExpired.Error() + ": no active subscription"
	}
	return fmt.Sprintf("%s on %s", ErrSubscriptionExpired.Error(), e.ExpiredAt.UTC().Format("2006-01-02"))
}

func (e *SubscriptionExpiredError) Unwrap() error { return ErrSubscriptionExpired }

// ErrorClass groups engine errors by how a transport should surface them.
type ErrorClass uint8

const (
	ClassNone ErrorClass = iota
	ClassValidation
	ClassAuthentication
	ClassAuthorization
	ClassNotFound
	ClassLockout
	ClassInternal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthentication:
		return "authentication"
	case ClassAuthorization:
		return "authorization"
	case ClassNotFound:
		return "not_found"
	case ClassLockout:
		return "lockout"
	case ClassInternal:
		return "internal"
	default:
		return "none"
	}
}

// ClassOf maps err to its class. Unknown errors are ClassInternal.
func ClassOf(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrAccountLocked):
		return ClassLockout
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrPasswordReuse),
		errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrMFANotEnabled),
		errors.Is(err, ErrMFAAlreadyEnabled),
		errors.Is(err, ErrMFANotPending),
		errors.Is(err, ErrResetTokenInvalid),
		errors.Is(err, ErrVerificationTokenInvalid),
		errors.Is(err, ErrAlreadyVerified),
		errors.Is(err, ErrInvalidSubscriptionMonths),
		errors.Is(err, ErrSelfAdminToggle),
		errors.Is(err, ErrPatchConflict):
		return ClassValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrMFARequired),
		errors.Is(err, ErrMFAInvalid),
		errors.Is(err, ErrSessionInvalid),
		errors.Is(err, ErrSessionExpired):
		return ClassAuthentication
	case errors.Is(err, ErrSubscriptionExpired),
		errors.Is(err, ErrAdminRequired),
		errors.Is(err, ErrAdminMFARequired),
		errors.Is(err, ErrMFAAdminOnly):
		return ClassAuthorization
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrFeatureDisabled):
		return ClassNotFound
	default:
		return ClassInternal
	}
}

// StatusCode returns the HTTP status for err.
func StatusCode(err error) int {
	switch ClassOf(err) {
	case ClassNone:
		return http.StatusOK
	case ClassValidation:
		return http.StatusBadRequest
	case ClassAuthentication:
		return http.StatusUnauthorized
	case ClassAuthorization:
		return http.StatusForbidden
	case ClassNotFound:
		return http.StatusNotFound
	case ClassLockout:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns a caller-safe description of err. Internal failures
// collapse to a fixed string so backend detail never leaks.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if ClassOf(err) == ClassInternal {
		return "internal error"
	}
	var (
		policyErr *PasswordPolicyError
		lockErr   *LockedError
		credErr   *CredentialsError
		subErr    *SubscriptionExpiredError
	)
	switch {
	case errors.As(err, &policyErr):
		return policyErr.Message
	case errors.As(err, &lockErr):
		return lockErr.Error()
	case errors.As(err, &credErr):
		return credErr.Error()
	case errors.As(err, &subErr):
		return subErr.Error()
	}
	return err.Error()
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
