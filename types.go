package goGuard

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	internalmetrics "github.com/MrEthical07/goGuard/internal/metrics"
)

// User is the persisted account record.
//
// PasswordHash, MFASecret, MFASecretPending and the token hashes are secrets:
// they are never logged and never leave the engine through UserView.
type User struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	IsAdmin       bool
	EmailVerified bool

	MFAEnabled       bool
	MFASecret        string
	MFASecretPending string
	// MFABackupCodes holds hashes of the unused backup codes, in issue order.
	MFABackupCodes []string
	// MFAGraceResetAt re-anchors the admin MFA grace window when set.
	MFAGraceResetAt *time.Time

	// SubscriptionEndDate is nil for accounts that never had a subscription.
	SubscriptionEndDate *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time

	VerificationTokenHash      string
	VerificationTokenExpiresAt *time.Time
	ResetTokenHash             string
	ResetTokenExpiresAt        *time.Time
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.MFABackupCodes != nil {
		out.MFABackupCodes = append([]string(nil), u.MFABackupCodes...)
	}
	out.MFAGraceResetAt = cloneTime(u.MFAGraceResetAt)
	out.SubscriptionEndDate = cloneTime(u.SubscriptionEndDate)
	out.LastLoginAt = cloneTime(u.LastLoginAt)
	out.VerificationTokenExpiresAt = cloneTime(u.VerificationTokenExpiresAt)
	out.ResetTokenExpiresAt = cloneTime(u.ResetTokenExpiresAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Field is one entry of a UserPatch. The zero value leaves the stored field
// untouched; Set writes a value and Unset clears it.
type Field[T any] struct {
	op    fieldOp
	value T
}

type fieldOp uint8

const (
	fieldKeep fieldOp = iota
	fieldSet
	fieldUnset
)

// Set returns a Field that writes v.
func Set[T any](v T) Field[T] {
	return Field[T]{op: fieldSet, value: v}
}

// Unset returns a Field that clears the stored value.
func Unset[T any]() Field[T] {
	return Field[T]{op: fieldUnset}
}

func (f Field[T]) IsSet() bool   { return f.op == fieldSet }
func (f Field[T]) IsUnset() bool { return f.op == fieldUnset }
func (f Field[T]) IsZero() bool  { return f.op == fieldKeep }
func (f Field[T]) Value() T      { return f.value }

// UserPatch is a field-level delta applied by AccountStore.Update. Stores
// apply only the fields that are set or unset and bump UpdatedAt.
type UserPatch struct {
	Name                       Field[string]
	PasswordHash               Field[string]
	IsAdmin                    Field[bool]
	EmailVerified              Field[bool]
	MFAEnabled                 Field[bool]
	MFASecret                  Field[string]
	MFASecretPending           Field[string]
	MFABackupCodes             Field[[]string]
	MFAGraceResetAt            Field[time.Time]
	SubscriptionEndDate        Field[time.Time]
	LastLoginAt                Field[time.Time]
	VerificationTokenHash      Field[string]
	VerificationTokenExpiresAt Field[time.Time]
	ResetTokenHash             Field[string]
	ResetTokenExpiresAt        Field[time.Time]

	// Precondition makes the update conditional on the stored record.
	Precondition Precondition
}

// Precondition restricts an update to records whose current values match.
// Empty strings and nil pointers are not checked. A mismatch fails the update
// with ErrPatchConflict and changes nothing.
type Precondition struct {
	ResetTokenHash        string
	VerificationTokenHash string
	MFASecretPending      string
	MFAEnabled            *bool
	IsAdmin               *bool

	// SubscriptionEndDate checks the stored end date: Set requires that
	// instant, Unset requires no end date, and the zero Field skips the check.
	SubscriptionEndDate Field[time.Time]
}

// IsZero reports whether p checks nothing.
func (p Precondition) IsZero() bool {
	return p.ResetTokenHash == "" && p.VerificationTokenHash == "" && p.MFASecretPending == "" &&
		p.MFAEnabled == nil && p.IsAdmin == nil && p.SubscriptionEndDate.IsZero()
}

// expectEndDate builds a SubscriptionEndDate precondition from a value read
// from the store.
func expectEndDate(end *time.Time) Field[time.Time] {
	if end == nil {
		return Unset[time.Time]()
	}
	return Set(*end)
}

// Matches reports whether u satisfies p.
func (p Precondition) Matches(u *User) bool {
	if u == nil {
		return false
	}
	if p.ResetTokenHash != "" && u.ResetTokenHash != p.ResetTokenHash {
		return false
	}
	if p.VerificationTokenHash != "" && u.VerificationTokenHash != p.VerificationTokenHash {
		return false
	}
	if p.MFASecretPending != "" && u.MFASecretPending != p.MFASecretPending {
		return false
	}
	if p.MFAEnabled != nil && u.MFAEnabled != *p.MFAEnabled {
		return false
	}
	if p.IsAdmin != nil && u.IsAdmin != *p.IsAdmin {
		return false
	}
	switch {
	case p.SubscriptionEndDate.IsSet():
		if u.SubscriptionEndDate == nil || !u.SubscriptionEndDate.Equal(p.SubscriptionEndDate.Value()) {
			return false
		}
	case p.SubscriptionEndDate.IsUnset():
		if u.SubscriptionEndDate != nil {
			return false
		}
	}
	return true
}

// Apply writes the patch onto u in place. It does not check the precondition.
func (p UserPatch) Apply(u *User, now time.Time) {
	applyValue(&u.Name, p.Name)
	applyValue(&u.PasswordHash, p.PasswordHash)
	applyValue(&u.IsAdmin, p.IsAdmin)
	applyValue(&u.EmailVerified, p.EmailVerified)
	applyValue(&u.MFAEnabled, p.MFAEnabled)
	applyValue(&u.MFASecret, p.MFASecret)
	applyValue(&u.MFASecretPending, p.MFASecretPending)
	switch {
	case p.MFABackupCodes.IsSet():
		u.MFABackupCodes = append([]string(nil), p.MFABackupCodes.Value()...)
	case p.MFABackupCodes.IsUnset():
		u.MFABackupCodes = nil
	}
	applyTime(&u.MFAGraceResetAt, p.MFAGraceResetAt)
	applyTime(&u.SubscriptionEndDate, p.SubscriptionEndDate)
	applyTime(&u.LastLoginAt, p.LastLoginAt)
	applyValue(&u.VerificationTokenHash, p.VerificationTokenHash)
	applyTime(&u.VerificationTokenExpiresAt, p.VerificationTokenExpiresAt)
	applyValue(&u.ResetTokenHash, p.ResetTokenHash)
	applyTime(&u.ResetTokenExpiresAt, p.ResetTokenExpiresAt)
	u.UpdatedAt = now
}

func applyValue[T any](dst *T, f Field[T]) {
	switch {
	case f.IsSet():
		*dst = f.Value()
	case f.IsUnset():
		var zero T
		*dst = zero
	}
}

func applyTime(dst **time.Time, f Field[time.Time]) {
	switch {
	case f.IsSet():
		v := f.Value()
		*dst = &v
	case f.IsUnset():
		*dst = nil
	}
}

// SubscriptionStatus is the entitlement derived from an account's end date.
type SubscriptionStatus string

const (
	SubscriptionActive      SubscriptionStatus = "active"
	SubscriptionGracePeriod SubscriptionStatus = "grace_period"
	SubscriptionExpired     SubscriptionStatus = "expired"
)

// AllowsWrite reports whether the status permits write operations.
func (s SubscriptionStatus) AllowsWrite() bool {
	return s == SubscriptionActive || s == SubscriptionGracePeriod
}

// OperationClass tells the authorization gate what kind of call is being made.
type OperationClass uint8

const (
	// OpRead is always allowed to an authenticated account.
	OpRead OperationClass = iota
	// OpWrite requires an active or grace-period subscription.
	OpWrite
	// OpAdmin requires the admin flag.
	OpAdmin
	// OpAdminCritical requires the admin flag plus MFA, or an admin still
	// inside the MFA grace window.
	OpAdminCritical
)

func (o OperationClass) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpAdmin:
		return "admin"
	case OpAdminCritical:
		return "admin_critical"
	default:
		return "unknown"
	}
}

// UserView is the public projection of a User.
type UserView struct {
	ID                  string             `json:"id"`
	Email               string             `json:"email"`
	Name                string             `json:"name"`
	IsAdmin             bool               `json:"is_admin"`
	EmailVerified       bool               `json:"email_verified"`
	MFAEnabled          bool               `json:"mfa_enabled"`
	SubscriptionEndDate *time.Time         `json:"subscription_end_date,omitempty"`
	SubscriptionStatus  SubscriptionStatus `json:"subscription_status"`
	CreatedAt           time.Time          `json:"created_at"`
	LastLoginAt         *time.Time         `json:"last_login_at,omitempty"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token        string             `json:"access_token"`
	TokenType    string             `json:"token_type"`
	ExpiresAt    time.Time          `json:"expires_at"`
	User         UserView           `json:"user"`
	Subscription SubscriptionStatus `json:"subscription_status"`
	// BackupCodeUsed is set when the second factor was a backup code.
	BackupCodeUsed       bool `json:"backup_code_used,omitempty"`
	BackupCodesRemaining int  `json:"backup_codes_remaining,omitempty"`
}

// MFASetup is returned by SetupMFA. BackupCodes are shown once; only their
// hashes are stored.
type MFASetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// MFAStatus describes an account's second-factor posture.
type MFAStatus struct {
	Enabled              bool       `json:"enabled"`
	Required             bool       `json:"required"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	GraceDeadline        *time.Time `json:"grace_deadline,omitempty"`
	WithinGrace          bool       `json:"within_grace"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID       string
	Email        string
	IsAdmin      bool
	MFAEnabled   bool
	Subscription SubscriptionStatus
	// SubscriptionEnd is zero when the account has no subscription.
	SubscriptionEnd time.Time
	SessionExpires  time.Time
}

// RegisterRequest carries registration input.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

// NotificationKind names an out-of-band message the engine asks a Notifier to send.
type NotificationKind string

const (
	NotifyVerification  NotificationKind = "verification"
	NotifyPasswordReset NotificationKind = "password_reset"
	NotifyMFAEnabled    NotificationKind = "mfa_enabled"
)

// Notifier delivers out-of-band messages. Delivery is best-effort: a false
// result is logged and the calling operation still succeeds.
type Notifier interface {
	Notify(ctx context.Context, kind NotificationKind, recipient string, payload map[string]string) bool
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, NotificationKind, string, map[string]string) bool {
	return true
}

// AccountStore persists accounts.
//
// Implementations must return ErrUserNotFound for unknown accounts,
// ErrAccountExists for duplicate emails and ErrPatchConflict when an update's
// precondition fails. Other errors are treated as backend failures.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, id string, patch UserPatch) error
	// List returns up to limit accounts ordered by creation time.
	List(ctx context.Context, limit int) ([]*User, error)
	// ConsumeBackupCode removes hash from the account's backup codes and reports
	// whether it was present. Concurrent calls for the same hash succeed at most once.
	ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error)
}

// AuditEvent is the structured event emitted to an AuditSink.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink writes events as structured zap log entries.
type ZapSink = internalaudit.ZapSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a counter in MetricsSnapshot.
type MetricID = internalmetrics.MetricID

// Metrics is the engine's counter set.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricLoginSuccess                 = internalmetrics.MetricLoginSuccess
	MetricLoginFailure                 = internalmetrics.MetricLoginFailure
	MetricLoginLocked                  = internalmetrics.MetricLoginLocked
	MetricLoginMFARequired             = internalmetrics.MetricLoginMFARequired
	MetricMFALoginSuccess              = internalmetrics.MetricMFALoginSuccess
	MetricMFALoginFailure              = internalmetrics.MetricMFALoginFailure
	MetricBackupCodeUsed               = internalmetrics.MetricBackupCodeUsed
	MetricMFASetupStarted              = internalmetrics.MetricMFASetupStarted
	MetricMFAEnabled                   = internalmetrics.MetricMFAEnabled
	MetricMFADisabled                  = internalmetrics.MetricMFADisabled
	MetricMFAVerifyFailure             = internalmetrics.MetricMFAVerifyFailure
	MetricSessionIssued                = internalmetrics.MetricSessionIssued
	MetricSessionInvalid               = internalmetrics.MetricSessionInvalid
	MetricSessionExpired               = internalmetrics.MetricSessionExpired
	MetricAuthzDeniedSubscription      = internalmetrics.MetricAuthzDeniedSubscription
	MetricAuthzDeniedAdmin             = internalmetrics.MetricAuthzDeniedAdmin
	MetricAuthzDeniedAdminMFA          = internalmetrics.MetricAuthzDeniedAdminMFA
	MetricRegistrationSuccess          = internalmetrics.MetricRegistrationSuccess
	MetricRegistrationDuplicate        = internalmetrics.MetricRegistrationDuplicate
	MetricPasswordChangeSuccess        = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidCurrent = internalmetrics.MetricPasswordChangeInvalidCurrent
	MetricPasswordResetRequest         = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess         = internalmetrics.MetricPasswordResetSuccess
	MetricPasswordResetFailure         = internalmetrics.MetricPasswordResetFailure
	MetricEmailVerificationRequest     = internalmetrics.MetricEmailVerificationRequest
	MetricEmailVerificationSuccess     = internalmetrics.MetricEmailVerificationSuccess
	MetricEmailVerificationFailure     = internalmetrics.MetricEmailVerificationFailure
	MetricSubscriptionRenewed          = internalmetrics.MetricSubscriptionRenewed
	MetricAdminToggled                 = internalmetrics.MetricAdminToggled
	MetricAdminGraceReset              = internalmetrics.MetricAdminGraceReset
	MetricPasswordRehashed             = internalmetrics.MetricPasswordRehashed
	MetricHashLatency                  = internalmetrics.MetricHashLatency
	MetricIDCount                      = internalmetrics.MetricIDCount
)

// NewMetrics returns a counter set configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
