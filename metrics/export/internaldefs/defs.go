package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Successful logins."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Logins rejected for unknown account or wrong password."},
	{ID: goGuard.MetricLoginLocked, Name: "goguard_login_locked_total", Help: "Logins rejected because the identifier was locked out."},
	{ID: goGuard.MetricLoginMFARequired, Name: "goguard_login_mfa_required_total", Help: "Logins that stopped to ask for a second factor."},
	{ID: goGuard.MetricMFALoginSuccess, Name: "goguard_mfa_login_success_total", Help: "Logins completed with a TOTP or backup code."},
	{ID: goGuard.MetricMFALoginFailure, Name: "goguard_mfa_login_failure_total", Help: "Logins rejected for a wrong second factor."},
	{ID: goGuard.MetricBackupCodeUsed, Name: "goguard_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: goGuard.MetricMFASetupStarted, Name: "goguard_mfa_setup_started_total", Help: "MFA enrollments started."},
	{ID: goGuard.MetricMFAEnabled, Name: "goguard_mfa_enabled_total", Help: "MFA enrollments confirmed."},
	{ID: goGuard.MetricMFADisabled, Name: "goguard_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: goGuard.MetricMFAVerifyFailure, Name: "goguard_mfa_verify_failure_total", Help: "Wrong codes on MFA confirm or disable."},
	{ID: goGuard.MetricSessionIssued, Name: "goguard_session_issued_total", Help: "Session tokens issued."},
	{ID: goGuard.MetricSessionInvalid, Name: "goguard_session_invalid_total", Help: "Session tokens rejected as invalid."},
	{ID: goGuard.MetricSessionExpired, Name: "goguard_session_expired_total", Help: "Session tokens rejected as expired."},
	{ID: goGuard.MetricAuthzDeniedSubscription, Name: "goguard_authz_denied_subscription_total", Help: "Writes denied for an expired subscription."},
	{ID: goGuard.MetricAuthzDeniedAdmin, Name: "goguard_authz_denied_admin_total", Help: "Admin operations denied to non-admins."},
	{ID: goGuard.MetricAuthzDeniedAdminMFA, Name: "goguard_authz_denied_admin_mfa_total", Help: "Admin-critical operations denied for missing MFA."},
	{ID: goGuard.MetricRegistrationSuccess, Name: "goguard_registration_success_total", Help: "Accounts registered."},
	{ID: goGuard.MetricRegistrationDuplicate, Name: "goguard_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goGuard.MetricPasswordChangeSuccess, Name: "goguard_password_change_success_total", Help: "Passwords changed."},
	{ID: goGuard.MetricPasswordChangeInvalidCurrent, Name: "goguard_password_change_invalid_current_total", Help: "Password changes with a wrong current password."},
	{ID: goGuard.MetricPasswordResetRequest, Name: "goguard_password_reset_request_total", Help: "Password reset requests."},
	{ID: goGuard.MetricPasswordResetSuccess, Name: "goguard_password_reset_success_total", Help: "Passwords reset with a valid token."},
	{ID: goGuard.MetricPasswordResetFailure, Name: "goguard_password_reset_failure_total", Help: "Password resets with an invalid token."},
	{ID: goGuard.MetricEmailVerificationRequest, Name: "goguard_email_verification_request_total", Help: "Verification tokens issued on request."},
	{ID: goGuard.MetricEmailVerificationSuccess, Name: "goguard_email_verification_success_total", Help: "Emails verified."},
	{ID: goGuard.MetricEmailVerificationFailure, Name: "goguard_email_verification_failure_total", Help: "Verifications with an invalid token."},
	{ID: goGuard.MetricSubscriptionRenewed, Name: "goguard_subscription_renewed_total", Help: "Subscription renewals."},
	{ID: goGuard.MetricAdminToggled, Name: "goguard_admin_toggled_total", Help: "Admin flag changes."},
	{ID: goGuard.MetricAdminGraceReset, Name: "goguard_admin_grace_reset_total", Help: "Admin MFA grace windows restarted."},
	{ID: goGuard.MetricPasswordRehashed, Name: "goguard_password_rehashed_total", Help: "Credential hashes upgraded on login."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricHashLatency, Name: "goguard_hash_latency_seconds", Help: "Password hash and verify latency, including pool wait."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "goguard_audit_dropped_total"

// BucketCount is the number of histogram buckets, +Inf included.
const BucketCount = 8

// HistogramBounds are the upper bounds in seconds, in Prometheus "le" form.
var HistogramBounds = [BucketCount]string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as instrument-name suffixes.
var HistogramBoundSuffix = [BucketCount]string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// CumulativeBuckets converts per-bucket counts into cumulative counts. Missing
// trailing buckets count as zero.
func CumulativeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
