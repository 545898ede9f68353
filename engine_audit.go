package goGuard

import (
	"context"
	"errors"
)

const (
	auditEventRegistrationSuccess      = "registration_success"
	auditEventRegistrationDuplicate    = "registration_duplicate"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginLocked              = "login_locked"
	auditEventMFARequired              = "mfa_required"
	auditEventMFAFailure               = "mfa_failure"
	auditEventBackupCodeUsed           = "backup_code_used"
	auditEventPasswordChangeSuccess    = "password_change_success"
	auditEventPasswordChangeInvalidOld = "password_change_invalid_current"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventMFASetupRequested        = "mfa_setup_requested"
	auditEventMFAEnabled               = "mfa_enabled"
	auditEventMFADisabled              = "mfa_disabled"
	auditEventAuthorizationDenied      = "authorization_denied"
	auditEventSubscriptionRenewed      = "subscription_renewed"
	auditEventAdminStatusChanged       = "admin_status_changed"
	auditEventAdminGraceReset          = "admin_mfa_grace_reset"
	auditEventUsersListed              = "users_listed"
)

// AuditErrorCode is the stable error label written on failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrMFARequired        AuditErrorCode = "mfa_required"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrInvalidSession     AuditErrorCode = "invalid_session"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrSubscription       AuditErrorCode = "subscription_expired"
	auditErrAdminRequired      AuditErrorCode = "admin_required"
	auditErrAdminMFARequired   AuditErrorCode = "admin_mfa_required"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit queues one event. userID is the account the event is about and
// actorID the caller, when they differ.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	actorID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if actorID != "" && actorID != userID {
		event.ActorID = actorID
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFAInvalid):
		return auditErrMFAInvalid
	case errors.Is(err, ErrSessionInvalid),
		errors.Is(err, ErrSessionExpired):
		return auditErrInvalidSession
	case errors.Is(err, ErrResetTokenInvalid),
		errors.Is(err, ErrVerificationTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrSubscriptionExpired):
		return auditErrSubscription
	case errors.Is(err, ErrAdminRequired),
		errors.Is(err, ErrMFAAdminOnly):
		return auditErrAdminRequired
	case errors.Is(err, ErrAdminMFARequired):
		return auditErrAdminMFARequired
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrLockoutUnavailable):
		return auditErrUnavailable
	case ClassOf(err) == ClassValidation:
		return auditErrValidation
	default:
		return auditErrInternal
	}
}
