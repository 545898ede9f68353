package mongostore

import (
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

const (
	fieldID                   = "id"
	fieldEmail                = "email"
	fieldName                 = "name"
	fieldPasswordHash         = "password_hash"
	fieldIsAdmin              = "is_admin"
	fieldEmailVerified        = "email_verified"
	fieldMFAEnabled           = "mfa_enabled"
	fieldMFASecret            = "mfa_secret"
	fieldMFASecretPending     = "mfa_secret_pending"
	fieldMFABackupCodes       = "mfa_backup_codes"
	fieldMFAGraceResetAt      = "mfa_grace_reset_at"
	fieldSubscriptionEndDate  = "subscription_end_date"
	fieldCreatedAt            = "created_at"
	fieldUpdatedAt            = "updated_at"
	fieldLastLoginAt          = "last_login_at"
	fieldVerificationToken    = "verification_token_hash"
	fieldVerificationTokenExp = "verification_token_expires_at"
	fieldResetToken           = "reset_token_hash"
	fieldResetTokenExp        = "reset_token_expires_at"
)

type userDoc struct {
	ID            string `bson:"id"`
	Email         string `bson:"email"`
	Name          string `bson:"name"`
	PasswordHash  string `bson:"password_hash"`
	IsAdmin       bool   `bson:"is_admin"`
	EmailVerified bool   `bson:"email_verified"`

	MFAEnabled       bool       `bson:"mfa_enabled"`
	MFASecret        string     `bson:"mfa_secret,omitempty"`
	MFASecretPending string     `bson:"mfa_secret_pending,omitempty"`
	MFABackupCodes   []string   `bson:"mfa_backup_codes,omitempty"`
	MFAGraceResetAt  *time.Time `bson:"mfa_grace_reset_at,omitempty"`

	SubscriptionEndDate *time.Time `bson:"subscription_end_date,omitempty"`

	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
	LastLoginAt *time.Time `bson:"last_login_at,omitempty"`

	VerificationTokenHash      string     `bson:"verification_token_hash,omitempty"`
	VerificationTokenExpiresAt *time.Time `bson:"verification_token_expires_at,omitempty"`
	ResetTokenHash             string     `bson:"reset_token_hash,omitempty"`
	ResetTokenExpiresAt        *time.Time `bson:"reset_token_expires_at,omitempty"`
}

func toDoc(u *goGuard.User) userDoc {
	return userDoc{
		ID:                         u.ID,
		Email:                      u.Email,
		Name:                       u.Name,
		PasswordHash:               u.PasswordHash,
		IsAdmin:                    u.IsAdmin,
		EmailVerified:              u.EmailVerified,
		MFAEnabled:                 u.MFAEnabled,
		MFASecret:                  u.MFASecret,
		MFASecretPending:           u.MFASecretPending,
		MFABackupCodes:             append([]string(nil), u.MFABackupCodes...),
		MFAGraceResetAt:            utcPtr(u.MFAGraceResetAt),
		SubscriptionEndDate:        utcPtr(u.SubscriptionEndDate),
		CreatedAt:                  u.CreatedAt.UTC(),
		UpdatedAt:                  u.UpdatedAt.UTC(),
		LastLoginAt:                utcPtr(u.LastLoginAt),
		VerificationTokenHash:      u.VerificationTokenHash,
		VerificationTokenExpiresAt: utcPtr(u.VerificationTokenExpiresAt),
		ResetTokenHash:             u.ResetTokenHash,
		ResetTokenExpiresAt:        utcPtr(u.ResetTokenExpiresAt),
	}
}

func (d userDoc) user() *goGuard.User {
	return &goGuard.User{
		ID:                         d.ID,
		Email:                      d.Email,
		Name:                       d.Name,
		PasswordHash:               d.PasswordHash,
		IsAdmin:                    d.IsAdmin,
		EmailVerified:              d.EmailVerified,
		MFAEnabled:                 d.MFAEnabled,
		MFASecret:                  d.MFASecret,
		MFASecretPending:           d.MFASecretPending,
		MFABackupCodes:             d.MFABackupCodes,
		MFAGraceResetAt:            utcPtr(d.MFAGraceResetAt),
		SubscriptionEndDate:        utcPtr(d.SubscriptionEndDate),
		CreatedAt:                  d.CreatedAt.UTC(),
		UpdatedAt:                  d.UpdatedAt.UTC(),
		LastLoginAt:                utcPtr(d.LastLoginAt),
		VerificationTokenHash:      d.VerificationTokenHash,
		VerificationTokenExpiresAt: utcPtr(d.VerificationTokenExpiresAt),
		ResetTokenHash:             d.ResetTokenHash,
		ResetTokenExpiresAt:        utcPtr(d.ResetTokenExpiresAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
