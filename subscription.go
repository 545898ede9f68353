package goGuard

import "time"

const day = 24 * time.Hour

// Policy holds the time windows used by the authorization gate.
type Policy struct {
	// SubscriptionGrace is the write window after a subscription ends. It is
	// counted in whole elapsed days.
	SubscriptionGrace time.Duration
	// AdminMFAGrace is how long after its anchor an admin may run
	// admin-critical operations without MFA.
	AdminMFAGrace time.Duration
}

// DefaultPolicy returns the 7-day subscription and admin grace windows.
func DefaultPolicy() Policy {
	return Policy{SubscriptionGrace: 7 * day, AdminMFAGrace: 7 * day}
}

func policyFromConfig(cfg Config) Policy {
	return Policy{
		SubscriptionGrace: cfg.Subscription.GracePeriod,
		AdminMFAGrace:     cfg.Admin.MFAGracePeriod,
	}
}

// SubscriptionStatus derives u's entitlement at now. Admins are always active;
// an account without an end date is expired.
func (p Policy) SubscriptionStatus(u *User, now time.Time) SubscriptionStatus {
	if u == nil {
		return SubscriptionExpired
	}
	if u.IsAdmin {
		return SubscriptionActive
	}
	if u.SubscriptionEndDate == nil {
		return SubscriptionExpired
	}
	end := *u.SubscriptionEndDate
	if end.After(now) {
		return SubscriptionActive
	}
	if wholeDays(now.Sub(end)) <= wholeDays(p.SubscriptionGrace) {
		return SubscriptionGracePeriod
	}
	return SubscriptionExpired
}

func wholeDays(d time.Duration) int64 {
	return int64(d / day)
}

// AdminGraceAnchor returns the instant the admin MFA grace window starts.
func AdminGraceAnchor(u *User) time.Time {
	if u.MFAGraceResetAt != nil {
		return *u.MFAGraceResetAt
	}
	return u.CreatedAt
}

// AdminGraceDeadline returns when u's admin MFA grace window closes.
func (p Policy) AdminGraceDeadline(u *User) time.Time {
	return AdminGraceAnchor(u).Add(p.AdminMFAGrace)
}

// WithinAdminGrace reports whether now falls inside u's admin MFA grace window.
func (p Policy) WithinAdminGrace(u *User, now time.Time) bool {
	return now.Before(p.AdminGraceDeadline(u))
}

// Check decides whether u may perform an operation of class op at now.
//
// Check returns nil when allowed, *SubscriptionExpiredError for writes on an
// expired subscription, ErrAdminRequired for non-admins on admin classes and
// ErrAdminMFARequired when an admin-critical call comes from an admin without
// MFA whose grace window has closed.
func (p Policy) Check(u *User, op OperationClass, now time.Time) error {
	if u == nil {
		return ErrSessionInvalid
	}
	switch op {
	case OpRead:
		return nil
	case OpWrite:
		if p.SubscriptionStatus(u, now).AllowsWrite() {
			return nil
		}
		var end time.Time
		if u.SubscriptionEndDate != nil {
			end = *u.SubscriptionEndDate
		}
		return &SubscriptionExpiredError{ExpiredAt: end}
	case OpAdmin:
		if !u.IsAdmin {
			return ErrAdminRequired
		}
		return nil
	case OpAdminCritical:
		if !u.IsAdmin {
			return ErrAdminRequired
		}
		if u.MFAEnabled || p.WithinAdminGrace(u, now) {
			return nil
		}
		return ErrAdminMFARequired
	default:
		return ErrInvalidInput
	}
}

// RenewalEnd returns the new end date for a renewal of months at now. A still
// running subscription is extended from its end; otherwise the new period
// starts at now.
func RenewalEnd(current *time.Time, months int, monthLength time.Duration, now time.Time) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(months) * monthLength)
}
