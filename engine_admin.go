package goGuard

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ListUsers returns up to limit accounts ordered by creation. A limit of zero
// or less uses Account.DefaultListLimit; larger values are capped at
// Account.MaxListLimit. Admin only.
func (e *Engine) ListUsers(ctx context.Context, token string, limit int) ([]UserView, error) {
	caller, err := e.authorize(ctx, token, OpAdmin)
	if err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = e.config.Account.DefaultListLimit
	case limit > e.config.Account.MaxListLimit:
		limit = e.config.Account.MaxListLimit
	}

	users, err := e.store.List(ctx, limit)
	if err != nil {
		return nil, e.storeFailure("list users", err)
	}

	out := make([]UserView, 0, len(users))
	for _, u := range users {
		out = append(out, e.view(u))
	}

	e.emitAudit(ctx, auditEventUsersListed, true, caller.ID, caller.ID, nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(out))}
	})
	return out, nil
}

// UpdateSubscription extends userID's subscription by months. A subscription
// that is still running is extended from its end date; otherwise the new
// period starts now. Admin-critical.
func (e *Engine) UpdateSubscription(ctx context.Context, token, userID string, months int) (*UserView, error) {
	caller, err := e.authorize(ctx, token, OpAdminCritical)
	if err != nil {
		return nil, err
	}
	if months < 1 || months > e.config.Subscription.MaxRenewalMonths {
		return nil, ErrInvalidSubscriptionMonths
	}

	var end time.Time
	target, err := e.updateTarget(ctx, userID, "subscription update", func(u *User) UserPatch {
		end = RenewalEnd(u.SubscriptionEndDate, months, e.config.Subscription.MonthLength, e.now().UTC())
		return UserPatch{
			SubscriptionEndDate: Set(end),
			Precondition:        Precondition{SubscriptionEndDate: expectEndDate(u.SubscriptionEndDate)},
		}
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSubscriptionRenewed)
	e.logger.Info("subscription renewed",
		zap.String("user_id", target.ID),
		zap.String("actor_id", caller.ID),
		zap.Int("months", months),
		zap.Time("ends_at", end),
	)
	e.emitAudit(ctx, auditEventSubscriptionRenewed, true, target.ID, caller.ID, nil, func() map[string]string {
		return map[string]string{
			"months":  strconv.Itoa(months),
			"ends_at": end.Format("2006-01-02T15:04:05Z07:00"),
		}
	})

	view := e.view(target)
	return &view, nil
}

// ToggleAdminStatus flips userID's admin flag. Admins cannot toggle
// themselves. Admin-critical.
func (e *Engine) ToggleAdminStatus(ctx context.Context, token, userID string) (*UserView, error) {
	caller, err := e.authorize(ctx, token, OpAdminCritical)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == caller.ID {
		return nil, ErrSelfAdminToggle
	}

	var isAdmin bool
	target, err := e.updateTarget(ctx, userID, "admin toggle", func(u *User) UserPatch {
		was := u.IsAdmin
		isAdmin = !was
		return UserPatch{IsAdmin: Set(isAdmin), Precondition: Precondition{IsAdmin: &was}}
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricAdminToggled)
	e.logger.Info("admin status changed",
		zap.String("user_id", target.ID),
		zap.String("actor_id", caller.ID),
		zap.Bool("is_admin", isAdmin),
	)
	e.emitAudit(ctx, auditEventAdminStatusChanged, true, target.ID, caller.ID, nil, func() map[string]string {
		return map[string]string{"is_admin": strconv.FormatBool(isAdmin)}
	})

	view := e.view(target)
	return &view, nil
}

// ResetAdminMFAGrace restarts userID's admin MFA grace window at now and
// returns the resulting MFA status. Admin-critical.
func (e *Engine) ResetAdminMFAGrace(ctx context.Context, token, userID string) (*MFAStatus, error) {
	caller, err := e.authorize(ctx, token, OpAdminCritical)
	if err != nil {
		return nil, err
	}

	target, err := e.adminTarget(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	if err := e.store.Update(ctx, target.ID, UserPatch{MFAGraceResetAt: Set(now)}); err != nil {
		return nil, e.storeFailure("admin grace reset", err)
	}
	target.MFAGraceResetAt = &now

	e.metricInc(MetricAdminGraceReset)
	e.logger.Info("admin mfa grace reset", zap.String("user_id", target.ID), zap.String("actor_id", caller.ID))
	e.emitAudit(ctx, auditEventAdminGraceReset, true, target.ID, caller.ID, nil, nil)

	return e.mfaStatus(target, now), nil
}

// adminUpdateAttempts bounds how often updateTarget re-reads a record that
// changed underneath it.
const adminUpdateAttempts = 5

// updateTarget loads userID, builds a conditional patch from what it read and
// writes it. A precondition conflict means another writer got in between, so
// the record is read again and the patch rebuilt. The returned user has the
// patch applied.
func (e *Engine) updateTarget(ctx context.Context, userID, op string, build func(*User) UserPatch) (*User, error) {
	for attempt := 1; ; attempt++ {
		target, err := e.adminTarget(ctx, userID)
		if err != nil {
			return nil, err
		}
		patch := build(target)
		err = e.store.Update(ctx, target.ID, patch)
		switch {
		case err == nil:
			patch.Apply(target, e.now().UTC())
			return target, nil
		case errors.Is(err, ErrUserNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, ErrPatchConflict):
			if attempt < adminUpdateAttempts {
				continue
			}
			e.logger.Warn("admin update kept conflicting",
				zap.String("op", op),
				zap.String("user_id", target.ID),
				zap.Int("attempts", attempt),
			)
			return nil, ErrPatchConflict
		default:
			return nil, e.storeFailure(op, err)
		}
	}
}

func (e *Engine) adminTarget(ctx context.Context, userID string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, e.storeFailure("admin target lookup", err)
	}
	return user, nil
}
