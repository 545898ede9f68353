package goGuard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListUsers_AdminOnly(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Account.DefaultListLimit = 2
		c.Account.MaxListLimit = 3
	})
	ctx := context.Background()
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"} {
		env.register(t, email)
		env.clock.Advance(time.Second)
	}
	env.registerAdmin(t, "root@example.com")

	_, err := env.engine.ListUsers(ctx, env.login(t, "a@example.com"), 10)
	assert.ErrorIs(t, err, ErrAdminRequired)

	token := env.login(t, "root@example.com")
	users, err := env.engine.ListUsers(ctx, token, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a@example.com", users[0].Email)

	users, err = env.engine.ListUsers(ctx, token, 100)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestAdminCritical_GraceWindow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	target := env.register(t, "user@example.com")
	env.registerAdmin(t, "root@example.com")

	token := env.login(t, "root@example.com")
	_, err := env.engine.ToggleAdminStatus(ctx, token, target.ID)
	require.NoError(t, err, "new admins may act without MFA inside the grace window")

	env.clock.Advance(7*day - time.Second)
	token = env.login(t, "root@example.com")
	_, err = env.engine.UpdateSubscription(ctx, token, target.ID, 1)
	require.NoError(t, err)

	env.clock.Advance(time.Second)
	token = env.login(t, "root@example.com")
	_, err = env.engine.UpdateSubscription(ctx, token, target.ID, 1)
	require.ErrorIs(t, err, ErrAdminMFARequired)
	assert.Equal(t, 403, StatusCode(err))

	// Non-critical admin operations still work.
	_, err = env.engine.ListUsers(ctx, token, 0)
	require.NoError(t, err)

	// So does MFA enrollment, which lifts the gate.
	env.enableMFA(t, token)
	_, err = env.engine.Login(ctx, "root@example.com", testPassword)
	require.ErrorIs(t, err, ErrMFARequired)
	_, err = env.engine.UpdateSubscription(ctx, token, target.ID, 1)
	require.NoError(t, err)
}

func TestResetAdminMFAGrace(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	old := env.registerAdmin(t, "old@example.com")
	env.clock.Advance(30 * day)
	env.registerAdmin(t, "new@example.com")

	oldToken := env.login(t, "old@example.com")
	_, err := env.engine.ResetAdminMFAGrace(ctx, oldToken, old.ID)
	require.ErrorIs(t, err, ErrAdminMFARequired)

	st, err := env.engine.ResetAdminMFAGrace(ctx, env.login(t, "new@example.com"), old.ID)
	require.NoError(t, err)
	assert.True(t, st.WithinGrace)
	require.NotNil(t, st.GraceDeadline)
	assert.Equal(t, env.clock.Now().Add(7*day), *st.GraceDeadline)

	_, err = env.engine.ResetAdminMFAGrace(ctx, oldToken, old.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), env.engine.MetricsSnapshot().Counters[MetricAdminGraceReset])
}

func TestUpdateSubscription_RenewalArithmetic(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerAdmin(t, "root@example.com")
	user := env.register(t, "user@example.com")
	token := env.login(t, "root@example.com")

	trialEnd := env.clock.Now().Add(14 * day)
	require.NotNil(t, user.SubscriptionEndDate)
	assert.Equal(t, trialEnd, *user.SubscriptionEndDate)

	// Running subscription: extend from its end.
	view, err := env.engine.UpdateSubscription(ctx, token, user.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, trialEnd.Add(60*day), *view.SubscriptionEndDate)
	assert.Equal(t, SubscriptionActive, view.SubscriptionStatus)

	for _, months := range []int{0, -1, 121} {
		_, err = env.engine.UpdateSubscription(ctx, token, user.ID, months)
		assert.ErrorIs(t, err, ErrInvalidSubscriptionMonths, "months=%d", months)
	}
	_, err = env.engine.UpdateSubscription(ctx, token, "missing-id", 1)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 404, StatusCode(err))
}

func TestUpdateSubscription_ExpiredRestartsFromNow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "user@example.com")
	env.clock.Advance(25 * day)
	env.registerAdmin(t, "root@example.com")

	view, err := env.engine.UpdateSubscription(ctx, env.login(t, "root@example.com"), user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(30*day), *view.SubscriptionEndDate)
}

func TestToggleAdminStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	admin := env.registerAdmin(t, "root@example.com")
	user := env.register(t, "user@example.com")
	token := env.login(t, "root@example.com")

	_, err := env.engine.ToggleAdminStatus(ctx, token, admin.ID)
	assert.ErrorIs(t, err, ErrSelfAdminToggle)

	view, err := env.engine.ToggleAdminStatus(ctx, token, user.ID)
	require.NoError(t, err)
	assert.True(t, view.IsAdmin)

	view, err = env.engine.ToggleAdminStatus(ctx, token, user.ID)
	require.NoError(t, err)
	assert.False(t, view.IsAdmin)

	_, err = env.engine.ToggleAdminStatus(ctx, env.login(t, "user@example.com"), admin.ID)
	assert.ErrorIs(t, err, ErrAdminRequired)
}

func TestAuthorize_WriteGateFollowsSubscription(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, "user@example.com")

	check := func(op OperationClass) error {
		_, err := env.engine.Authorize(ctx, env.login(t, "user@example.com"), op)
		return err
	}

	require.NoError(t, check(OpWrite))

	// Trial over, 7 whole days of grace.
	env.clock.Advance(14*day + 7*day + 23*time.Hour)
	require.NoError(t, check(OpWrite))

	env.clock.Advance(time.Hour)
	err := check(OpWrite)
	var subErr *SubscriptionExpiredError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, 403, StatusCode(err))
	assert.Contains(t, PublicMessage(err), "subscription expired on")
	assert.NoError(t, check(OpRead))

	assert.Equal(t, uint64(1), env.engine.MetricsSnapshot().Counters[MetricAuthzDeniedSubscription])
}

// lockstepStore holds the first two reads of one record until both have
// happened, so two writers start from the same snapshot.
type lockstepStore struct {
	AccountStore
	id      string
	mu      sync.Mutex
	reads   int
	release chan struct{}
}

func newLockstepStore(inner AccountStore, id string) *lockstepStore {
	return &lockstepStore{AccountStore: inner, id: id, release: make(chan struct{})}
}

func (s *lockstepStore) FindByID(ctx context.Context, id string) (*User, error) {
	u, err := s.AccountStore.FindByID(ctx, id)
	if id != s.id {
		return u, err
	}
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()
	switch {
	case n == 2:
		close(s.release)
	case n < 2:
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return u, err
}

func TestUpdateSubscription_ConcurrentRenewalsBothCount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerAdmin(t, "root@example.com")
	user := env.register(t, "user@example.com")
	token := env.login(t, "root@example.com")
	env.engine.store = newLockstepStore(env.store, user.ID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.engine.UpdateSubscription(ctx, token, user.ID, 1)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, err := env.store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.SubscriptionEndDate.Add(60*day), *stored.SubscriptionEndDate)
}

func TestToggleAdminStatus_ConcurrentTogglesBothApply(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerAdmin(t, "root@example.com")
	user := env.register(t, "user@example.com")
	token := env.login(t, "root@example.com")
	env.engine.store = newLockstepStore(env.store, user.ID)

	var wg sync.WaitGroup
	views := make([]*UserView, 2)
	errs := make([]error, 2)
	for i := range views {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			views[i], errs[i] = env.engine.ToggleAdminStatus(ctx, token, user.ID)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, views[0].IsAdmin, views[1].IsAdmin, "second toggle must see the first")

	stored, err := env.store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsAdmin)
}

func TestUpdateSubscription_StaleEndDateConflicts(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := env.register(t, "user@example.com")
	stale := user.SubscriptionEndDate.Add(-day)

	err := env.store.Update(ctx, user.ID, UserPatch{
		SubscriptionEndDate: Set(stale.Add(30 * day)),
		Precondition:        Precondition{SubscriptionEndDate: Set(stale)},
	})
	assert.ErrorIs(t, err, ErrPatchConflict)

	err = env.store.Update(ctx, user.ID, UserPatch{
		SubscriptionEndDate: Set(stale),
		Precondition:        Precondition{SubscriptionEndDate: Unset[time.Time]()},
	})
	assert.ErrorIs(t, err, ErrPatchConflict, "end date is present")
}
