package goGuard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goGuard/password"
)

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr error
		rule    password.Rule
	}{
		{"bad email", RegisterRequest{Email: "not-an-email", Password: testPassword, Name: "x"}, ErrInvalidEmail, password.RuleNone},
		{"missing tld", RegisterRequest{Email: "a@b", Password: testPassword, Name: "x"}, ErrInvalidEmail, password.RuleNone},
		{"blank name", RegisterRequest{Email: "a@example.com", Password: testPassword, Name: " \t "}, ErrInvalidInput, password.RuleNone},
		{"short password", RegisterRequest{Email: "a@example.com", Password: "Ab1!", Name: "x"}, ErrPasswordPolicy, password.RuleLength},
		{"no digit", RegisterRequest{Email: "a@example.com", Password: "Abcdefgh!", Name: "x"}, ErrPasswordPolicy, password.RuleDigit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Register(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 400, StatusCode(err))
			if tt.wantErr == ErrPasswordPolicy {
				var pe *PasswordPolicyError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.rule, pe.Rule)
				assert.Equal(t, pe.Message, PublicMessage(err))
			}
		})
	}
	assert.Zero(t, env.store.Len())
}

func TestRegister_DuplicateIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "dup@example.com")

	_, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:    "DUP@Example.com",
		Password: testPassword,
		Name:     "Other",
	})
	assert.ErrorIs(t, err, ErrAccountExists)
	assert.Equal(t, uint64(1), env.engine.MetricsSnapshot().Counters[MetricRegistrationDuplicate])
}

func TestRegister_SanitizesAndStartsTrial(t *testing.T) {
	env := newTestEnv(t, nil)
	view, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:    "name@example.com",
		Password: testPassword,
		Name:     "  Ada \n\t  Lovelace\x07 " + strings.Repeat("x", 200),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(view.Name, "Ada Lovelace "))
	assert.Equal(t, 100, len([]rune(view.Name)))
	assert.Equal(t, SubscriptionActive, view.SubscriptionStatus)
	assert.Equal(t, env.clock.Now().Add(14*day), *view.SubscriptionEndDate)
	assert.False(t, view.IsAdmin)

	stored, err := env.store.FindByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "pat@example.com")
	token := env.login(t, "pat@example.com")
	ctx := context.Background()

	err := env.engine.ChangePassword(ctx, token, "Wr0ng!Password", "N3w!Password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = env.engine.ChangePassword(ctx, token, testPassword, "weak")
	assert.ErrorIs(t, err, ErrPasswordPolicy)

	err = env.engine.ChangePassword(ctx, token, testPassword, testPassword)
	assert.ErrorIs(t, err, ErrPasswordReuse)

	require.NoError(t, env.engine.ChangePassword(ctx, token, testPassword, "N3w!Password"))

	_, err = env.engine.Login(ctx, "pat@example.com", testPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.engine.Login(ctx, "pat@example.com", "N3w!Password")
	assert.NoError(t, err)
}

func TestChangePassword_BusyHashPool(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Hashing.Workers = 1
		c.Hashing.QueueTimeout = 10 * time.Millisecond
	})
	env.register(t, "pat@example.com")
	token := env.login(t, "pat@example.com")

	holdHashWorker(t, env.engine)
	err := env.engine.ChangePassword(context.Background(), token, testPassword, "N3w!Password")
	assert.ErrorIs(t, err, ErrHashUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}
