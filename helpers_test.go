package goGuard

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testPassword = "Corr3ct!Horse"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentNotification struct {
	Kind      NotificationKind
	Recipient string
	Payload   map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, kind NotificationKind, recipient string, payload map[string]string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Kind: kind, Recipient: recipient, Payload: payload})
	return true
}

// last returns the most recent notification of kind, or nil.
func (n *recordingNotifier) last(kind NotificationKind) *sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			s := n.sent[i]
			return &s
		}
	}
	return nil
}

func (n *recordingNotifier) count(kind NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}

// testConfig uses cheap argon2id parameters so tests do not pay bcrypt cost 12.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.PrivateKey = bytes.Repeat([]byte("k"), 32)
	cfg.Password.Algorithm = "argon2id"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine   *Engine
	store    *MemoryStore
	clock    *testClock
	notifier *recordingNotifier
}

func newTestEnv(t testing.TB, mutate func(*Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := newTestClock()
	store := NewMemoryStore().WithClock(clock.Now)
	notifier := &recordingNotifier{}

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithNotifier(notifier).
		WithClock(clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, clock: clock, notifier: notifier}
}

func (env *testEnv) register(t testing.TB, email string) *UserView {
	t.Helper()
	view, err := env.engine.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: testPassword,
		Name:     "Test User",
	})
	require.NoError(t, err)
	return view
}

func (env *testEnv) registerAdmin(t testing.TB, email string) *UserView {
	t.Helper()
	view := env.register(t, email)
	require.NoError(t, env.store.Update(context.Background(), view.ID, UserPatch{IsAdmin: Set(true)}))
	view.IsAdmin = true
	return view
}

func (env *testEnv) login(t testing.TB, email string) string {
	t.Helper()
	res, err := env.engine.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	return res.Token
}

// enableMFA runs setup and confirm for the token's account and returns the
// enrollment.
func (env *testEnv) enableMFA(t testing.TB, token string) *MFASetup {
	t.Helper()
	ctx := context.Background()
	setup, err := env.engine.SetupMFA(ctx, token)
	require.NoError(t, err)
	code, err := env.engine.mfa.GenerateCode(setup.Secret, env.clock.Now())
	require.NoError(t, err)
	require.NoError(t, env.engine.ConfirmMFA(ctx, token, code))
	return setup
}

func (env *testEnv) totp(t testing.TB, secret string) string {
	t.Helper()
	code, err := env.engine.mfa.GenerateCode(secret, env.clock.Now())
	require.NoError(t, err)
	return code
}
