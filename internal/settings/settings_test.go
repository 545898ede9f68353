package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goGuard "github.com/MrEthical07/goGuard"
)

func TestLoadDefaultsMatchEngine(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	cfg := s.EngineConfig()
	def := goGuard.DefaultConfig()

	assert.Equal(t, def.Session.TTL, cfg.Session.TTL)
	assert.Equal(t, def.Lockout, cfg.Lockout)
	assert.Equal(t, def.MFA, cfg.MFA)
	assert.Equal(t, def.Subscription, cfg.Subscription)
	assert.Equal(t, def.Admin, cfg.Admin)
	assert.Equal(t, def.Password, cfg.Password)
	assert.Equal(t, ":8080", s.Server.Addr)
	assert.Equal(t, "users", s.Mongo.Collection)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goguard.toml")
	body := `
[server]
addr = ":9090"

[session]
ttl = "12h"
secret = "0123456789abcdef0123456789abcdef"

[lockout]
max_attempts = 3
duration = "30m"

[mfa]
issuer = "Acme"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("GOGUARD_LOCKOUT_MAX_ATTEMPTS", "7")
	t.Setenv("GOGUARD_REDIS_ADDR", "127.0.0.1:6379")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", s.Server.Addr)
	assert.Equal(t, "127.0.0.1:6379", s.Redis.Addr)

	cfg := s.EngineConfig()
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 7, cfg.Lockout.MaxAttempts, "env overrides file")
	assert.Equal(t, 30*time.Minute, cfg.Lockout.Duration)
	assert.Equal(t, "Acme", cfg.MFA.Issuer)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
