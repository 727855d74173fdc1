package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load("")

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "ledger:notifications", cfg.Redis.NotificationQueue)
	assert.Equal(t, 10, cfg.Ledger.IDMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Ledger.LockTimeout)
	assert.Equal(t, 3*time.Second, cfg.Ledger.NotifyTimeout)
	assert.True(t, cfg.Ledger.AllowNegativeBalance)
	assert.Empty(t, cfg.Ledger.SeedUsers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_PATH", "/tmp/ledger-test.db")
	t.Setenv("LEDGER_ALLOW_NEGATIVE_BALANCE", "false")
	t.Setenv("LEDGER_LOCK_TIMEOUT", "750ms")
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("LEDGER_SEED_USERS", "a, b:ops@example.com ,")

	cfg := Load("")

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/ledger-test.db", cfg.Database.Path)
	assert.False(t, cfg.Ledger.AllowNegativeBalance)
	assert.Equal(t, 750*time.Millisecond, cfg.Ledger.LockTimeout)
	assert.Equal(t, "s3cret", cfg.JWT.SecretKey)
	assert.Equal(t, []string{"a", "b:ops@example.com"}, cfg.Ledger.SeedUsers)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("REDIS_DB=3\nLEDGER_ID_MAX_ATTEMPTS=4\n"), 0o600))

	cfg := Load(path)

	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 4, cfg.Ledger.IDMaxAttempts)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Equal(t, "8080", cfg.Server.Port)
}
