package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindfulmate/mindful/pkg/observability"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MINDFUL_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("MINDFUL_KHALTI_SECRET_KEY", "test-secret")
	t.Setenv("MINDFUL_ENV_FILE", "")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "custom")
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_DURATION", "90s")

	assert.Equal(t, "custom", getEnv("TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("TEST_UNSET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "access_token", cfg.Auth.CookieName)
	assert.Equal(t, int64(25), cfg.Billing.UnitPrice)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.Equal(t, "http://localhost:8080/api/payments/khalti/return", cfg.ReturnURL())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	setRequired(t)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MINDFUL_UNIT_PRICE=40\nMINDFUL_LOG_LEVEL=debug\n"), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, int64(40), cfg.Billing.UnitPrice)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestLoadConfig_DotEnvDoesNotOverride(t *testing.T) {
	setRequired(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MINDFUL_UNIT_PRICE", "30")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MINDFUL_UNIT_PRICE=40\n"), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(30), cfg.Billing.UnitPrice)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		setRequired(t)
		t.Chdir(t.TempDir())
		cfg, err := LoadConfig()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "invalid database driver"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "JWT secret"},
		{"redis cache without url", func(c *Config) { c.Cache.Backend = "redis" }, "redis URL is required"},
		{"zero price", func(c *Config) { c.Billing.UnitPrice = 0 }, "unit price must be positive"},
		{"missing khalti key", func(c *Config) { c.Khalti.SecretKey = "" }, "khalti secret key"},
		{"redis rate limit without url", func(c *Config) { c.RateLimit.Backend = "redis" }, "redis rate limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}
