package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV":    "test",
		"APP_PORT":   "8080",
		"DB_USER":    "app",
		"DB_HOST":    "localhost",
		"DB_PORT":    "3306",
		"DB_NAME":    "identity",
		"JWT_SECRET": "s3cret",
	} {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.ResetTokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "http://localhost:3000", cfg.FrontendOrigin)
	assert.Equal(t, "usd", cfg.StripeCurrency)
	assert.False(t, cfg.CookieSecure)
	assert.True(t, cfg.MigrateOnStart)
	assert.False(t, cfg.Google.Configured())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "60")
	t.Setenv("FRONTEND_ORIGIN", "https://app.example.com/")
	t.Setenv("STRIPE_CURRENCY", "EUR")
	t.Setenv("GITHUB_CLIENT_ID", "id")
	t.Setenv("GITHUB_CLIENT_SECRET", "secret")
	t.Setenv("GITHUB_REDIRECT_URI", "https://api.example.com/v1/auth/github/callback")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, "https://app.example.com", cfg.FrontendOrigin)
	assert.Equal(t, "eur", cfg.StripeCurrency)
	assert.True(t, cfg.CookieSecure)
	assert.True(t, cfg.GitHub.Configured())
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_HOST", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DB_HOST")
}

func TestLoad_InvalidInt(t *testing.T) {
	setRequired(t)
	t.Setenv("BCRYPT_COST", "twelve")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BCRYPT_COST")
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
}
