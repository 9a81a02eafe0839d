package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-clinic-auth/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaultsWithSecret(t *testing.T) {
	cfg, err := config.LoadFrom("", envMap(map[string]string{"JWT_SECRET": testSecret}))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.GetAccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.GetRefreshTokenTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.GetRememberMeTokenTTL())
	assert.Equal(t, 12, cfg.GetPasswordHashCost())
	assert.Equal(t, 2*time.Second, cfg.Database.ConnectTimeout.Duration)
	assert.Equal(t, "accessToken", cfg.GetAccessCookieName())
	assert.Equal(t, "refreshToken", cfg.GetRefreshCookieName())
	assert.False(t, cfg.GetSecureCookies())
}

func TestLoadRejectsShortSecret(t *testing.T) {
	_, err := config.LoadFrom("", envMap(map[string]string{"JWT_SECRET": "too-short"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SigningKey")

	_, err = config.LoadFrom("", envMap(nil))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := config.LoadFrom("", envMap(map[string]string{
		"JWT_SECRET":             testSecret,
		"JWT_EXPIRES_IN":         "30m",
		"JWT_REFRESH_EXPIRES_IN": "14d",
		"JWT_AUDIENCE":           "web, mobile",
		"BCRYPT_ROUNDS":          "10",
		"APP_ENV":                "production",
		"DB_DRIVER":              "postgres",
		"DB_HOST":                "db",
		"DB_USER":                "clinic",
		"DB_PASSWORD":            "secret",
		"DB_NAME":                "clinic",
	}))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.GetAccessTokenTTL())
	assert.Equal(t, 14*24*time.Hour, cfg.GetRefreshTokenTTL())
	assert.Equal(t, []string{"web", "mobile"}, cfg.GetAudience())
	assert.Equal(t, 10, cfg.GetPasswordHashCost())
	assert.True(t, cfg.GetSecureCookies())
	assert.Equal(t, "postgres://clinic:secret@db:5432/clinic?connect_timeout=2&sslmode=disable", cfg.Database.ConnectionString())
}

func TestEnvOverridesRejectBadValues(t *testing.T) {
	_, err := config.LoadFrom("", envMap(map[string]string{
		"JWT_SECRET":    testSecret,
		"BCRYPT_ROUNDS": "twelve",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BCRYPT_ROUNDS")

	_, err = config.LoadFrom("", envMap(map[string]string{
		"JWT_SECRET":    testSecret,
		"BCRYPT_ROUNDS": "40",
	}))
	require.Error(t, err)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
env = "test"
port = 9090

[auth]
signing_key = "`+testSecret+`"
issuer = "clinic"
access_token_ttl = "5m"
remember_me_token_ttl = "60d"

[database]
driver = "sqlite"
dsn = "file::memory:"
`), 0o600))

	cfg, err := config.LoadFrom(path, envMap(map[string]string{"PORT": "7070"}))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "clinic", cfg.GetIssuer())
	assert.Equal(t, 5*time.Minute, cfg.GetAccessTokenTTL())
	assert.Equal(t, 60*24*time.Hour, cfg.GetRememberMeTokenTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.GetRefreshTokenTTL())
	assert.Equal(t, "file::memory:", cfg.Database.ConnectionString())
}
