package config

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-access-secret-access-secret"
	testRefreshSecret = "refresh-secret-refresh-secret-refresh-secret"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Database.Name = "devicesession"
	cfg.Tokens.AccessSecret = testAccessSecret
	cfg.Tokens.RefreshSecret = testRefreshSecret
	return cfg
}

func TestDefault_RequiresSecrets(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokens.access_secret")
	assert.Contains(t, err.Error(), "tokens.refresh_secret")
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15*time.Minute, cfg.AccessTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTTL())
	assert.Equal(t, 30*time.Minute, cfg.LockoutDuration())
	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestValidate_CollectsEveryError(t *testing.T) {
	cfg := validConfig()
	cfg.Tokens.RefreshSecret = cfg.Tokens.AccessSecret
	cfg.Lockout.Threshold = 0
	cfg.RateLimit.Backend = "redis"
	cfg.RateLimit.Login.Limit = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "must differ")
	assert.Contains(t, msg, "lockout.threshold")
	assert.Contains(t, msg, `ratelimit.backend "redis"`)
	assert.Contains(t, msg, "ratelimit.login")
}

func TestValidate_AccessMustBeShorterThanRefresh(t *testing.T) {
	cfg := validConfig()
	cfg.Tokens.RefreshTTLDays = 1
	cfg.Tokens.AccessTTLMinutes = 24 * 60

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shorter than the refresh token lifetime")
}

func TestValidate_PostgresRateLimitNeedsPostgresDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = DriverMemory
	cfg.RateLimit.Backend = DriverPostgres

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires database.driver postgres")
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := strings.Join([]string{
		"database:",
		"  name: fromfile",
		"tokens:",
		"  access_secret: " + testAccessSecret,
		"  refresh_secret: " + testRefreshSecret,
		"  refresh_ttl_days: 7",
		"lockout:",
		"  threshold: 3",
		"ratelimit:",
		"  login:",
		"    limit: 4",
		"    window_seconds: 30",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))

	t.Setenv("DEVSESSION_LOCKOUT_DURATION_MINUTES", "10")
	t.Setenv("POSTGRES_DB", "fromenv")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fromenv", cfg.Database.Name)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL())
	assert.Equal(t, 3, cfg.Lockout.Threshold)
	assert.Equal(t, 10*time.Minute, cfg.LockoutDuration())
	assert.Equal(t, 4, cfg.RateLimit.Login.Limit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Login.Window())
	assert.Equal(t, 60, cfg.RateLimit.Refresh.Limit)
}

func TestLoad_RejectsMalformedEnv(t *testing.T) {
	t.Setenv("DEVSESSION_TOKENS_ACCESS_SECRET", testAccessSecret)
	t.Setenv("DEVSESSION_TOKENS_REFRESH_SECRET", testRefreshSecret)
	t.Setenv("DEVSESSION_DATABASE_NAME", "devicesession")
	t.Setenv("DEVSESSION_LOCKOUT_THRESHOLD", "five")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVSESSION_LOCKOUT_THRESHOLD must be an integer")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestCookieSameSiteMode(t *testing.T) {
	assert.Equal(t, http.SameSiteStrictMode, CookieConfig{SameSite: "Strict"}.SameSiteMode())
	assert.Equal(t, http.SameSiteNoneMode, CookieConfig{SameSite: "none"}.SameSiteMode())
	assert.Equal(t, http.SameSiteLaxMode, CookieConfig{}.SameSiteMode())
}

func TestConnString(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: "5432", Name: "auth"}
	assert.Equal(t, "postgres://u:p@db:5432/auth?sslmode=disable", d.ConnString())
}
