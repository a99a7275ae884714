// Package config loads service configuration from an optional YAML file,
// an optional .env file and DEVSESSION_* environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	minSecretLength = 32

	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Lockout   LockoutConfig   `yaml:"lockout"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Cookie    CookieConfig    `yaml:"cookie"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// ServerConfig timeouts are in seconds.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeout    int    `yaml:"read_timeout"`
	WriteTimeout   int    `yaml:"write_timeout"`
	IdleTimeout    int    `yaml:"idle_timeout"`
	RequestTimeout int    `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type TokensConfig struct {
	AccessSecret       string `yaml:"access_secret"`
	RefreshSecret      string `yaml:"refresh_secret"`
	AccessTTLMinutes   int    `yaml:"access_ttl_minutes"`
	RefreshTTLDays     int    `yaml:"refresh_ttl_days"`
	Issuer             string `yaml:"issuer"`
	ReuseRevokesDevice bool   `yaml:"reuse_revokes_device"`
}

type LockoutConfig struct {
	Threshold       int `yaml:"threshold"`
	DurationMinutes int `yaml:"duration_minutes"`
}

type RateLimitRule struct {
	Limit         int `yaml:"limit"`
	WindowSeconds int `yaml:"window_seconds"`
}

func (r RateLimitRule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

type RateLimitConfig struct {
	Backend           string        `yaml:"backend"`
	TrustProxyHeaders bool          `yaml:"trust_proxy_headers"`
	Login             RateLimitRule `yaml:"login"`
	Refresh           RateLimitRule `yaml:"refresh"`
}

type CookieConfig struct {
	Name       string `yaml:"name"`
	Domain     string `yaml:"domain"`
	Secure     bool   `yaml:"secure"`
	SameSite   string `yaml:"same_site"`
	SetOnLogin bool   `yaml:"set_on_login"`
}

func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// BootstrapConfig seeds a platform admin when running on the memory driver.
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

// Load builds the configuration. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when nothing overrides it.
// Secrets are intentionally empty so Validate fails until they are set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    15,
			WriteTimeout:   15,
			IdleTimeout:    60,
			RequestTimeout: 10,
		},
		Database: DatabaseConfig{
			Driver:       DriverPostgres,
			Host:         "localhost",
			Port:         "5432",
			SSLMode:      "disable",
			MaxOpenConns: 20,
		},
		Tokens: TokensConfig{
			AccessTTLMinutes:   15,
			RefreshTTLDays:     30,
			Issuer:             "devicesession",
			ReuseRevokesDevice: true,
		},
		Lockout: LockoutConfig{
			Threshold:       5,
			DurationMinutes: 30,
		},
		RateLimit: RateLimitConfig{
			Backend: DriverMemory,
			Login:   RateLimitRule{Limit: 10, WindowSeconds: 60},
			Refresh: RateLimitRule{Limit: 60, WindowSeconds: 60},
		},
		Cookie: CookieConfig{
			Name:     "refresh_token",
			Secure:   true,
			SameSite: "lax",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides reads DEVSESSION_SECTION_KEY variables. The POSTGRES_*
// variables used by the migration tooling are honoured as well.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s must be an integer", key))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s must be a boolean", key))
				return
			}
			*dst = b
		}
	}

	setString("POSTGRES_HOST", &cfg.Database.Host)
	setString("POSTGRES_PORT", &cfg.Database.Port)
	setString("POSTGRES_USER", &cfg.Database.User)
	setString("POSTGRES_PASSWORD", &cfg.Database.Password)
	setString("POSTGRES_DB", &cfg.Database.Name)

	setString("DEVSESSION_SERVER_HOST", &cfg.Server.Host)
	setInt("DEVSESSION_SERVER_PORT", &cfg.Server.Port)
	setInt("DEVSESSION_SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)

	setString("DEVSESSION_DATABASE_DRIVER", &cfg.Database.Driver)
	setString("DEVSESSION_DATABASE_HOST", &cfg.Database.Host)
	setString("DEVSESSION_DATABASE_PORT", &cfg.Database.Port)
	setString("DEVSESSION_DATABASE_USER", &cfg.Database.User)
	setString("DEVSESSION_DATABASE_PASSWORD", &cfg.Database.Password)
	setString("DEVSESSION_DATABASE_NAME", &cfg.Database.Name)
	setString("DEVSESSION_DATABASE_SSLMODE", &cfg.Database.SSLMode)

	setString("DEVSESSION_TOKENS_ACCESS_SECRET", &cfg.Tokens.AccessSecret)
	setString("DEVSESSION_TOKENS_REFRESH_SECRET", &cfg.Tokens.RefreshSecret)
	setInt("DEVSESSION_TOKENS_ACCESS_TTL_MINUTES", &cfg.Tokens.AccessTTLMinutes)
	setInt("DEVSESSION_TOKENS_REFRESH_TTL_DAYS", &cfg.Tokens.RefreshTTLDays)
	setString("DEVSESSION_TOKENS_ISSUER", &cfg.Tokens.Issuer)
	setBool("DEVSESSION_TOKENS_REUSE_REVOKES_DEVICE", &cfg.Tokens.ReuseRevokesDevice)

	setInt("DEVSESSION_LOCKOUT_THRESHOLD", &cfg.Lockout.Threshold)
	setInt("DEVSESSION_LOCKOUT_DURATION_MINUTES", &cfg.Lockout.DurationMinutes)

	setString("DEVSESSION_RATELIMIT_BACKEND", &cfg.RateLimit.Backend)
	setBool("DEVSESSION_RATELIMIT_TRUST_PROXY_HEADERS", &cfg.RateLimit.TrustProxyHeaders)
	setInt("DEVSESSION_RATELIMIT_LOGIN_LIMIT", &cfg.RateLimit.Login.Limit)
	setInt("DEVSESSION_RATELIMIT_LOGIN_WINDOW_SECONDS", &cfg.RateLimit.Login.WindowSeconds)
	setInt("DEVSESSION_RATELIMIT_REFRESH_LIMIT", &cfg.RateLimit.Refresh.Limit)
	setInt("DEVSESSION_RATELIMIT_REFRESH_WINDOW_SECONDS", &cfg.RateLimit.Refresh.WindowSeconds)

	setString("DEVSESSION_COOKIE_DOMAIN", &cfg.Cookie.Domain)
	setBool("DEVSESSION_COOKIE_SECURE", &cfg.Cookie.Secure)
	setBool("DEVSESSION_COOKIE_SET_ON_LOGIN", &cfg.Cookie.SetOnLogin)

	setString("DEVSESSION_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("DEVSESSION_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("DEVSESSION_METRICS_ENABLED", &cfg.Metrics.Enabled)

	setString("DEVSESSION_BOOTSTRAP_ADMIN_EMAIL", &cfg.Bootstrap.AdminEmail)
	setString("DEVSESSION_BOOTSTRAP_ADMIN_PASSWORD", &cfg.Bootstrap.AdminPassword)

	if len(errs) > 0 {
		return fmt.Errorf("environment errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required for the postgres driver")
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}

	if len(c.Tokens.AccessSecret) < minSecretLength {
		errs = append(errs, "tokens.access_secret must be at least 32 characters (set DEVSESSION_TOKENS_ACCESS_SECRET)")
	}
	if len(c.Tokens.RefreshSecret) < minSecretLength {
		errs = append(errs, "tokens.refresh_secret must be at least 32 characters (set DEVSESSION_TOKENS_REFRESH_SECRET)")
	}
	if c.Tokens.AccessSecret != "" && c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		errs = append(errs, "tokens.access_secret and tokens.refresh_secret must differ")
	}
	if c.Tokens.AccessTTLMinutes <= 0 {
		errs = append(errs, "tokens.access_ttl_minutes must be positive")
	}
	if c.Tokens.RefreshTTLDays <= 0 {
		errs = append(errs, "tokens.refresh_ttl_days must be positive")
	}
	if c.Tokens.AccessTTLMinutes > 0 && c.Tokens.RefreshTTLDays > 0 && c.AccessTTL() >= c.RefreshTTL() {
		errs = append(errs, "tokens.access_ttl_minutes must be shorter than the refresh token lifetime")
	}

	if c.Lockout.Threshold < 1 {
		errs = append(errs, "lockout.threshold must be at least 1")
	}
	if c.Lockout.DurationMinutes <= 0 {
		errs = append(errs, "lockout.duration_minutes must be positive")
	}

	switch c.RateLimit.Backend {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Driver != DriverPostgres {
			errs = append(errs, "ratelimit.backend postgres requires database.driver postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("ratelimit.backend %q is not supported", c.RateLimit.Backend))
	}
	for name, rule := range map[string]RateLimitRule{"login": c.RateLimit.Login, "refresh": c.RateLimit.Refresh} {
		if rule.Limit < 1 || rule.WindowSeconds < 1 {
			errs = append(errs, fmt.Sprintf("ratelimit.%s limit and window_seconds must be positive", name))
		}
	}

	if c.Cookie.Name == "" {
		errs = append(errs, "cookie.name is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.Tokens.AccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.Tokens.RefreshTTLDays) * 24 * time.Hour
}

func (c *Config) LockoutDuration() time.Duration {
	return time.Duration(c.Lockout.DurationMinutes) * time.Minute
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeout) * time.Second
}

func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeout) * time.Second
}

func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Server.IdleTimeout) * time.Second
}

func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// ConnString builds a lib/pq URL.
func (d DatabaseConfig) ConnString() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}
