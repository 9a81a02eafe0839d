// Package config loads the service configuration.
//
// Values are resolved in order: built-in defaults, an optional TOML file
// named by CONFIG_FILE, then environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation"
	auth "github.com/goliatone/go-clinic-auth"
)

// MinSigningKeyLength is the shortest accepted JWT secret
const MinSigningKeyLength = 32

// Duration accepts Go durations plus a "d" day suffix in TOML files
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := auth.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete service configuration
type Config struct {
	Env      string         `toml:"env"`
	Port     int            `toml:"port"`
	LogLevel string         `toml:"log_level"`
	Auth     AuthConfig     `toml:"auth"`
	Database DatabaseConfig `toml:"database"`
}

// AuthConfig holds token, cookie and hashing options
type AuthConfig struct {
	SigningKey           string   `toml:"signing_key"`
	Issuer               string   `toml:"issuer"`
	Audience             []string `toml:"audience"`
	AccessTokenTTL       Duration `toml:"access_token_ttl"`
	RefreshTokenTTL      Duration `toml:"refresh_token_ttl"`
	RememberMeTokenTTL   Duration `toml:"remember_me_token_ttl"`
	VerificationTokenTTL Duration `toml:"verification_token_ttl"`
	PasswordResetTTL     Duration `toml:"password_reset_ttl"`
	BcryptRounds         int      `toml:"bcrypt_rounds"`
	TokenLookup          string   `toml:"token_lookup"`
	AuthScheme           string   `toml:"auth_scheme"`
	AccessCookieName     string   `toml:"access_cookie_name"`
	RefreshCookieName    string   `toml:"refresh_cookie_name"`
	CookieDomain         string   `toml:"cookie_domain"`
	SessionPurgeInterval Duration `toml:"session_purge_interval"`
}

// DatabaseConfig holds connection options
type DatabaseConfig struct {
	Driver         string   `toml:"driver"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	Name           string   `toml:"name"`
	SSLMode        string   `toml:"sslmode"`
	ConnectTimeout Duration `toml:"connect_timeout"`
	MaxOpenConns   int      `toml:"max_open_conns"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Env:      "development",
		Port:     8080,
		LogLevel: "info",
		Auth: AuthConfig{
			Issuer:               "clinic-auth",
			AccessTokenTTL:       Duration{15 * time.Minute},
			RefreshTokenTTL:      Duration{7 * 24 * time.Hour},
			RememberMeTokenTTL:   Duration{30 * 24 * time.Hour},
			VerificationTokenTTL: Duration{24 * time.Hour},
			PasswordResetTTL:     Duration{24 * time.Hour},
			BcryptRounds:         auth.DefaultPasswordHashCost,
			AuthScheme:           "Bearer",
			AccessCookieName:     "accessToken",
			RefreshCookieName:    "refreshToken",
			SessionPurgeInterval: Duration{time.Hour},
		},
		Database: DatabaseConfig{
			Driver:         "sqlite",
			DSN:            "file:clinic.db?cache=shared",
			Host:           "localhost",
			Port:           5432,
			SSLMode:        "disable",
			ConnectTimeout: Duration{2 * time.Second},
			MaxOpenConns:   10,
		},
	}
}

// Load reads defaults, the CONFIG_FILE TOML file and the environment,
// then validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"), os.LookupEnv)
}

// LoadFrom is Load with an explicit file path and environment lookup
func LoadFrom(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}

	if err := cfg.ApplyEnvOverrides(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverrides applies environment variables over the current values
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	str("APP_ENV", &c.Env)
	num("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)

	str("JWT_SECRET", &c.Auth.SigningKey)
	str("JWT_ISSUER", &c.Auth.Issuer)
	if v, ok := lookup("JWT_AUDIENCE"); ok && v != "" {
		c.Auth.Audience = splitList(v)
	}
	dur("JWT_EXPIRES_IN", &c.Auth.AccessTokenTTL)
	dur("JWT_REFRESH_EXPIRES_IN", &c.Auth.RefreshTokenTTL)
	dur("JWT_REMEMBER_EXPIRES_IN", &c.Auth.RememberMeTokenTTL)
	num("BCRYPT_ROUNDS", &c.Auth.BcryptRounds)
	str("COOKIE_DOMAIN", &c.Auth.CookieDomain)
	dur("SESSION_PURGE_INTERVAL", &c.Auth.SessionPurgeInterval)

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("DB_HOST", &c.Database.Host)
	num("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	str("DB_SSLMODE", &c.Database.SSLMode)
	dur("DB_CONNECT_TIMEOUT", &c.Database.ConnectTimeout)
	num("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)

	return errors.Join(errs...)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	return validation.Errors{
		"env":      validation.Validate(c.Env, validation.Required, validation.In("development", "test", "production")),
		"port":     validation.Validate(c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		"auth":     c.Auth.Validate(),
		"database": c.Database.Validate(),
	}.Filter()
}

// Validate checks the auth options
func (a AuthConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey, validation.Required, validation.Length(MinSigningKeyLength, 0)),
		validation.Field(&a.Issuer, validation.Required),
		validation.Field(&a.AccessTokenTTL, validation.By(positiveDuration)),
		validation.Field(&a.RefreshTokenTTL, validation.By(positiveDuration)),
		validation.Field(&a.RememberMeTokenTTL, validation.By(positiveDuration)),
		validation.Field(&a.VerificationTokenTTL, validation.By(positiveDuration)),
		validation.Field(&a.PasswordResetTTL, validation.By(positiveDuration)),
		validation.Field(&a.BcryptRounds, validation.Min(4), validation.Max(31)),
		validation.Field(&a.AccessCookieName, validation.Required),
		validation.Field(&a.RefreshCookieName, validation.Required),
	)
}

// Validate checks the database options
func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&d.ConnectTimeout, validation.By(positiveDuration)),
		validation.Field(&d.MaxOpenConns, validation.Min(1)),
	)
}

// ConnectionString returns the DSN, building a postgres URL from the
// parts when no DSN was given.
func (d DatabaseConfig) ConnectionString() string {
	if d.Driver != "postgres" || (d.DSN != "" && !strings.HasPrefix(d.DSN, "file:")) {
		return d.DSN
	}

	query := url.Values{}
	query.Set("sslmode", d.SSLMode)
	query.Set("connect_timeout", strconv.Itoa(int(d.ConnectTimeout.Seconds())))

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func positiveDuration(value interface{}) error {
	d, _ := value.(Duration)
	if d.Duration <= 0 {
		return errors.New("must be a positive duration")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
