package config

import (
	"time"

	auth "github.com/goliatone/go-clinic-auth"
)

var _ auth.Config = (*Config)(nil)

func (c *Config) GetSigningKey() string {
	return c.Auth.SigningKey
}

func (c *Config) GetIssuer() string {
	return c.Auth.Issuer
}

func (c *Config) GetAudience() []string {
	return c.Auth.Audience
}

func (c *Config) GetAccessTokenTTL() time.Duration {
	return c.Auth.AccessTokenTTL.Duration
}

func (c *Config) GetRefreshTokenTTL() time.Duration {
	return c.Auth.RefreshTokenTTL.Duration
}

func (c *Config) GetRememberMeTokenTTL() time.Duration {
	return c.Auth.RememberMeTokenTTL.Duration
}

func (c *Config) GetVerificationTokenTTL() time.Duration {
	return c.Auth.VerificationTokenTTL.Duration
}

func (c *Config) GetPasswordResetTTL() time.Duration {
	return c.Auth.PasswordResetTTL.Duration
}

func (c *Config) GetPasswordHashCost() int {
	return c.Auth.BcryptRounds
}

func (c *Config) GetTokenLookup() string {
	return c.Auth.TokenLookup
}

func (c *Config) GetAuthScheme() string {
	return c.Auth.AuthScheme
}

func (c *Config) GetAccessCookieName() string {
	return c.Auth.AccessCookieName
}

func (c *Config) GetRefreshCookieName() string {
	return c.Auth.RefreshCookieName
}

func (c *Config) GetCookieDomain() string {
	return c.Auth.CookieDomain
}

// GetSecureCookies marks cookies secure in production
func (c *Config) GetSecureCookies() bool {
	return c.IsProduction()
}
