package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logger is the minimal logging surface used across the package
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetRememberMeTokenTTL() time.Duration
	GetVerificationTokenTTL() time.Duration
	GetPasswordResetTTL() time.Duration
	GetPasswordHashCost() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetAccessCookieName() string
	GetRefreshCookieName() string
	GetCookieDomain() string
	GetSecureCookies() bool
}

// TokenCodec signs and verifies the tokens handed to clients
type TokenCodec interface {
	Issue(claims JWTClaims, ttl time.Duration, tokenType TokenType) (string, time.Time, error)
	Verify(token string) (*JWTClaims, error)
	VerifyType(token string, tokenType TokenType) (*JWTClaims, error)
	VerifyIgnoringExpiry(token string) (*JWTClaims, error)
}

// SessionRegistry is the durable record of tokens that are currently valid
type SessionRegistry interface {
	Record(ctx context.Context, userID uuid.UUID, token string, tokenType TokenType, expiresAt time.Time) (*IssuedToken, error)
	FindByToken(ctx context.Context, token string) (*IssuedToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// CredentialStore persists users
type CredentialStore interface {
	Create(ctx context.Context, user *User) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

// Notifier delivers out of band messages to users
type Notifier interface {
	SendPasswordReset(ctx context.Context, user *User, reset *PasswordReset) error
	SendEmailVerification(ctx context.Context, user *User, token string) error
}

// MetricsRecorder receives auth outcomes for telemetry
type MetricsRecorder interface {
	ObserveLogin(result string, elapsed time.Duration)
	IncRefresh(result string)
	IncLogout(scope string)
	IncRegistration(role string)
	IncRejection(code string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(string, time.Duration) {}
func (noopMetrics) IncRefresh(string)                  {}
func (noopMetrics) IncLogout(string)                   {}
func (noopMetrics) IncRegistration(string)             {}
func (noopMetrics) IncRejection(string)                {}

func normalizeMetrics(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// logNotifier is the fallback when no Notifier is configured. It never
// delivers anything and only records that a message was due.
type logNotifier struct {
	logger Logger
}

func (n logNotifier) SendPasswordReset(_ context.Context, user *User, reset *PasswordReset) error {
	n.logger.Debug("password reset requested for %s, reset token %s", MaskEmail(user.Email), MaskSecret(reset.ID.String()))
	return nil
}

func (n logNotifier) SendEmailVerification(_ context.Context, user *User, token string) error {
	n.logger.Debug("email verification for %s, token %s", MaskEmail(user.Email), MaskSecret(token))
	return nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
