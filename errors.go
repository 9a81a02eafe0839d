package auth

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error codes returned to clients in the errorCode field of the envelope.
const (
	TextCodeValidation          = "4001"
	TextCodeTokenExpired        = "4002"
	TextCodeInvalidToken        = "4003"
	TextCodeMissingToken        = "4004"
	TextCodeTokenRevoked        = "4005"
	TextCodeInvalidCredentials  = "4010"
	TextCodeInvalidRefreshToken = "4011"
	TextCodeUserInactive        = "4012"
	TextCodeForbidden           = "4030"
	TextCodeNotFound            = "4040"
	TextCodeDuplicateEmail      = "4090"
	TextCodeResetTokenUsed      = "4091"
	TextCodeTooManyRequests     = "4290"
	TextCodeInternal            = "5000"
	TextCodeDatabaseUnavailable = "5030"
)

var (
	// ErrMissingToken no token in header or cookie
	ErrMissingToken = goerrors.New("authentication token is required", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeMissingToken)

	// ErrTokenExpired signature is valid but exp has passed
	ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeTokenExpired)

	// ErrInvalidToken malformed token, bad signature or wrong token type
	ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeInvalidToken)

	// ErrTokenRevoked the token verifies but has no live registry row
	ErrTokenRevoked = goerrors.New("token has been revoked or is unknown", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeTokenRevoked)

	// ErrInvalidCredentials is returned for every login failure
	ErrInvalidCredentials = goerrors.New("Invalid email or password", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeInvalidCredentials)

	// ErrInvalidRefreshToken refresh token failed verification or rotation
	ErrInvalidRefreshToken = goerrors.New("invalid or expired refresh token", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeInvalidRefreshToken)

	// ErrUserInactiveOrMissing token owner no longer exists or is not active
	ErrUserInactiveOrMissing = goerrors.New("user account is inactive or does not exist", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUserInactive)

	// ErrRoleNotAllowed identity role is outside the allowed set
	ErrRoleNotAllowed = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(TextCodeForbidden)

	// ErrUserNotFound no user for the given lookup
	ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeNotFound)

	// ErrDuplicateEmail email is already registered
	ErrDuplicateEmail = goerrors.New("email is already registered", goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithTextCode(TextCodeDuplicateEmail)

	// ErrResetTokenInvalid password reset token unknown or expired
	ErrResetTokenInvalid = goerrors.New("invalid or expired password reset token", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeNotFound)

	// ErrResetTokenUsed password reset token was already consumed
	ErrResetTokenUsed = goerrors.New("password reset token has already been used", goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithTextCode(TextCodeResetTokenUsed)

	// ErrInvalidTransition status change not allowed
	ErrInvalidTransition = goerrors.New("invalid user status transition", goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation)

	// ErrTooManyRequests rate limit exceeded
	ErrTooManyRequests = goerrors.New("too many requests, please try again later", goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(TextCodeTooManyRequests)

	// ErrNoEmptyString password must not be empty
	ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation)

	// ErrImmutableClaimMutation a claims decorator touched identity claims
	ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternal)

	// ErrMismatchedHashAndPassword password does not match hash
	ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeInvalidCredentials)
)

// NewValidationError wraps ozzo validation errors into a 400 response error.
func NewValidationError(err error) *goerrors.Error {
	fields := map[string]string{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
	}

	return goerrors.Wrap(err, goerrors.CategoryValidation, "validation failed").
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation).
		WithMetadata(map[string]any{"fields": fields})
}

// NewRoleNotAllowedError reports the required roles and the actual one.
func NewRoleNotAllowedError(required []string, actual string) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("role %q is not allowed, requires one of [%s]", actual, strings.Join(required, ", ")),
		goerrors.CategoryAuthz,
	).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(TextCodeForbidden).
		WithMetadata(map[string]any{
			"required_roles": required,
			"actual_role":    actual,
		})
}

// ErrorTextCode returns the numeric error code carried by err, if any.
func ErrorTextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// IsDatabaseUnavailable reports whether err was classified as a lost database.
func IsDatabaseUnavailable(err error) bool {
	return ErrorTextCode(err) == TextCodeDatabaseUnavailable
}

// ClassifyStoreError wraps a persistence error the way repositories do
func ClassifyStoreError(err error, message string) error {
	return wrapStoreError(err, message)
}

var envelopeTextCodes = map[string]bool{
	TextCodeValidation: true, TextCodeTokenExpired: true, TextCodeInvalidToken: true,
	TextCodeMissingToken: true, TextCodeTokenRevoked: true, TextCodeInvalidCredentials: true,
	TextCodeInvalidRefreshToken: true, TextCodeUserInactive: true, TextCodeForbidden: true,
	TextCodeNotFound: true, TextCodeDuplicateEmail: true, TextCodeResetTokenUsed: true,
	TextCodeTooManyRequests: true, TextCodeInternal: true, TextCodeDatabaseUnavailable: true,
}

// wrapStoreError classifies persistence errors. Errors already carrying one
// of our text codes pass through, connectivity failures become
// DatabaseUnavailable and the rest, including rich errors raised by the
// generic repository, are internal.
func wrapStoreError(err error, message string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && envelopeTextCodes[richErr.TextCode] {
		return richErr
	}

	if isConnectionError(err) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "database unavailable").
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(TextCodeDatabaseUnavailable)
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternal)
}

func isConnectionError(err error) bool {
	if goerrors.Is(err, driver.ErrBadConn) ||
		goerrors.Is(err, sql.ErrConnDone) ||
		goerrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if goerrors.As(err, &connectErr) {
		return true
	}

	var netErr net.Error
	return goerrors.As(err, &netErr)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "violates unique constraint")
}
