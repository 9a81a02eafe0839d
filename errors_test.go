package auth_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-clinic-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestSentinelCodes(t *testing.T) {
	tests := []struct {
		err    *goerrors.Error
		status int
		code   string
	}{
		{auth.ErrMissingToken, http.StatusUnauthorized, auth.TextCodeMissingToken},
		{auth.ErrTokenExpired, http.StatusUnauthorized, auth.TextCodeTokenExpired},
		{auth.ErrInvalidToken, http.StatusUnauthorized, auth.TextCodeInvalidToken},
		{auth.ErrTokenRevoked, http.StatusUnauthorized, auth.TextCodeTokenRevoked},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized, auth.TextCodeInvalidCredentials},
		{auth.ErrInvalidRefreshToken, http.StatusUnauthorized, auth.TextCodeInvalidRefreshToken},
		{auth.ErrUserInactiveOrMissing, http.StatusUnauthorized, auth.TextCodeUserInactive},
		{auth.ErrRoleNotAllowed, http.StatusForbidden, auth.TextCodeForbidden},
		{auth.ErrDuplicateEmail, http.StatusConflict, auth.TextCodeDuplicateEmail},
		{auth.ErrTooManyRequests, http.StatusTooManyRequests, auth.TextCodeTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Code)
			assert.Equal(t, tt.code, auth.ErrorTextCode(tt.err))
		})
	}

	assert.Empty(t, auth.ErrorTextCode(errors.New("plain")))
	assert.Empty(t, auth.ErrorTextCode(nil))
}

func TestNewRoleNotAllowedError(t *testing.T) {
	err := auth.NewRoleNotAllowedError([]string{"doctor", "admin"}, "patient")

	assert.Equal(t, http.StatusForbidden, err.Code)
	assert.Equal(t, auth.TextCodeForbidden, err.TextCode)
	assert.Contains(t, err.Message, `"patient"`)
	assert.Contains(t, err.Message, "doctor, admin")
	assert.Equal(t, []string{"doctor", "admin"}, err.Metadata["required_roles"])
	assert.Equal(t, "patient", err.Metadata["actual_role"])
}

func TestNewValidationErrorCollectsFields(t *testing.T) {
	err := auth.NewValidationError(auth.LoginMessage{Email: "nope"}.Validate())

	assert.Equal(t, http.StatusBadRequest, err.Code)
	fields, ok := err.Metadata["fields"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestClassifyStoreError(t *testing.T) {
	unavailable := []error{
		driver.ErrBadConn,
		sql.ErrConnDone,
		fmt.Errorf("ping: %w", context.DeadlineExceeded),
	}
	for _, err := range unavailable {
		classified := auth.ClassifyStoreError(err, "query failed")
		assert.True(t, auth.IsDatabaseUnavailable(classified), "%v", err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(classified, &richErr))
		assert.Equal(t, http.StatusServiceUnavailable, richErr.Code)
	}

	internal := auth.ClassifyStoreError(errors.New("syntax error"), "query failed")
	assert.Equal(t, auth.TextCodeInternal, auth.ErrorTextCode(internal))

	passthrough := auth.ClassifyStoreError(auth.ErrUserNotFound, "query failed")
	assert.Equal(t, auth.TextCodeNotFound, auth.ErrorTextCode(passthrough))

	repoLost := goerrors.Wrap(sql.ErrConnDone, goerrors.CategoryInternal, "select failed").WithTextCode("DB_ERROR")
	assert.Equal(t, auth.TextCodeDatabaseUnavailable, auth.ErrorTextCode(auth.ClassifyStoreError(repoLost, "query failed")))

	repoOther := goerrors.New("row scan failed", goerrors.CategoryInternal).WithTextCode("DB_ERROR")
	assert.Equal(t, auth.TextCodeInternal, auth.ErrorTextCode(auth.ClassifyStoreError(repoOther, "query failed")))

	assert.NoError(t, auth.ClassifyStoreError(nil, "query failed"))
}

func TestLostDatabaseAnswers503(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqldb.Close()

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrConnDone)

	repo := auth.NewRepositoryManager(bun.NewDB(sqldb, sqlitedialect.New()))
	auther := auth.NewAuthenticator(repo, newTestConfig()).WithLogger(nopLogger{})
	mw := auth.NewRouteAuthenticator(auther, newTestConfig())
	controller := auth.NewAuthController(auther, mw, auth.WithControllerLogger(nopLogger{}))
	defer controller.Close()

	app := fiber.New(fiber.Config{ErrorHandler: auth.NewErrorHandler(nopLogger{}, false)})
	auth.RegisterAuthRoutes(app.Group("/auth"), controller)

	resp, body := doRequest(t, app, request{
		method: fiber.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"email": "dr@x.com", "password": testPassword},
	})

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, body.Success)
	assert.Equal(t, http.StatusServiceUnavailable, body.StatusCode)
	assert.Equal(t, auth.TextCodeDatabaseUnavailable, body.ErrorCode)
	assert.NotContains(t, body.Message, "connection")
	require.NoError(t, mock.ExpectationsWereMet())
}
