package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersListPagesAndFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "dr@x.com", testPassword, auth.RoleDoctor)
	env.register(t, "p1@x.com", testPassword, auth.RolePatient)
	env.register(t, "p2@x.com", testPassword, auth.RolePatient)

	users := env.repo.Users()

	all, total, err := users.List(ctx, auth.ListUsersOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	patients, total, err := users.List(ctx, auth.ListUsersOptions{Role: auth.RolePatient})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, user := range patients {
		assert.Equal(t, auth.RolePatient, user.Role)
	}

	page, total, err := users.List(ctx, auth.ListUsersOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.NotEqual(t, all[0].ID, page[0].ID)
}

func TestUsersFindByEmailNormalizes(t *testing.T) {
	env := newTestEnv(t)
	registered := env.register(t, "Dr@X.com", testPassword, auth.RoleDoctor)

	found, err := env.repo.Users().FindByEmail(context.Background(), "  DR@x.COM ")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, found.ID)
	assert.Equal(t, "dr@x.com", found.Email)

	_, err = env.repo.Users().FindByEmail(context.Background(), "nobody@x.com")
	requireCode(t, auth.TextCodeNotFound, err)
}

func TestUsersCreateRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@x.com", testPassword, auth.RoleAdmin)

	_, err := env.repo.Users().Create(context.Background(), &auth.User{
		Email:        "ADMIN@x.com",
		PasswordHash: "hash",
		Role:         auth.RoleAdmin,
	})
	requireCode(t, auth.TextCodeDuplicateEmail, err)
}

func TestUsersColumnUpdatesKeepOtherFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered := env.register(t, "dr@x.com", testPassword, auth.RoleDoctor)
	users := env.repo.Users()

	require.NoError(t, users.MarkEmailVerifiedTx(ctx, env.db.DB, registered.User.ID))
	require.NoError(t, users.TrackLoginTx(ctx, env.db.DB, registered.User.ID, time.Now()))
	require.NoError(t, users.UpdateStatusTx(ctx, env.db.DB, registered.User.ID, auth.UserStatusSuspended, nil))

	found, err := users.FindByID(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.True(t, found.EmailVerified)
	assert.NotNil(t, found.LoggedInAt)
	assert.Equal(t, auth.UserStatusSuspended, found.Status)
	assert.Equal(t, "dr@x.com", found.Email)
	assert.Equal(t, auth.RoleDoctor, found.Role)
	assert.Equal(t, registered.User.PasswordHash, found.PasswordHash)
	assert.Equal(t, "Test", found.FirstName)

	_, err = users.FindByID(ctx, uuid.New())
	requireCode(t, auth.TextCodeNotFound, err)
}

func TestPasswordResetsLookupAndSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered := env.register(t, "dr@x.com", testPassword, auth.RoleDoctor)
	resets := env.repo.PasswordResets()

	created, err := resets.CreateTx(ctx, env.db.DB, &auth.PasswordReset{
		UserID: registered.User.ID,
		Email:  "DR@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.ResetRequestedStatus, created.Status)

	found, err := resets.FindByIDTx(ctx, env.db.DB, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "dr@x.com", found.Email)
	assert.Equal(t, registered.User.ID, found.UserID)

	require.NoError(t, resets.MarkUsedTx(ctx, env.db.DB, created.ID))
	requireCode(t, auth.TextCodeResetTokenUsed, resets.MarkUsedTx(ctx, env.db.DB, created.ID))

	_, err = resets.FindByIDTx(ctx, env.db.DB, uuid.New())
	requireCode(t, auth.TextCodeNotFound, err)
}
