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

func TestDefaultTransitionsCoverEveryStatus(t *testing.T) {
	transitions := auth.DefaultTransitions()
	statuses := []auth.UserStatus{auth.UserStatusActive, auth.UserStatusInactive, auth.UserStatusSuspended}

	for _, from := range statuses {
		allowed, ok := transitions[from]
		require.True(t, ok, "missing transitions from %s", from)
		for _, to := range statuses {
			_, exists := allowed[to]
			assert.Equal(t, from != to, exists, "%s -> %s", from, to)
		}
	}
}

func TestChangeStatusSuspendedTimestampUsesClock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	env.auther.WithClock(func() time.Time { return now })

	registered := env.register(t, "pat@x.com", testPassword, auth.RolePatient)

	result, err := env.auther.ChangeStatus(ctx, auth.ActorRef{ID: "admin-1", Type: "admin"}, registered.User.ID,
		auth.ChangeStatusMessage{Status: "suspended"})
	require.NoError(t, err)
	require.NotNil(t, result.User.SuspendedAt)
	assert.True(t, result.User.SuspendedAt.Equal(now))

	stored, err := env.repo.Users().FindByID(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusSuspended, stored.Status)
	require.NotNil(t, stored.SuspendedAt)
	assert.True(t, stored.SuspendedAt.Equal(now))
}

func TestChangeStatusReactivationKeepsSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	registered := env.register(t, "pat@x.com", testPassword, auth.RolePatient)
	actor := auth.ActorRef{ID: "admin-1", Type: "admin"}

	_, err := env.auther.ChangeStatus(ctx, actor, registered.User.ID, auth.ChangeStatusMessage{Status: "inactive"})
	require.NoError(t, err)

	login := registered.Tokens
	_, err = env.auther.AuthenticateToken(ctx, login.AccessToken)
	requireCode(t, auth.TextCodeTokenRevoked, err)

	result, err := env.auther.ChangeStatus(ctx, actor, registered.User.ID, auth.ChangeStatusMessage{Status: "active"})
	require.NoError(t, err)
	assert.Zero(t, result.RevokedSessions)
	assert.Nil(t, result.User.SuspendedAt)
}

func TestChangeStatusUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auther.ChangeStatus(context.Background(), auth.ActorRef{ID: "admin-1"}, uuid.New(),
		auth.ChangeStatusMessage{Status: "inactive"})
	requireCode(t, auth.TextCodeNotFound, err)
}
