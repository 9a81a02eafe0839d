package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherHash(t *testing.T) {
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.Hash(tt.password)

			if tt.wantErr {
				assert.ErrorIs(t, err, auth.ErrNoEmptyString)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NoError(t, hasher.Compare(tt.password, hash))

			cost, err := bcrypt.Cost([]byte(hash))
			require.NoError(t, err)
			assert.Equal(t, bcrypt.MinCost, cost)
		})
	}
}

func TestPasswordHasherCompare(t *testing.T) {
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)

	password := "testPassword123!"
	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
		hash     string
		wantErr  error
	}{
		{name: "Matching password", password: password, hash: hash},
		{name: "Wrong password", password: "wrongPassword", hash: hash, wantErr: auth.ErrMismatchedHashAndPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := hasher.Compare(tt.password, tt.hash)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("Invalid hash", func(t *testing.T) {
		err := hasher.Compare(password, "invalidhash")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	})
}

func TestNewPasswordHasherCost(t *testing.T) {
	assert.Equal(t, bcrypt.MinCost, auth.NewPasswordHasher(1).Cost())
	assert.LessOrEqual(t, auth.NewPasswordHasher(0).Cost(), auth.DefaultPasswordHashCost)
}

func TestPasswordHasherCompareDummy(t *testing.T) {
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	assert.NotPanics(t, func() {
		hasher.CompareDummy("whatever")
		hasher.CompareDummy("whatever")
	})
}
