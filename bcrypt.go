package auth

import (
	"errors"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordHashCost is used when no cost is configured
const DefaultPasswordHashCost = 12

// PasswordHasher hashes and compares passwords with bcrypt
type PasswordHasher struct {
	cost      int
	dummyOnce sync.Once
	dummyHash []byte
}

// NewPasswordHasher creates a hasher with the given cost factor
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost == 0 {
		cost = DefaultPasswordHashCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &PasswordHasher{cost: passwordHashCost(cost)}
}

// Cost returns the effective bcrypt cost
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash will generate a password hash
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(out), nil
}

// Compare will validate the given cleartext password matches the hash
func (h *PasswordHasher) Compare(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password hash")
	}
	return nil
}

// CompareDummy spends the same bcrypt work as Compare against a throwaway
// hash. Login calls it when no user matches so both paths cost the same.
func (h *PasswordHasher) CompareDummy(password string) {
	h.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("clinic-auth-dummy-password"), h.cost)
		if err != nil {
			return
		}
		h.dummyHash = hash
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
}
