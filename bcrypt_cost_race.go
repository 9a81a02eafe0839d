//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

func passwordHashCost(cost int) int {
	// Race-enabled builds are slow enough already, cap the configured cost.
	if cost > bcrypt.DefaultCost {
		return bcrypt.DefaultCost
	}
	return cost
}
