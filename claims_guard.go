package auth

import (
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

type immutableClaimsSnapshot struct {
	registered jwt.RegisteredClaims
	audience   []string
	uid        string
	role       string
	tokenType  TokenType
	profileID  string
	firstName  string
	lastName   string
	email      string
	remember   bool
}

func captureImmutableClaims(claims *JWTClaims) immutableClaimsSnapshot {
	return immutableClaimsSnapshot{
		registered: claims.RegisteredClaims,
		audience:   slices.Clone([]string(claims.Audience)),
		uid:        claims.UID,
		role:       claims.UserRole,
		tokenType:  claims.Type,
		profileID:  claims.ProfileID,
		firstName:  claims.FirstName,
		lastName:   claims.LastName,
		email:      claims.Email,
		remember:   claims.Remember,
	}
}

func (snap immutableClaimsSnapshot) validate(claims *JWTClaims) error {
	checks := []struct {
		field string
		same  bool
	}{
		{"sub", claims.Subject == snap.registered.Subject},
		{"iss", claims.Issuer == snap.registered.Issuer},
		{"jti", claims.ID == snap.registered.ID},
		{"aud", slices.Equal([]string(claims.Audience), snap.audience)},
		{"iat", sameNumericDate(claims.IssuedAt, snap.registered.IssuedAt)},
		{"exp", sameNumericDate(claims.ExpiresAt, snap.registered.ExpiresAt)},
		{"nbf", sameNumericDate(claims.NotBefore, snap.registered.NotBefore)},
		{"user_id", claims.UID == snap.uid},
		{"role", claims.UserRole == snap.role},
		{"type", claims.Type == snap.tokenType},
		{"profile_id", claims.ProfileID == snap.profileID},
		{"first_name", claims.FirstName == snap.firstName},
		{"last_name", claims.LastName == snap.lastName},
		{"email", claims.Email == snap.email},
		{"remember", claims.Remember == snap.remember},
	}

	for _, check := range checks {
		if !check.same {
			return immutableClaimViolation(check.field)
		}
	}
	return nil
}

func sameNumericDate(a, b *jwt.NumericDate) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Time.Equal(b.Time)
}

func immutableClaimViolation(field string) error {
	clone := ErrImmutableClaimMutation.Clone()
	if clone == nil {
		return ErrImmutableClaimMutation
	}
	clone.Message = fmt.Sprintf("immutable claim mutated: %s", field)
	clone.Source = ErrImmutableClaimMutation
	return clone.WithMetadata(map[string]any{"claim": field})
}
