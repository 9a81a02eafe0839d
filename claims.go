package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes what a signed token may be used for
type TokenType string

const (
	// TokenTypeAccess authenticates single requests
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is exchanged for a new token pair
	TokenTypeRefresh TokenType = "refresh"
	// TokenTypeVerify confirms ownership of an email address
	TokenTypeVerify TokenType = "verify"
)

// JWTClaims is the payload of every token we sign
type JWTClaims struct {
	jwt.RegisteredClaims
	UID       string    `json:"user_id"`
	UserRole  string    `json:"role"`
	Type      TokenType `json:"type"`
	ProfileID string    `json:"profile_id,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Remember  bool      `json:"remember,omitempty"`
	// Metadata is the only claim a ClaimsDecorator may write
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ClaimsForUser builds the identity claims for user and its profile
func ClaimsForUser(user *User, profile *Profile) JWTClaims {
	claims := JWTClaims{
		UID:       user.ID.String(),
		UserRole:  string(user.Role),
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
	if profile != nil {
		claims.ProfileID = profile.ID
		claims.FirstName = profile.FirstName
		claims.LastName = profile.LastName
	}
	return claims
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// UserUUID parses the user ID
func (c *JWTClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID())
}

// Role returns the role claim
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.ID
}

// Expires returns the expiration time or zero
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns the issued at time or zero
func (c *JWTClaims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}
