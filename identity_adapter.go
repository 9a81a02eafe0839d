package auth

import (
	"github.com/google/uuid"
)

// AuthenticatedIdentity is the request scoped view of the caller. It is
// rebuilt from verified claims and a fresh user row on every request.
type AuthenticatedIdentity struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	Role      UserRole   `json:"role"`
	Status    UserStatus `json:"status"`
	ProfileID string     `json:"profileId,omitempty"`
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`

	Claims *JWTClaims `json:"-"`
	Token  string     `json:"-"`
}

// NewAuthenticatedIdentity merges a user row with the claims it was
// authenticated with. Role and status always come from the user row.
func NewAuthenticatedIdentity(user *User, claims *JWTClaims, token string) *AuthenticatedIdentity {
	if user == nil {
		return nil
	}

	identity := &AuthenticatedIdentity{
		ID:        user.ID.String(),
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
		Status:    user.Status,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Claims:    claims,
		Token:     token,
	}

	if claims != nil {
		identity.ProfileID = claims.ProfileID
		if claims.FirstName != "" {
			identity.FirstName = claims.FirstName
		}
		if claims.LastName != "" {
			identity.LastName = claims.LastName
		}
	}

	return identity
}

// identityFromClaims is used when the user row could not be loaded, which
// only lenient logout tolerates.
func identityFromClaims(claims *JWTClaims, token string) *AuthenticatedIdentity {
	return &AuthenticatedIdentity{
		ID:        claims.UserID(),
		Role:      UserRole(claims.Role()),
		ProfileID: claims.ProfileID,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		Claims:    claims,
		Token:     token,
	}
}

// UserUUID parses the identity ID
func (i *AuthenticatedIdentity) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(i.ID)
}

// HasRole compares roles after trimming and lower-casing both sides
func (i *AuthenticatedIdentity) HasRole(roles ...UserRole) bool {
	if i == nil {
		return false
	}
	return NewRoleSet(roles...).Allows(string(i.Role))
}
