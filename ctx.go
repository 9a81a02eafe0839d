package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// DefaultContextKey is the fiber Locals key holding the identity
const DefaultContextKey = "user"

var identityCtxKey = &contextKey{"identity"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the identity in the given context
func WithContext(r context.Context, identity *AuthenticatedIdentity) context.Context {
	return context.WithValue(r, identityCtxKey, identity)
}

// FromContext finds the identity in the context.
func FromContext(ctx context.Context) (*AuthenticatedIdentity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*AuthenticatedIdentity)
	return raw, ok && raw != nil
}

// WithClaimsContext sets the verified claims in the given context
func WithClaimsContext(r context.Context, claims *JWTClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the verified claims from the standard context
func GetClaims(ctx context.Context) (*JWTClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*JWTClaims)
	return raw, ok && raw != nil
}

// SetIdentity stores the identity in fiber Locals and in the user context
func SetIdentity(c *fiber.Ctx, identity *AuthenticatedIdentity) {
	c.Locals(DefaultContextKey, identity)
	ctx := WithContext(c.UserContext(), identity)
	if identity != nil && identity.Claims != nil {
		ctx = WithClaimsContext(ctx, identity.Claims)
	}
	c.SetUserContext(ctx)
}

// GetIdentity extracts the identity attached by the auth middleware
func GetIdentity(c *fiber.Ctx) (*AuthenticatedIdentity, bool) {
	raw, ok := c.Locals(DefaultContextKey).(*AuthenticatedIdentity)
	if ok && raw != nil {
		return raw, true
	}
	return FromContext(c.UserContext())
}
