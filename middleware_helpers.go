package auth

import (
	"context"

	"github.com/goliatone/go-clinic-auth/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores the identity and its claims in the
// standard context for handlers that only see context.Context.
func ContextEnricherAdapter(c context.Context, identity any) context.Context {
	authIdentity, ok := identity.(*AuthenticatedIdentity)
	if !ok || authIdentity == nil {
		return c
	}

	ctx := WithContext(c, authIdentity)
	if authIdentity.Claims != nil {
		ctx = WithClaimsContext(ctx, authIdentity.Claims)
	}
	return ctx
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
