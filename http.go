package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-clinic-auth/middleware/jwtware"
	goerrors "github.com/goliatone/go-errors"
)

// RefreshTokenHeader carries a refresh token when it is not in the body or a cookie
const RefreshTokenHeader = "X-Refresh-Token"

// RouteAuthenticator builds the fiber middleware guarding routes
type RouteAuthenticator struct {
	auth      *Auther
	cfg       Config
	listeners []ValidationListener
	Logger    Logger
}

func NewRouteAuthenticator(auther *Auther, cfg Config) *RouteAuthenticator {
	return &RouteAuthenticator{
		auth:   auther,
		cfg:    cfg,
		Logger: defLogger{},
	}
}

// WithLogger overrides the logger
func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// WithValidationListeners adds checks that run after a token has been
// authenticated. Lenient logout skips them.
func (a *RouteAuthenticator) WithValidationListeners(listeners ...ValidationListener) *RouteAuthenticator {
	a.listeners = append(a.listeners, listeners...)
	return a
}

// Authenticate rejects requests without a valid, registered access token
// owned by an active user.
func (a *RouteAuthenticator) Authenticate() fiber.Handler {
	return a.middleware(a.auth.AuthenticateToken, false, a.listeners)
}

// Optional attaches the identity when the request carries a valid token
// and lets every other request through unauthenticated.
func (a *RouteAuthenticator) Optional() fiber.Handler {
	return a.middleware(a.auth.AuthenticateToken, true, a.listeners)
}

// AuthenticateForLogout accepts expired or revoked access tokens so a
// client can always clear its session.
func (a *RouteAuthenticator) AuthenticateForLogout() fiber.Handler {
	return a.middleware(a.auth.IdentifyForLogout, false, nil)
}

// Authorize requires the identity role to be one of roles. It must run
// after Authenticate.
func (a *RouteAuthenticator) Authorize(roles ...UserRole) fiber.Handler {
	allowed := NewRoleSet(roles...)
	required := make([]string, 0, len(roles))
	for _, role := range roles {
		if name := NormalizeRole(string(role)); name != "" {
			required = append(required, name)
		}
	}

	return func(c *fiber.Ctx) error {
		identity, ok := GetIdentity(c)
		if !ok {
			return ErrMissingToken
		}

		actual := NormalizeRole(string(identity.Role))
		if !allowed.Allows(actual) {
			a.Logger.Warn("role %q denied on %s, requires one of %v", actual, c.Path(), required)
			return NewRoleNotAllowedError(required, actual)
		}

		return c.Next()
	}
}

func (a *RouteAuthenticator) middleware(authenticate func(ctx context.Context, token string) (*AuthenticatedIdentity, error), optional bool, listeners []ValidationListener) fiber.Handler {
	jwtCfg := jwtware.Config{
		ContextKey:  DefaultContextKey,
		TokenLookup: a.tokenLookup(),
		AuthScheme:  a.cfg.GetAuthScheme(),
		Optional:    optional,
		Authenticator: func(ctx context.Context, token string) (any, error) {
			return authenticate(ctx, token)
		},
		ContextEnricher: ContextEnricherAdapter,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if goerrors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				return ErrMissingToken
			}
			return err
		},
	}
	RegisterValidationListeners(&jwtCfg, listeners...)
	return jwtware.New(jwtCfg)
}

func (a *RouteAuthenticator) tokenLookup() string {
	if lookup := a.cfg.GetTokenLookup(); lookup != "" {
		return lookup
	}
	return "header:" + fiber.HeaderAuthorization + ",cookie:" + a.cfg.GetAccessCookieName()
}

// RefreshTokenExtractors looks for a refresh token in the body, the
// refresh cookie and the X-Refresh-Token header, in that order.
func (a *RouteAuthenticator) RefreshTokenExtractors() []jwtware.JWTExtractor {
	lookup := "body:refreshToken,cookie:" + a.cfg.GetRefreshCookieName() + ",header:" + RefreshTokenHeader
	return jwtware.GetExtractors(lookup, "")
}

// SetTokenCookies writes the token cookies with a max age equal to the
// token TTL.
func (a *RouteAuthenticator) SetTokenCookies(c *fiber.Ctx, result *AuthResult) {
	if result == nil || result.Tokens == nil {
		return
	}

	if result.Tokens.AccessToken != "" {
		a.setCookie(c, a.cfg.GetAccessCookieName(), result.Tokens.AccessToken, result.AccessTTL)
	}

	if result.Tokens.RefreshToken != "" {
		a.setCookie(c, a.cfg.GetRefreshCookieName(), result.Tokens.RefreshToken, result.RefreshTTL)
	}
}

// ClearTokenCookies expires both token cookies
func (a *RouteAuthenticator) ClearTokenCookies(c *fiber.Ctx) {
	a.cookieDel(c, a.cfg.GetAccessCookieName())
	a.cookieDel(c, a.cfg.GetRefreshCookieName())
}

func (a *RouteAuthenticator) setCookie(c *fiber.Ctx, name, val string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    val,
		Path:     "/",
		Domain:   a.cfg.GetCookieDomain(),
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *RouteAuthenticator) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   a.cfg.GetCookieDomain(),
		MaxAge:   -1,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cfg.GetSecureCookies(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
