package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-clinic-auth/middleware/jwtware"
	"github.com/goliatone/go-clinic-auth/middleware/ratelimit"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const forgotPasswordMessage = "If an account exists for that email, a password reset link has been sent"

// AuthControllerRoutes lists the paths served by the controller, relative
// to the router it is mounted on.
type AuthControllerRoutes struct {
	Register           string
	Login              string
	RefreshToken       string
	Logout             string
	RevokeRefreshToken string
	ForgotPassword     string
	ResetPassword      string
	VerifyEmail        string
	VerifyAccount      string
	ChangeStatus       string
	Me                 string
}

// AuthController serves the JSON auth endpoints
type AuthController struct {
	Logger     Logger
	Auther     *Auther
	Middleware *RouteAuthenticator
	Routes     *AuthControllerRoutes

	RegisterLimiter       *ratelimit.Limiter
	LoginLimiter          *ratelimit.Limiter
	ForgotPasswordLimiter *ratelimit.Limiter
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithRegisterLimiter replaces the registration limiter
func WithRegisterLimiter(limiter *ratelimit.Limiter) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if limiter != nil {
			c.RegisterLimiter = limiter
		}
		return c
	}
}

// WithLimiters replaces the login and forgot password limiters
func WithLimiters(login, forgot *ratelimit.Limiter) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if login != nil {
			c.LoginLimiter = login
		}
		if forgot != nil {
			c.ForgotPasswordLimiter = forgot
		}
		return c
	}
}

func NewAuthController(auther *Auther, middleware *RouteAuthenticator, opts ...AuthControllerOption) *AuthController {
	if auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if middleware == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	c := &AuthController{
		Logger:     defLogger{},
		Auther:     auther,
		Middleware: middleware,
		Routes: &AuthControllerRoutes{
			Register:           "/register",
			Login:              "/login",
			RefreshToken:       "/refresh-token",
			Logout:             "/logout",
			RevokeRefreshToken: "/revoke-refresh-token",
			ForgotPassword:     "/forgot-password",
			ResetPassword:      "/reset-password",
			VerifyEmail:        "/verify-email",
			VerifyAccount:      "/verify-account/:id",
			ChangeStatus:       "/users/:id/status",
			Me:                 "/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.RegisterLimiter == nil {
		c.RegisterLimiter = ratelimit.New(c.limiterConfig(ratelimit.RegisterConfig()))
	}

	if c.LoginLimiter == nil {
		c.LoginLimiter = ratelimit.New(c.limiterConfig(ratelimit.LoginConfig()))
	}

	if c.ForgotPasswordLimiter == nil {
		c.ForgotPasswordLimiter = ratelimit.New(c.limiterConfig(ratelimit.ForgotPasswordConfig()))
	}

	return c
}

func (a *AuthController) limiterConfig(cfg ratelimit.Config) ratelimit.Config {
	cfg.LimitReached = func(c *fiber.Ctx) error {
		return ErrTooManyRequests
	}
	cfg.OnLimit = func(name, key string) {
		a.Logger.Warn("rate limit %s exceeded for %s", name, key)
		a.Auther.Metrics().IncRejection(TextCodeTooManyRequests)
	}
	return cfg
}

// Close stops the limiter cleanup goroutines
func (a *AuthController) Close() {
	a.RegisterLimiter.Close()
	a.LoginLimiter.Close()
	a.ForgotPasswordLimiter.Close()
}

// RegisterAuthRoutes mounts the auth endpoints on router, usually app.Group("/auth")
func RegisterAuthRoutes(router fiber.Router, controller *AuthController) {
	mw := controller.Middleware
	routes := controller.Routes

	router.Post(routes.Register, controller.RegisterLimiter.Handler(), controller.Register)
	router.Post(routes.Login, controller.LoginLimiter.Handler(), controller.Login)
	router.Post(routes.RefreshToken, controller.RefreshToken)
	router.Post(routes.Logout, mw.AuthenticateForLogout(), controller.Logout)
	router.Post(routes.RevokeRefreshToken, mw.Authenticate(), controller.RevokeRefreshToken)
	router.Post(routes.ForgotPassword, controller.ForgotPasswordLimiter.Handler(), controller.ForgotPassword)
	router.Post(routes.ResetPassword, controller.ResetPassword)
	router.Get(routes.VerifyEmail, controller.VerifyEmail)
	router.Post(routes.VerifyAccount, mw.Authenticate(), mw.Authorize(RoleStaff, RoleAdmin), controller.VerifyAccount)
	router.Patch(routes.ChangeStatus, mw.Authenticate(), mw.Authorize(RoleAdmin), controller.ChangeStatus)
	router.Get(routes.Me, mw.Authenticate(), controller.Me)
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	payload := new(RegisterUserMessage)
	if err := c.BodyParser(payload); err != nil {
		return badRequest(err)
	}

	result, err := a.Auther.Register(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	a.Middleware.SetTokenCookies(c, result)

	return SendSuccess(c, fiber.StatusCreated, "User registered successfully", fiber.Map{
		"user":    result.User,
		"profile": result.Profile,
		"token":   result.Tokens.AccessToken,
		"tokens":  result.Tokens,
	})
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(LoginMessage)
	if err := c.BodyParser(payload); err != nil {
		return badRequest(err)
	}

	result, err := a.Auther.Login(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	a.Middleware.SetTokenCookies(c, result)

	return SendSuccess(c, fiber.StatusOK, "Login successful", fiber.Map{
		"user":         result.User,
		"profile":      result.Profile,
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
		"tokens":       result.Tokens,
	})
}

func (a *AuthController) RefreshToken(c *fiber.Ctx) error {
	token, err := jwtware.ExtractRawTokenFromContext(c, a.Middleware.RefreshTokenExtractors())
	if err != nil {
		return ErrMissingToken
	}

	result, err := a.Auther.RefreshToken(c.UserContext(), token)
	if err != nil {
		if goerrors.Is(err, ErrInvalidRefreshToken) || goerrors.Is(err, ErrUserInactiveOrMissing) {
			a.Middleware.ClearTokenCookies(c)
		}
		return err
	}

	a.Middleware.SetTokenCookies(c, result)

	return SendSuccess(c, fiber.StatusOK, "Token refreshed successfully", fiber.Map{
		"user":         result.User,
		"profile":      result.Profile,
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
		"tokens":       result.Tokens,
	})
}

// Logout revokes the presented access token and, when it belongs to the
// same user, the refresh token. Cookies are always cleared.
func (a *AuthController) Logout(c *fiber.Ctx) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return ErrMissingToken
	}

	userID, err := identity.UserUUID()
	if err != nil {
		return ErrInvalidToken
	}

	refresh, _ := jwtware.ExtractRawTokenFromContext(c, a.Middleware.RefreshTokenExtractors())

	if err := a.Auther.Logout(c.UserContext(), userID, identity.Token, refresh); err != nil {
		return err
	}

	a.Middleware.ClearTokenCookies(c)

	return SendSuccess(c, fiber.StatusOK, "Logged out successfully", nil)
}

// RevokeRefreshToken logs the user out of every device
func (a *AuthController) RevokeRefreshToken(c *fiber.Ctx) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return ErrMissingToken
	}

	userID, err := identity.UserUUID()
	if err != nil {
		return ErrInvalidToken
	}

	revoked, err := a.Auther.LogoutAll(c.UserContext(), userID)
	if err != nil {
		return err
	}

	a.Middleware.ClearTokenCookies(c)

	return SendSuccess(c, fiber.StatusOK, "Logged out from all devices", fiber.Map{
		"revokedSessions": revoked,
	})
}

// ForgotPassword always answers with the same message unless the input
// is malformed.
func (a *AuthController) ForgotPassword(c *fiber.Ctx) error {
	payload := new(ForgotPasswordMessage)
	if err := c.BodyParser(payload); err != nil {
		return badRequest(err)
	}

	if err := a.Auther.ForgotPassword(c.UserContext(), *payload); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryValidation {
			return err
		}
		a.Logger.Error("forgot password failed: %v", err)
	}

	return SendSuccess(c, fiber.StatusOK, forgotPasswordMessage, nil)
}

func (a *AuthController) ResetPassword(c *fiber.Ctx) error {
	payload := new(ResetPasswordMessage)
	if err := c.BodyParser(payload); err != nil {
		return badRequest(err)
	}

	if err := a.Auther.ResetPassword(c.UserContext(), *payload); err != nil {
		return err
	}

	a.Middleware.ClearTokenCookies(c)

	return SendSuccess(c, fiber.StatusOK, "Password has been reset, please log in again", nil)
}

func (a *AuthController) VerifyEmail(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return ErrMissingToken
	}

	user, err := a.Auther.VerifyEmail(c.UserContext(), token)
	if err != nil {
		return err
	}

	return SendSuccess(c, fiber.StatusOK, "Email verified successfully", fiber.Map{
		"user": user,
	})
}

func (a *AuthController) VerifyAccount(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrUserNotFound
	}

	user, err := a.Auther.VerifyUserAccount(c.UserContext(), actorFromIdentity(c), id)
	if err != nil {
		return err
	}

	return SendSuccess(c, fiber.StatusOK, "Account verified successfully", fiber.Map{
		"user": user,
	})
}

func (a *AuthController) ChangeStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrUserNotFound
	}

	payload := new(ChangeStatusMessage)
	if err := c.BodyParser(payload); err != nil {
		return badRequest(err)
	}

	result, err := a.Auther.ChangeStatus(c.UserContext(), actorFromIdentity(c), id, *payload)
	if err != nil {
		return err
	}

	return SendSuccess(c, fiber.StatusOK, "User status updated", fiber.Map{
		"user":            result.User,
		"from":            result.From,
		"to":              result.To,
		"revokedSessions": result.RevokedSessions,
	})
}

func (a *AuthController) Me(c *fiber.Ctx) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return ErrMissingToken
	}

	return SendSuccess(c, fiber.StatusOK, "Authenticated", fiber.Map{
		"user": identity,
	})
}

func actorFromIdentity(c *fiber.Ctx) ActorRef {
	identity, ok := GetIdentity(c)
	if !ok {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: identity.ID, Type: string(identity.Role)}
}

func badRequest(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body").
		WithCode(fiber.StatusBadRequest).
		WithTextCode(TextCodeValidation)
}
