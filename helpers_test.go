package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

type testConfig struct {
	signingKey        string
	accessTTL         time.Duration
	refreshTTL        time.Duration
	rememberTTL       time.Duration
	verificationTTL   time.Duration
	resetTTL          time.Duration
	secureCookies     bool
	accessCookieName  string
	refreshCookieName string
}

var _ auth.Config = (*testConfig)(nil)

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:        testSigningKey,
		accessTTL:         15 * time.Minute,
		refreshTTL:        7 * 24 * time.Hour,
		rememberTTL:       30 * 24 * time.Hour,
		verificationTTL:   24 * time.Hour,
		resetTTL:          24 * time.Hour,
		accessCookieName:  "accessToken",
		refreshCookieName: "refreshToken",
	}
}

func (c *testConfig) GetSigningKey() string { return c.signingKey }
func (c *testConfig) GetIssuer() string { return "clinic-auth" }
func (c *testConfig) GetAudience() []string { return []string{"clinic"} }
func (c *testConfig) GetAccessTokenTTL() time.Duration { return c.accessTTL }
func (c *testConfig) GetRefreshTokenTTL() time.Duration { return c.refreshTTL }
func (c *testConfig) GetRememberMeTokenTTL() time.Duration { return c.rememberTTL }
func (c *testConfig) GetVerificationTokenTTL() time.Duration { return c.verificationTTL }
func (c *testConfig) GetPasswordResetTTL() time.Duration { return c.resetTTL }
func (c *testConfig) GetPasswordHashCost() int { return bcrypt.MinCost }
func (c *testConfig) GetTokenLookup() string { return "" }
func (c *testConfig) GetAuthScheme() string { return "Bearer" }
func (c *testConfig) GetAccessCookieName() string { return c.accessCookieName }
func (c *testConfig) GetRefreshCookieName() string { return c.refreshCookieName }
func (c *testConfig) GetCookieDomain() string { return "" }
func (c *testConfig) GetSecureCookies() bool { return c.secureCookies }

// recordingNotifier keeps the last messages sent per user email
type recordingNotifier struct {
	mu            sync.Mutex
	resets        map[string]*auth.PasswordReset
	verifications map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		resets:        map[string]*auth.PasswordReset{},
		verifications: map[string]string{},
	}
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, user *auth.User, reset *auth.PasswordReset) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[user.Email] = reset
	return nil
}

func (n *recordingNotifier) SendEmailVerification(_ context.Context, user *auth.User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications[user.Email] = token
	return nil
}

func (n *recordingNotifier) reset(email string) *auth.PasswordReset {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resets[email]
}

func (n *recordingNotifier) verification(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verifications[email]
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

type testEnv struct {
	cfg      *testConfig
	db       *database.DB
	repo     auth.RepositoryManager
	auther   *auth.Auther
	notifier *recordingNotifier
	sink     *capturingSink
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Options{
		Driver: database.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, db.Connect(ctx))
	require.NoError(t, db.Prepare(ctx))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		cfg:      newTestConfig(),
		db:       newTestDB(t),
		notifier: newRecordingNotifier(),
		sink:     &capturingSink{},
	}
	env.repo = auth.NewRepositoryManager(env.db.DB)
	env.auther = auth.NewAuthenticator(env.repo, env.cfg).
		WithLogger(nopLogger{}).
		WithNotifier(env.notifier).
		WithActivitySink(env.sink).
		WithSynchronousNotifications()
	return env
}

func (e *testEnv) register(t *testing.T, email, password string, role auth.UserRole) *auth.AuthResult {
	t.Helper()
	result, err := e.auther.Register(context.Background(), auth.RegisterUserMessage{
		Email:     email,
		Password:  password,
		Role:      string(role),
		FirstName: "Test",
		LastName:  "User",
	})
	require.NoError(t, err)
	return result
}

// createUser inserts a user directly, for roles public registration rejects
func (e *testEnv) createUser(t *testing.T, email, password string, role auth.UserRole) *auth.User {
	t.Helper()
	hash, err := auth.NewPasswordHasher(bcrypt.MinCost).Hash(password)
	require.NoError(t, err)
	user, err := e.repo.Users().Create(context.Background(), &auth.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    "Test",
		LastName:     "User",
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) login(t *testing.T, email, password string) *auth.AuthResult {
	t.Helper()
	result, err := e.auther.Login(context.Background(), auth.LoginMessage{Email: email, Password: password})
	require.NoError(t, err)
	return result
}

func (e *testEnv) newApp(t *testing.T, opts ...auth.AuthControllerOption) *fiber.App {
	t.Helper()

	mw := auth.NewRouteAuthenticator(e.auther, e.cfg).WithLogger(nopLogger{})
	controller := auth.NewAuthController(e.auther, mw, append([]auth.AuthControllerOption{
		auth.WithControllerLogger(nopLogger{}),
	}, opts...)...)
	t.Cleanup(controller.Close)

	app := fiber.New(fiber.Config{ErrorHandler: auth.NewErrorHandler(nopLogger{}, false)})
	auth.RegisterAuthRoutes(app.Group("/auth"), controller)
	auth.RegisterUserRoutes(app.Group("/users"), auth.NewUsersController(e.auther, mw))
	return app
}

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	ErrorCode  string          `json:"errorCode"`
}

type request struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
	cookies []*http.Cookie
}

func doRequest(t *testing.T, app *fiber.App, r request) (*http.Response, envelope) {
	t.Helper()

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if r.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+r.token)
	}
	for key, value := range r.headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range r.cookies {
		req.AddCookie(cookie)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var env envelope
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
