package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-clinic-auth/middleware/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestLimiterAllowsBurstThenRejects(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := ratelimit.LoginConfig()
	cfg.Now = clock.Now
	l := ratelimit.New(cfg)
	defer l.Close()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "attempt %d", i+1)
	}
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "other clients keep their own bucket")

	clock.Advance(3*time.Minute + time.Second)
	assert.True(t, l.Allow("1.2.3.4"), "one token refills every three minutes")
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestLimiterCleanup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := ratelimit.ForgotPasswordConfig()
	cfg.Now = clock.Now
	l := ratelimit.New(cfg)
	defer l.Close()

	l.Allow("a")
	l.Allow("b")
	require.Equal(t, 2, l.Len())

	clock.Advance(30 * time.Minute)
	l.Allow("b")

	clock.Advance(31 * time.Minute)
	l.Cleanup()
	assert.Equal(t, 1, l.Len())
}

func TestLimiterHandler(t *testing.T) {
	var limited []string
	cfg := ratelimit.ForgotPasswordConfig()
	cfg.OnLimit = func(name, key string) {
		limited = append(limited, name+":"+key)
	}
	l := ratelimit.New(cfg)
	defer l.Close()

	app := fiber.New()
	app.Post("/forgot", l.Handler(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/forgot", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/forgot", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1200", resp.Header.Get("Retry-After"))
	assert.Len(t, limited, 1)
}
