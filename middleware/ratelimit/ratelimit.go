// Package ratelimit provides per client token bucket limits for fiber routes.
package ratelimit

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// Config holds the limit for one group of routes
type Config struct {
	// Name labels log lines and metrics
	Name string
	// Max requests allowed per Window
	Max    int
	Window time.Duration
	// CleanupInterval controls how often idle clients are dropped
	CleanupInterval time.Duration
	// KeyGenerator identifies the client, the remote IP by default
	KeyGenerator func(c *fiber.Ctx) string
	// LimitReached produces the error returned for rejected requests
	LimitReached func(c *fiber.Ctx) error
	// OnLimit is notified for every rejected request
	OnLimit func(name, key string)
	Now     func() time.Time
}

// LoginConfig allows 5 attempts per 15 minutes per IP
func LoginConfig() Config {
	return Config{Name: "login", Max: 5, Window: 15 * time.Minute}
}

// RegisterConfig allows 5 registrations per 15 minutes per IP
func RegisterConfig() Config {
	return Config{Name: "register", Max: 5, Window: 15 * time.Minute}
}

// ForgotPasswordConfig allows 3 requests per hour per IP
func ForgotPasswordConfig() Config {
	return Config{Name: "forgot_password", Max: 3, Window: time.Hour}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter keeps one token bucket per client key
type Limiter struct {
	config Config
	rate   rate.Limit

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a limiter and starts the cleanup of idle clients
func New(config Config) *Limiter {
	if config.Max <= 0 {
		config.Max = 5
	}
	if config.Window <= 0 {
		config.Window = 15 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = config.Window
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}
	if config.LimitReached == nil {
		config.LimitReached = func(c *fiber.Ctx) error {
			return fiber.ErrTooManyRequests
		}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	l := &Limiter{
		config:  config,
		rate:    rate.Limit(float64(config.Max) / config.Window.Seconds()),
		clients: make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Close stops the cleanup goroutine
func (l *Limiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// Handler returns the fiber middleware
func (l *Limiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := l.config.KeyGenerator(c)
		if l.Allow(key) {
			return c.Next()
		}

		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(l.retryAfter()))
		if l.config.OnLimit != nil {
			l.config.OnLimit(l.config.Name, key)
		}
		return l.config.LimitReached(c)
	}
}

// Allow consumes one token for key
func (l *Limiter) Allow(key string) bool {
	now := l.config.Now()
	return l.get(key, now).AllowN(now, 1)
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.clients[key]; ok {
		cl.lastAccess = now
		return cl.limiter
	}

	limiter := rate.NewLimiter(l.rate, l.config.Max)
	l.clients[key] = &clientLimiter{
		limiter:    limiter,
		lastAccess: now,
	}
	return limiter
}

// seconds until one token is refilled
func (l *Limiter) retryAfter() int {
	seconds := int(math.Ceil(l.config.Window.Seconds() / float64(l.config.Max)))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// Cleanup drops clients idle for longer than the window, their bucket
// is full again by then.
func (l *Limiter) Cleanup() {
	now := l.config.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, cl := range l.clients {
		if now.Sub(cl.lastAccess) > l.config.Window {
			delete(l.clients, key)
		}
	}
}
