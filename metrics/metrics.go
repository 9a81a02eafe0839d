// Package metrics exposes auth activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	auth "github.com/goliatone/go-clinic-auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records auth outcomes
type Collector struct {
	logins        *prometheus.CounterVec
	loginLatency  prometheus.Histogram
	refreshes     *prometheus.CounterVec
	logouts       *prometheus.CounterVec
	registrations *prometheus.CounterVec
	rejections    *prometheus.CounterVec
}

var _ auth.MetricsRecorder = (*Collector)(nil)

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_auth_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		loginLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinic_auth_login_duration_seconds",
			Help:    "Time spent verifying credentials and issuing tokens",
			Buckets: prometheus.DefBuckets,
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_auth_refreshes_total",
			Help: "Refresh token rotations by result",
		}, []string{"result"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_auth_logouts_total",
			Help: "Session revocations by scope",
		}, []string{"scope"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_auth_registrations_total",
			Help: "Registered users by role",
		}, []string{"role"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_auth_rejections_total",
			Help: "Rejected requests by error code",
		}, []string{"code"}),
	}

	reg.MustRegister(
		c.logins,
		c.loginLatency,
		c.refreshes,
		c.logouts,
		c.registrations,
		c.rejections,
	)

	return c
}

func (c *Collector) ObserveLogin(result string, elapsed time.Duration) {
	c.logins.WithLabelValues(result).Inc()
	c.loginLatency.Observe(elapsed.Seconds())
}

func (c *Collector) IncRefresh(result string) {
	c.refreshes.WithLabelValues(result).Inc()
}

func (c *Collector) IncLogout(scope string) {
	c.logouts.WithLabelValues(scope).Inc()
}

func (c *Collector) IncRegistration(role string) {
	c.registrations.WithLabelValues(role).Inc()
}

func (c *Collector) IncRejection(code string) {
	if code == "" {
		code = "unknown"
	}
	c.rejections.WithLabelValues(code).Inc()
}

// Handler returns the scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// FiberHandler serves Handler through fiber
func FiberHandler(gatherer prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(Handler(gatherer))
}
