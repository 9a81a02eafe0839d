package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-clinic-auth/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.ObserveLogin("success", 20*time.Millisecond)
	c.ObserveLogin("failure", 30*time.Millisecond)
	c.ObserveLogin("failure", 10*time.Millisecond)
	c.IncRefresh("invalid")
	c.IncLogout("all")
	c.IncRegistration("doctor")
	c.IncRejection("")

	count, err := testutil.GatherAndCount(reg, "clinic_auth_logins_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "clinic_auth_login_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "clinic_auth_rejections_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFiberHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.IncRegistration("patient")

	app := fiber.New()
	app.Get("/metrics", metrics.FiberHandler(reg))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `clinic_auth_registrations_total{role="patient"} 1`)
}
