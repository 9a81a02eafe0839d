package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/activitymap"
	"github.com/goliatone/go-clinic-auth/config"
	"github.com/goliatone/go-clinic-auth/database"
	"github.com/goliatone/go-clinic-auth/logger"
	"github.com/goliatone/go-clinic-auth/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	slog       *slog.Logger
	logger     *logger.Adapter
	db         *database.DB
	registry   *prometheus.Registry
	collector  *metrics.Collector
	auther     *auth.Auther
	routes     *auth.RouteAuthenticator
	controller *auth.AuthController
	srv        *fiber.App
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	slogger := logger.SetupDefault(os.Stdout, cfg.LogLevel)

	app := &App{
		config: cfg,
		slog:   slogger,
		logger: logger.NewAdapter(slogger),
	}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		slogger.Error("database setup failed", "error", err)
		os.Exit(1)
	}

	WithMetrics(app)
	WithAuth(app)
	WithHTTPServer(app)

	purgeCtx, stopPurge := context.WithCancel(ctx)
	purger := auth.NewSessionPurger(
		app.auther.Repositories().IssuedTokens(),
		cfg.Auth.SessionPurgeInterval.Duration,
		app.logger.With("component", "purger"),
	)
	go purger.Run(purgeCtx)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		slogger.Info("listening", "addr", addr, "env", cfg.Env, "driver", app.db.Driver())
		if err := app.srv.Listen(addr); err != nil {
			slogger.Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	slogger.Info("shutting down", "signal", sig.String())

	stopPurge()
	if err := app.srv.ShutdownWithTimeout(shutdownTimeout); err != nil {
		slogger.Error("server shutdown failed", "error", err)
	}
	app.controller.Close()
	if err := app.db.Close(); err != nil {
		slogger.Error("database close failed", "error", err)
	}
}

// WithPersistence opens the pool, verifies the connection and prepares
// the schema.
func WithPersistence(ctx context.Context, app *App) error {
	db, err := database.Open(database.Options{
		Driver:         app.config.Database.Driver,
		DSN:            app.config.Database.ConnectionString(),
		ConnectTimeout: app.config.Database.ConnectTimeout.Duration,
		MaxOpenConns:   app.config.Database.MaxOpenConns,
	})
	if err != nil {
		return err
	}

	if err := db.Connect(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := db.Prepare(ctx); err != nil {
		_ = db.Close()
		return err
	}

	app.db = db
	return nil
}

func WithMetrics(app *App) {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.collector = metrics.NewCollector(app.registry)
}

func WithAuth(app *App) {
	repo := auth.NewRepositoryManager(app.db.DB)
	repo.MustValidate()

	app.auther = auth.NewAuthenticator(repo, app.config).
		WithLogger(app.logger.With("component", "auth")).
		WithMetrics(app.collector).
		WithActivitySink(activitymap.NewSlogSink(app.slog.With("component", "activity")))

	if app.config.IsProduction() {
		app.logger.Warn("no notifier configured, password reset and verification messages are not delivered")
	}

	app.routes = auth.NewRouteAuthenticator(app.auther, app.config).
		WithLogger(app.logger.With("component", "middleware"))

	app.controller = auth.NewAuthController(app.auther, app.routes,
		auth.WithControllerLogger(app.logger.With("component", "controller")),
	)
}

func WithHTTPServer(app *App) {
	responder := &auth.ErrorResponder{
		Logger:     app.logger.With("component", "http"),
		Production: app.config.IsProduction(),
		Metrics:    app.collector,
	}

	app.srv = fiber.New(fiber.Config{
		AppName:               "clinic-auth",
		ErrorHandler:          responder.Handle,
		DisableStartupMessage: true,
	})

	app.srv.Get("/healthz", func(c *fiber.Ctx) error {
		if err := app.db.Connect(c.UserContext()); err != nil {
			return err
		}
		return auth.SendSuccess(c, fiber.StatusOK, "ok", nil)
	})

	app.srv.Get("/metrics", metrics.FiberHandler(app.registry))

	auth.RegisterAuthRoutes(app.srv.Group("/auth"), app.controller)
	auth.RegisterUserRoutes(app.srv.Group("/users"), auth.NewUsersController(app.auther, app.routes))
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
