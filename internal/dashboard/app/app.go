package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpapi "github.com/ecobalance/dashboard/internal/dashboard/http"
	"github.com/ecobalance/dashboard/internal/dashboard/service"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
	"github.com/ecobalance/dashboard/internal/dashboard/store/drivers/postgres"
	"github.com/ecobalance/dashboard/internal/dashboard/store/drivers/sqlite"
	"github.com/ecobalance/dashboard/internal/dashboard/telemetry"
	"github.com/ecobalance/dashboard/pkg/cryptox"
	"github.com/ecobalance/dashboard/pkg/httpx"
	"github.com/ecobalance/dashboard/pkg/jwtx"
	"github.com/ecobalance/dashboard/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

const sessionIssuer = "ecobalance-dashboard"

// Application owns the dashboard's dependencies and server lifecycle.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	authService         *service.AuthService
	sessionService      *service.SessionService
	ingestService       *service.IngestService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New builds the application: database and migrations, services, router.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "ecobalance-dashboard",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.generatedSecret {
		app.logger.Warn("SESSION_SECRET not set, using a random one; sessions will not survive a restart")
	}
	if cfg.InsecureCookiesInProd() {
		app.logger.Warn("SESSION_COOKIE_SECURE is off in prod; session cookies will be sent over plain HTTP")
	}

	httpx.SetTrustProxy(cfg.TrustProxy)

	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the routed handler, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Close releases the database without touching the server. Use it for an
// Application that was never Run.
func (app *Application) Close() error { return app.db.Close() }

// Run starts the server and blocks until it fails or a shutdown signal arrives.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("dashboard starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"channel", app.cfg.Telemetry.ChannelID,
		"timezone", app.cfg.DisplayTimezone,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.db.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests within the grace period, then stops
// housekeeping and closes the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down dashboard...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("dashboard stopped")
	return nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// sqliteDSN turns a file path into a modernc DSN with WAL and a busy
// timeout on every pooled connection. DSNs already in URI form are kept.
func sqliteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// initDatabase opens Postgres for postgres:// URLs and SQLite otherwise,
// then applies migrations.
func (app *Application) initDatabase() error {
	var (
		db     store.Store
		driver string
		err    error
	)

	if isPostgresURL(app.cfg.DatabaseURL) {
		driver = "postgres"
		db, err = postgres.NewStore(app.cfg.DatabaseURL)
	} else {
		driver = "sqlite"
		db, err = sqlite.NewStore(sqliteDSN(app.cfg.DatabaseURL))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", driver)
	return nil
}

func (app *Application) initServices() {
	app.authService = &service.AuthService{
		Store:  app.db,
		Issuer: app.cfg.MFAIssuer,
	}

	app.sessionService = &service.SessionService{
		Store:          app.db,
		Auth:           app.authService,
		TTL:            app.cfg.SessionTTL,
		MaxMFAAttempts: app.cfg.MFAMaxAttempts,
	}

	feed := telemetry.NewClient(telemetry.Config{
		BaseURL:    app.cfg.Telemetry.BaseURL,
		ChannelID:  app.cfg.Telemetry.ChannelID,
		ReadAPIKey: app.cfg.Telemetry.ReadAPIKey,
		Timezone:   app.cfg.Telemetry.Timezone,
		Results:    app.cfg.Telemetry.Results,
		Timeout:    app.cfg.Telemetry.Timeout,
	}, nil)

	app.ingestService = &service.IngestService{
		Source: feed,
		Store:  app.db,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.AuthService = app.authService
	router.SessionService = app.sessionService
	router.IngestService = app.ingestService
	router.Cookies = &httpapi.SessionCookies{
		Signer: jwtx.NewSessionSigner(app.cfg.SessionSecret, sessionIssuer),
		Secure: app.cfg.SessionCookieSecure,
	}
	router.DisplayLocation = app.cfg.DisplayLocation()
	router.RefreshInterval = app.cfg.RefreshInterval
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
