package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/facilities-maintenance/internal/audit"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/call"
	"github.com/frahmantamala/facilities-maintenance/internal/calltype"
	"github.com/frahmantamala/facilities-maintenance/internal/notification"
	"github.com/frahmantamala/facilities-maintenance/internal/transport"
	"github.com/frahmantamala/facilities-maintenance/internal/transport/middleware"
	"github.com/frahmantamala/facilities-maintenance/internal/transport/rest"
	"github.com/frahmantamala/facilities-maintenance/internal/user"
	"github.com/frahmantamala/facilities-maintenance/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

func startHTTPServer() error {
	lg := logger.LoggerWrapper()
	cfg := appConfig

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	app.StartNotifications()

	router := chi.NewRouter()
	if err := setupRoutes(ctx, router, app); err != nil {
		app.Close(context.Background())
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		lg.Info("starting HTTP server",
			"address", addr,
			"delivery_mode", cfg.Notification.DeliveryMode,
			"session_backend", cfg.Session.Backend)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		lg.Info("received signal, shutting down")
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			app.Close(context.Background())
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown error", "error", err)
	}
	app.Close(shutdownCtx)

	lg.Info("server stopped")
	return nil
}

func setupRoutes(ctx context.Context, router *chi.Mux, app *App) error {
	cfg := app.Config
	lg := app.Logger

	checks := map[string]rest.CheckFunc{
		"postgres": app.DB.PingContext,
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}
	}

	loginLimiter := middleware.NewRateLimiter(float64(cfg.Server.LoginRatePerSec), cfg.Server.LoginBurst, lg)
	go loginLimiter.Sweep(ctx, time.Minute)

	opts := rest.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    cfg.Server.OpenAPIPath,
		LoginLimiter:   loginLimiter,
	}
	if cfg.Observability.Metrics.Enabled {
		opts.MetricsPath = cfg.Observability.Metrics.Path
	}
	if _, err := os.Stat(cfg.Server.OpenAPIPath); err == nil {
		validator, err := middleware.NewRequestValidator(cfg.Server.OpenAPIPath, rest.APIPrefix, lg)
		if err != nil {
			return fmt.Errorf("failed to load request validator: %w", err)
		}
		opts.Validator = validator
	} else {
		lg.Warn("OpenAPI document not found; request validation disabled", "path", cfg.Server.OpenAPIPath)
		opts.OpenAPIPath = ""
	}

	handlers := rest.Handlers{
		Health:       rest.NewHealthHandler(transport.NewBaseHandler(lg), checks),
		Auth:         auth.NewHandler(app.Auth, lg),
		User:         user.NewHandler(app.Users, lg),
		Call:         call.NewHandler(app.Calls, lg),
		CallType:     calltype.NewHandler(transport.NewBaseHandler(lg), app.CallTypes),
		Notification: notification.NewHandler(app.Coordinators, app.Dispatcher, lg),
		Audit:        audit.NewHandler(app.Audit, lg),
	}

	rest.RegisterAllRoutes(router, handlers, opts, lg)
	logRoutes(router, lg)
	return nil
}

func logRoutes(router chi.Routes, lg *slog.Logger) {
	_ = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		lg.Debug("route registered", "method", method, "route", route)
		return nil
	})
}
