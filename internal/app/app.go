// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gatherly/gatherly/internal/auth"
	"github.com/gatherly/gatherly/internal/config"
	"github.com/gatherly/gatherly/internal/notifications"
	"github.com/gatherly/gatherly/internal/notifications/email"
	notificationspostgres "github.com/gatherly/gatherly/internal/notifications/postgres"
	"github.com/gatherly/gatherly/internal/pkg/ctxlog"
	"github.com/gatherly/gatherly/internal/pkg/httputil"
	"github.com/gatherly/gatherly/internal/pkg/metrics"
	"github.com/gatherly/gatherly/internal/pkg/postgres"
	"github.com/gatherly/gatherly/internal/reminders"
	reminderspostgres "github.com/gatherly/gatherly/internal/reminders/postgres"
	"github.com/gatherly/gatherly/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config            *config.Config
	logger            *slog.Logger
	db                *pgxpool.Pool
	server            *http.Server
	metricsServer     *http.Server
	backgroundCancel  context.CancelFunc
	deliveryWorker    *notifications.Worker
	reminderScheduler *reminders.Scheduler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Database.Migrate {
		if err := postgres.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())

	app := &App{
		config:           cfg,
		logger:           logger,
		db:               db,
		backgroundCancel: backgroundCancel,
	}

	go app.collectDBMetrics(backgroundCtx)

	router, err := app.setupRouter(backgroundCtx)
	if err != nil {
		db.Close()
		backgroundCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.backgroundCancel()

	// Stop background loops before closing the pool
	if a.reminderScheduler != nil {
		a.reminderScheduler.Stop()
	}
	if a.deliveryWorker != nil {
		a.deliveryWorker.Stop()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo notifications.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.GetQueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			notifications.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// DeliveryWorker returns the delivery worker instance.
// Used in tests to access worker state. Returns nil if the worker is disabled.
func (a *App) DeliveryWorker() *notifications.Worker {
	return a.deliveryWorker
}

// ReminderScheduler returns the reminder scheduler instance.
func (a *App) ReminderScheduler() *reminders.Scheduler {
	return a.reminderScheduler
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	notificationsRepo := notificationspostgres.NewRepository(a.db)
	notificationsService := notifications.NewService(notificationsRepo)
	notificationsHandler := notifications.NewHandler(notificationsService)

	remindersRepo := reminderspostgres.NewRepository(a.db, notificationsRepo)
	scheduler := reminders.NewScheduler(reminders.Config{
		Interval:    a.config.Reminders.Interval,
		Window:      a.config.Reminders.Window,
		LinkBaseURL: a.config.Reminders.LinkBaseURL,
	}, remindersRepo)
	remindersHandler := reminders.NewHandler(scheduler)

	if a.config.Reminders.Enabled {
		a.reminderScheduler = scheduler
		a.reminderScheduler.Start(ctx)
	}

	slog.Info("notifications configured",
		"worker_enabled", a.config.Notifications.WorkerEnabled,
		"email_enabled", a.config.Notifications.Email.Enabled,
		"reminders_enabled", a.config.Reminders.Enabled,
	)

	if a.config.Notifications.WorkerEnabled {
		sender, err := email.NewSender(email.Config{
			Enabled:      a.config.Notifications.Email.Enabled,
			SMTPHost:     a.config.Notifications.Email.SMTPHost,
			SMTPPort:     a.config.Notifications.Email.SMTPPort,
			SMTPUser:     a.config.Notifications.Email.SMTPUser,
			SMTPPassword: a.config.Notifications.Email.SMTPPassword,
			FromAddress:  a.config.Notifications.Email.FromAddress,
			RateLimit:    a.config.Notifications.Email.RateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("create email sender: %w", err)
		}

		if !a.config.Notifications.Email.Enabled {
			slog.Warn("email sender is disabled: pending notifications will stay queued until delivery is enabled")
		}

		a.deliveryWorker = notifications.NewWorker(notifications.WorkerConfig{
			PollInterval: a.config.Notifications.Worker.PollInterval,
			DrainLimit:   a.config.Notifications.Worker.DrainLimit,
			NumWorkers:   a.config.Notifications.Worker.NumWorkers,
		}, notificationsRepo, sender)
		a.deliveryWorker.Start(ctx)
	}

	// Queue metrics collection runs regardless of the worker so operators
	// can see pending rows accumulate when delivery is disabled.
	go a.collectQueueMetrics(ctx, notificationsRepo)

	authenticator := auth.NewAuthenticator(auth.Config{
		SecretKey: a.config.Auth.SecretKey,
		TokenTTL:  a.config.Auth.TokenTTL,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(authenticator))

			notificationsHandler.RegisterRoutes(r)
			remindersHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
