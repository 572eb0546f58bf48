// Package app wires the service together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/listkit/autoposter/internal/api"
	"github.com/listkit/autoposter/internal/browser"
	"github.com/listkit/autoposter/internal/config"
	"github.com/listkit/autoposter/internal/database"
	"github.com/listkit/autoposter/internal/jobs"
	"github.com/listkit/autoposter/internal/locator"
	"github.com/listkit/autoposter/internal/logger"
	"github.com/listkit/autoposter/internal/metrics"
	"github.com/listkit/autoposter/internal/poster"
	"github.com/listkit/autoposter/internal/redis"
	"github.com/listkit/autoposter/internal/runner"
	"github.com/listkit/autoposter/internal/session"
)

const (
	shutdownTimeout = 30 * time.Second
	pingTimeout     = 5 * time.Second
)

// App holds the assembled service.
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *goredis.Client

	sessions *session.Store
	tracker  *jobs.Tracker
	queue    *runner.Queue
	server   *http.Server

	version string
}

// Options configures App construction.
type Options struct {
	ConfigPath string
	Version    string
}

// New builds the full dependency graph: config, logger, Postgres (with
// schema), Redis, the chromedp driver, and every component above them.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "autoposter"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	schemaCtx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := database.EnsureSchema(schemaCtx, db); err != nil {
		_ = db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		_ = db.Close()
		_ = appLogger.Sync()
		return nil, err
	}

	listings := database.NewListingRepository(db)
	jobStore := database.NewJobRepository(db)
	errorLogs := database.NewErrorLogRepository(db)

	driver := browser.NewDriver(browser.Config{
		Headless:          cfg.Browser.Headless,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		MarkerCookie:      cfg.Sessions.MarkerCookie,
	}, appLogger)

	sessions := session.NewStore(session.Config{
		Dir:      cfg.Sessions.Dir,
		LoginURL: cfg.Sessions.LoginURL,
		AuthWait: cfg.Sessions.AuthWait,
	}, driver, appLogger)

	counters := metrics.NewTracker(redisClient, appLogger)
	tracker := jobs.NewTracker(jobStore, redisClient, appLogger)
	chain := locator.DefaultChain(appLogger, cfg.Browser.SettleDelay)

	post := poster.New(cfg.Posting, driver, chain, sessions, listings, errorLogs, tracker, counters, appLogger)
	queue := runner.NewQueue(cfg.Runner, listings, post, counters, appLogger)

	handlers := api.NewHandlers(
		tracker, listings, errorLogs, sessions, queue, counters,
		api.StreamConfig{
			MaxDuration:       cfg.Stream.MaxDuration,
			KeepaliveInterval: cfg.Stream.KeepaliveInterval,
		},
		appLogger, opts.Version,
	)
	router := api.NewRouter(handlers, cfg, appLogger)

	return &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		sessions:    sessions,
		tracker:     tracker,
		queue:       queue,
		server:      router.NewServer(),
		version:     opts.Version,
	}, nil
}

// Run starts the run queue and the HTTP server, then blocks until a
// shutdown signal arrives or either component fails.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.queue.Start(runCtx); err != nil {
		return fmt.Errorf("start run queue: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening",
			logger.String("address", a.config.Server.Address))
		serverErr <- a.server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", logger.Error(err))
			runErr = err
		}
	case <-ctx.Done():
	}

	cancel()
	a.queue.Stop()
	a.shutdownHTTPServer()
	a.logger.Info("service stopped")
	return runErr
}

func (a *App) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", logger.Error(err))
	}
}

// Sessions exposes the session store for the CLI session commands.
func (a *App) Sessions() *session.Store { return a.sessions }

// Queue exposes the run queue for the CLI run command.
func (a *App) Queue() *runner.Queue { return a.queue }

// Tracker exposes the job tracker for the CLI run command.
func (a *App) Tracker() *jobs.Tracker { return a.tracker }

// Close releases the database and Redis connections.
func (a *App) Close() error {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", logger.Error(err))
	}
	if err := a.redisClient.Close(); err != nil {
		a.logger.Warn("failed to close redis client", logger.Error(err))
	}
	return a.logger.Sync()
}

// Logger returns the application logger.
func (a *App) Logger() logger.Logger { return a.logger }
