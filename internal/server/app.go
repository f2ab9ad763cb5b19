// Package server wires the ingest server together: configuration, logging,
// PostgreSQL, services, the HTTP API with its notification stream, and the
// gRPC health service. Run blocks until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/dmitrijs2005/fieldlog/internal/server/config"
	gs "github.com/dmitrijs2005/fieldlog/internal/server/grpc"
	"github.com/dmitrijs2005/fieldlog/internal/server/httpapi"
	"github.com/dmitrijs2005/fieldlog/internal/server/metrics"
	"github.com/dmitrijs2005/fieldlog/internal/server/notify"
	"github.com/dmitrijs2005/fieldlog/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fieldlog/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	flush   func() error
	db      *sql.DB
	hub     *notify.Hub
	handler http.Handler
	health  *gs.GRPCServer
}

// newLogger picks zap when an environment is configured and slog otherwise.
// The returned func flushes buffered output.
func newLogger(c *config.Config, w io.Writer) (logging.Logger, func() error, error) {
	if c.Env != "" {
		z, err := logging.NewZap(c.Env)
		if err != nil {
			return nil, nil, err
		}
		return z, z.Sync, nil
	}

	noop := func() error { return nil }
	if c.LogFormat == "text" {
		return logging.NewTextLogger(w, slog.LevelInfo), noop, nil
	}
	return logging.NewJSONLogger(w), noop, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, syncFn, err := newLogger(c, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	hub := notify.NewHub(logger, m, 0)

	is := services.NewIngestService(db, rm, c, hub, m, logger)
	gf := services.NewGeofenceService(db, rm, c, m, logger)

	h := httpapi.New(is, gf, hub, m, logger, c.SecretKey, c.RateLimitPerMinute)

	return &App{
		config:  c,
		logger:  logger,
		flush:   syncFn,
		db:      db,
		hub:     hub,
		handler: h.Routes(),
		health:  gs.NewGRPCServer(c.GRPCAddr, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		// Streams are hijacked connections that Shutdown does not track.
		app.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "failed to close db", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
	_ = app.flush()
}
