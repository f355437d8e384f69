// Package server initializes and runs the AtomStore server: it opens the
// database, applies migrations, wires the content backend and services, and
// serves the Prometheus metrics endpoint until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/atomstore/internal/contenthash"
	"github.com/dmitrijs2005/atomstore/internal/contentstore"
	"github.com/dmitrijs2005/atomstore/internal/logging"
	"github.com/dmitrijs2005/atomstore/internal/metrics"
	"github.com/dmitrijs2005/atomstore/internal/server/config"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/dialect"
	"github.com/dmitrijs2005/atomstore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/atomstore/internal/server/services"
)

// App owns the wired service stack and its lifecycle.
type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	Store     *services.StoreService
	Feed      *services.FeedService
	Aggregate *services.AggregateService
}

// NewApp validates the configuration and wires the full stack. The database
// schema is migrated before any service touches it.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	d, ok := dialect.ForName(c.DatabaseDialect)
	if !ok {
		return nil, fmt.Errorf("unknown database dialect %q", c.DatabaseDialect)
	}

	db, err := sql.Open(d.Name(), c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	repos := repomanager.NewSQLManager(d)
	if err := repos.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	content, err := newContentStore(ctx, c, db, d)
	if err != nil {
		db.Close()
		return nil, err
	}

	hasher, err := contenthash.NewBlake2b(c.HashIgnorePatterns...)
	if err != nil {
		db.Close()
		return nil, err
	}

	sink := metrics.NewPrometheus(prometheus.DefaultRegisterer)

	aggregate := services.NewAggregateService(db, repos, sink, logger)
	if err := aggregate.RefreshDefs(ctx); err != nil {
		db.Close()
		return nil, err
	}

	var taggers []services.AutoTagger
	if c.NumStripes > 0 {
		taggers = append(taggers, services.StripingAutoTagger{
			StripeScheme: c.StripeScheme,
			NumStripes:   c.NumStripes,
			Radix:        c.StripeRadix,
		})
	}

	store := services.NewStoreService(services.StoreParams{
		DB:                   db,
		Repos:                repos,
		Content:              content,
		Hasher:               hasher,
		Notifier:             aggregate,
		Metrics:              sink,
		Logger:               logger,
		SkipUnchangedContent: c.SkipUnchangedContent,
	}, taggers...)

	policy := services.DefaultLatencyPolicy()
	policy.Window = c.ReplicationLatency
	feed := services.NewFeedService(db, repos, policy, sink)

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		Store:     store,
		Feed:      feed,
		Aggregate: aggregate,
	}, nil
}

func newContentStore(ctx context.Context, c *config.Config, db *sql.DB, d dialect.Dialect) (contentstore.Store, error) {
	switch c.ContentBackend {
	case config.ContentBackendFile:
		return contentstore.NewFileStore(c.ContentRoot)
	case config.ContentBackendS3:
		return contentstore.NewS3Store(ctx, contentstore.S3Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			RootUser:     c.S3RootUser,
			RootPassword: c.S3RootPassword,
		})
	case config.ContentBackendDB:
		return contentstore.NewDBBlobStore(db, d), nil
	default:
		return nil, fmt.Errorf("unknown content backend %q", c.ContentBackend)
	}
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

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if app.config.MetricsAddr == "" {
		<-ctx.Done()
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "metrics endpoint listening", "addr", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until the context is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
