package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories"
	"github.com/Ramsey-B/clover/internal/repositories/memory"
	"github.com/Ramsey-B/clover/internal/server"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/review"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "clover: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, zapLogger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = zapLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	checker := health.NewChecker(cfg.AppVersion)
	var closers []func(context.Context) error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](context.Background()); err != nil {
				logger.WithError(err).Warn("Failed to close dependency")
			}
		}
	}()

	store, err := openStore(ctx, cfg, logger, checker, &closers)
	if err != nil {
		return err
	}

	notifiers, err := openNotifiers(ctx, cfg, logger, checker, &closers)
	if err != nil {
		return err
	}

	engine := resolution.NewEngine(logger, resolution.Config{Workers: cfg.Resolution.Workers})
	workflow := review.NewWorkflow(logger, store, engine, notifiers)

	if cfg.Intake.Enabled {
		intake := processor.NewProcessor(logger, workflow, cfg.ResolutionConfig())
		consumer := kafka.NewConsumer(cfg.Intake, logger, intake.ProcessMessage)
		consumer.Start(ctx)
		closers = append(closers, func(context.Context) error { return consumer.Stop() })
	}

	e := server.New(workflow, cfg.ResolutionConfig(), checker, logger, server.Options{
		ServiceName:  cfg.Tracing.ServiceName,
		BodyLimit:    cfg.HTTP.BodyLimit,
		AllowOrigins: cfg.HTTP.AllowOrigins,
		AllowMethods: cfg.HTTP.AllowMethods,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           e,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]any{
			"port":    cfg.HTTP.Port,
			"version": cfg.AppVersion,
		}).Infof("Starting %s", cfg.AppName)
		serveErr <- srv.ListenAndServe()
	}()
	checker.SetReady(true)

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	checker.SetReady(false)
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// openStore connects and migrates PostgreSQL when enabled, otherwise keeps
// everything in memory
func openStore(ctx context.Context, cfg *config.Config, logger ectologger.Logger, checker *health.Checker, closers *[]func(context.Context) error) (review.Store, error) {
	if !cfg.Database.Enabled {
		logger.Warn("Database disabled; using in-memory store")
		return memory.NewStore(), nil
	}

	db, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, func(context.Context) error { return db.Close() })

	if err := database.NewMigrationService(logger, cfg.Migration).Migrate(db.DB, cfg.Database.Name); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	checker.AddProbe("database", db.PingContext)
	return repositories.NewStore(db, logger), nil
}

func openNotifiers(ctx context.Context, cfg *config.Config, logger ectologger.Logger, checker *health.Checker, closers *[]func(context.Context) error) (review.Notifiers, error) {
	var notifiers review.Notifiers

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.ProducerConfig, logger)
		*closers = append(*closers, func(context.Context) error { return producer.Close() })
		notifiers = append(notifiers, events.NewEmitter(producer, logger))
	}

	if cfg.Graph.Enabled {
		client, err := graph.NewClient(cfg.Graph, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, client.Close)
		if err := client.VerifyConnectivity(ctx); err != nil {
			logger.WithError(err).Warn("Graph database not reachable at startup")
		}
		checker.AddProbe("graph", client.VerifyConnectivity)
		notifiers = append(notifiers, graph.NewProjector(client, logger))
	}

	return notifiers, nil
}
