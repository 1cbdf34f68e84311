package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/sensei-scan/internal/api/handler"
	"github.com/cuongbtq/sensei-scan/internal/api/router"
	"github.com/cuongbtq/sensei-scan/internal/config"
	"github.com/cuongbtq/sensei-scan/internal/events"
	"github.com/cuongbtq/sensei-scan/internal/scan/report"
	"github.com/cuongbtq/sensei-scan/internal/scan/scheduler"
	"github.com/cuongbtq/sensei-scan/internal/scan/storage"
	"github.com/cuongbtq/sensei-scan/internal/scan/synth"
	"github.com/cuongbtq/sensei-scan/shared/kvstore"
	"github.com/cuongbtq/sensei-scan/shared/logger"
	"github.com/cuongbtq/sensei-scan/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	store, err := kvstore.Open(cfg.KVStore(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := storage.LoadQueue(ctx, store, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to load scan queue: %w", err)
	}
	results, err := storage.LoadResults(ctx, store, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to load scan results: %w", err)
	}

	appLogger.Info("Scan state restored",
		slog.Int("jobs", queue.Len()),
		slog.Int("results", results.Len()),
	)

	publisher, broker, closePublisher, err := initPublisher(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	defer closePublisher()

	outbox := events.NewOutbox(publisher, events.DefaultOutboxSize, appLogger.Logger)

	sched := scheduler.New(&scheduler.Config{
		Logger:       appLogger.Logger,
		Queue:        queue,
		Results:      results,
		Synthesizer:  synth.NewCatalogue(),
		Publisher:    outbox,
		TickInterval: cfg.Scheduler.TickInterval,
		ScanDuration: cfg.Scheduler.ScanDuration,
	})

	r := initRouter(cfg, appLogger.Logger, sched, results, store, broker)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return outbox.Run(gctx)
	})

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		appLogger.Info("Starting HTTP server",
			slog.String("address", addr),
			slog.Duration("read_timeout", cfg.Server.ReadTimeout),
			slog.Duration("write_timeout", cfg.Server.WriteTimeout),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown",
				slog.Any("error", err),
			)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	appLogger.Info("API service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPublisher returns the RabbitMQ publisher and its client when enabled,
// otherwise a log-only publisher and a nil broker
func initPublisher(cfg *config.Config, log *slog.Logger) (events.Publisher, handler.Broker, func(), error) {
	if !cfg.RabbitMQ.Enabled {
		log.Info("RabbitMQ disabled, scan events are logged only")
		return events.LogPublisher{Logger: log}, nil, func() {}, nil
	}

	client, err := rabbitmq.NewClient(cfg.AMQP(false), log)
	if err != nil {
		return nil, nil, nil, err
	}

	log.Info("RabbitMQ connection established")
	return events.NewAMQPPublisher(client), client, func() { client.Close() }, nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, log *slog.Logger, sched *scheduler.Scheduler, results *storage.ResultStore, store kvstore.Store, broker handler.Broker) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:    log,
		Scheduler: sched,
		Reports:   report.NewProjector(results),
		Store:     store,
		Broker:    broker,
		Service:   cfg.App.Name,
	})
}
