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

	"github.com/cuongbtq/pathogen-analysis/internal/api/engine"
	"github.com/cuongbtq/pathogen-analysis/internal/api/events"
	"github.com/cuongbtq/pathogen-analysis/internal/api/handler"
	"github.com/cuongbtq/pathogen-analysis/internal/api/imagestore"
	"github.com/cuongbtq/pathogen-analysis/internal/api/labs"
	"github.com/cuongbtq/pathogen-analysis/internal/api/router"
	"github.com/cuongbtq/pathogen-analysis/internal/api/service"
	"github.com/cuongbtq/pathogen-analysis/internal/api/storage"
	"github.com/cuongbtq/pathogen-analysis/internal/config"
	"github.com/cuongbtq/pathogen-analysis/shared/logger"
	"github.com/cuongbtq/pathogen-analysis/shared/objectstore"
	"github.com/cuongbtq/pathogen-analysis/shared/postgresql"
	"github.com/cuongbtq/pathogen-analysis/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// store is what the service needs from a storage backend.
type store interface {
	storage.Repository
	storage.LabStore
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

	if err := cfg.Validate(); err != nil {
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
		slog.String("database_driver", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.ResultDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	var (
		db          store
		healthCheck func(context.Context) error
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		appLogger.Warn("Using in-memory storage, data is lost on restart")
		db = storage.NewMemoryStorage()
	default:
		dbClient, err := initPostgreSQL(ctx, &cfg.Database, appLogger.Component("postgres"))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		pg := storage.NewPostgresStorage(dbClient.GetDB(), appLogger.Component("storage"))
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		db = pg
		healthCheck = dbClient.HealthCheck
	}

	bootstrapLabs(ctx, cfg, db, appLogger.Component("labs"))

	deps := service.Dependencies{
		Jobs:   db,
		Labs:   db,
		Images: imagestore.New(cfg.Storage.UploadDir),
		Engine: engine.New(engine.Config{
			BinaryPath: cfg.Engine.BinaryPath,
			ResultDir:  cfg.Storage.ResultDir,
			Timeout:    cfg.Engine.Timeout,
			Logger:     appLogger.Component("engine"),
		}),
		Logger: appLogger.Component("analysis"),
	}

	if cfg.Archive.Enabled {
		archive, err := initArchive(ctx, &cfg.Archive)
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		deps.Archive = archive
		deps.ArchiveTimeout = cfg.Archive.Timeout
		appLogger.Info("Image archive enabled", slog.String("bucket", cfg.Archive.BucketName))
	}

	if cfg.Events.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Component("rabbitmq"))
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		deps.Publisher = events.NewBrokerPublisher(rabbitClient, appLogger.Component("events"))
	}

	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:      appLogger.Logger,
		Service:     service.NewAnalysisService(deps),
		HealthCheck: healthCheck,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if srv.WriteTimeout > 0 && srv.WriteTimeout <= cfg.Engine.Timeout {
		appLogger.Warn("Write timeout does not exceed the engine timeout, slow analyses may be cut off",
			slog.Duration("write_timeout", srv.WriteTimeout),
			slog.Duration("engine_timeout", cfg.Engine.Timeout),
		)
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	appLogger.Info("Server shutdown complete")
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
		NoColor:      cfg.NoColor,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(ctx, &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ result publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initArchive connects to the MinIO bucket that mirrors sample images
func initArchive(ctx context.Context, cfg *config.ArchiveConfig) (*objectstore.Store, error) {
	return objectstore.New(ctx, objectstore.Config{
		Endpoint:   cfg.Endpoint,
		AccessKey:  cfg.AccessKey,
		SecretKey:  cfg.SecretKey,
		BucketName: cfg.BucketName,
		Region:     cfg.Region,
		UseSSL:     cfg.UseSSL,
	})
}

// bootstrapLabs loads the lab reference list. Failure is logged and startup
// continues; submissions for unknown labs are then rejected.
func bootstrapLabs(ctx context.Context, cfg *config.Config, sink labs.Sink, logger *slog.Logger) {
	loader := &labs.Loader{
		Files:      cfg.Labs.Files,
		RemoteURL:  cfg.Labs.RemoteURL,
		HTTPClient: &http.Client{Timeout: cfg.Labs.FetchTimeout},
		Logger:     logger,
	}

	if err := loader.Bootstrap(ctx, sink); err != nil {
		logger.Warn("Failed to load lab data", slog.Any("error", err))
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
