package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"github.com/objectstage/batch-api/internal/config"
	"github.com/objectstage/batch-api/internal/domain/batch"
	"github.com/objectstage/batch-api/internal/domain/blob"
	"github.com/objectstage/batch-api/internal/infrastructure/auth"
	"github.com/objectstage/batch-api/internal/infrastructure/credentials"
	"github.com/objectstage/batch-api/internal/infrastructure/database"
	"github.com/objectstage/batch-api/internal/infrastructure/logger"
	"github.com/objectstage/batch-api/internal/infrastructure/objectstore"
	"github.com/objectstage/batch-api/internal/infrastructure/observability"
	"github.com/objectstage/batch-api/internal/infrastructure/repository/blobref"
	"github.com/objectstage/batch-api/internal/infrastructure/transientstore"
	"github.com/objectstage/batch-api/internal/interfaces/httpserver"
)

type Application struct {
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	stores := transientstore.NewProvider(cfg, log)
	if err := stores.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect transient store")
	}
	defer stores.Close()

	broker, err := credentials.NewSTSBroker(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize credential broker")
	}

	objects, err := objectstore.NewS3ObjectStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize object store")
	}

	refs := blobref.NewRepository(db)
	handler := batch.NewHandler(cfg, stores, broker, objects, refs, log)
	reader := blob.NewReader(objects, log)

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	httpServer := httpserver.New(cfg, log, handler, reader, refs, authValidator)
	app := NewApplication(httpServer, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
