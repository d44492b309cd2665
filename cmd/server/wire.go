//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/objectstage/batch-api/internal/config"
	"github.com/objectstage/batch-api/internal/domain/batch"
	"github.com/objectstage/batch-api/internal/domain/blob"
	"github.com/objectstage/batch-api/internal/domain/object"
	"github.com/objectstage/batch-api/internal/infrastructure/auth"
	"github.com/objectstage/batch-api/internal/infrastructure/credentials"
	"github.com/objectstage/batch-api/internal/infrastructure/database"
	"github.com/objectstage/batch-api/internal/infrastructure/logger"
	"github.com/objectstage/batch-api/internal/infrastructure/objectstore"
	"github.com/objectstage/batch-api/internal/infrastructure/repository/blobref"
	"github.com/objectstage/batch-api/internal/infrastructure/transientstore"
	"github.com/objectstage/batch-api/internal/interfaces/httpserver"
	"github.com/objectstage/batch-api/internal/interfaces/httpserver/handlers"
)

var batchSet = wire.NewSet(
	transientstore.NewProvider,
	wire.Bind(new(batch.StoreProvider), new(*transientstore.Provider)),
	credentials.NewSTSBroker,
	wire.Bind(new(batch.CredentialBroker), new(*credentials.STSBroker)),
	objectstore.NewS3ObjectStore,
	wire.Bind(new(object.Store), new(*objectstore.S3ObjectStore)),
	blobref.NewRepository,
	wire.Bind(new(batch.Registry), new(*blobref.Repository)),
	wire.Bind(new(handlers.RefFinder), new(*blobref.Repository)),
	batch.NewHandler,
	wire.Bind(new(batch.Service), new(*batch.Handler)),
	blob.NewReader,
)

// BuildApplication assembles the batch API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		newDatabaseConfig,
		newGormDB,
		batchSet,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}
