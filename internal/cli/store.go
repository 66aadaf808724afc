package cli

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"stickerboard/internal/config"
	"stickerboard/internal/database"
	"stickerboard/internal/models"
	"stickerboard/internal/repository"
	"stickerboard/internal/store"
)

// isMemory reports whether the configuration asks for the in-process store.
func isMemory(cfg *config.Config) bool {
	return strings.EqualFold(cfg.DatabaseType, "memory")
}

// openStore opens the configured document store, running migrations for SQL
// backends. The returned close function releases everything it opened.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, func(), error) {
	if isMemory(cfg) {
		log.Warn("using in-memory store; data is lost on exit")
		mem := store.NewMemory(
			store.UniqueField(models.CollectionCredentials, models.FieldEmail),
			store.WithPollInterval(cfg.SubscriptionPollInterval),
		)
		return mem, func() { _ = mem.Close() }, nil
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	repo := repository.NewDocumentRepository(db,
		repository.WithPollInterval(cfg.SubscriptionPollInterval),
		repository.WithLogger(log.Named("store")))
	closeFn := func() {
		_ = repo.Close()
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
	return repo, closeFn, nil
}

// openDatabase connects to the configured SQL database and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*database.DB, error) {
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Info("database connection established", zap.String("type", cfg.DatabaseType))

	if err := db.RunMigrations(ctx, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
