package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/indeavr/znainik/internal/config"
	"github.com/indeavr/znainik/internal/storage"
	"github.com/indeavr/znainik/internal/storage/bolt"
	"github.com/indeavr/znainik/internal/storage/jsonfile"
	"github.com/indeavr/znainik/internal/storage/sqlite"
)

// openStore opens the configured driver and, when storage.import_json is set,
// copies a legacy subscriptions.json into it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.SubscriptionStore, error) {
	var (
		store storage.SubscriptionStore
		err   error
	)
	switch strings.ToLower(cfg.Storage.Driver) {
	case config.DriverBolt:
		store, err = bolt.New(cfg.Storage.Path)
	case config.DriverSQLite:
		store, err = sqlite.New(cfg.Storage.Path)
	case config.DriverJSON:
		store = jsonfile.New(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	logger.Info("subscription store opened",
		zap.String("driver", cfg.Storage.Driver),
		zap.String("path", cfg.Storage.Path),
	)

	legacy := strings.TrimSpace(cfg.Storage.ImportJSON)
	if legacy == "" {
		return store, nil
	}
	src := jsonfile.New(legacy)
	defer src.Close()
	n, err := storage.Import(ctx, src, store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("import %s: %w", legacy, err)
	}
	logger.Info("imported legacy subscriptions", zap.String("file", legacy), zap.Int("count", n))
	return store, nil
}
