package storage

import (
	"context"
	"fmt"
	"protalent/backend/internal/config"

	"go.uber.org/zap"
)

// Open connects the store selected by cfg.StoreDriver and makes sure its
// indexes exist.
func Open(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (Storage, error) {
	opts := []Option{Timeout(cfg.StoreTimeout)}

	var s Storage
	switch cfg.StoreDriver {
	case config.DriverMongo:
		m, err := NewMongoStore(ctx, logger, cfg.MongoURI, cfg.MongoDB, opts...)
		if err != nil {
			return nil, err
		}
		s = m
	case config.DriverPostgres:
		p, err := NewSQLStore(logger, cfg.DatabaseURL, opts...)
		if err != nil {
			return nil, err
		}
		s = p
	case config.DriverMemory:
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Infow("store ready", "driver", cfg.StoreDriver)
	return s, nil
}
