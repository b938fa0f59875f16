// Package store persists the catalog and the orders, in PostgreSQL when a
// database is configured and reachable, in memory otherwise.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/catalog"
	"erp/ecommerce/catalog-service/internal/config"
	"erp/ecommerce/catalog-service/internal/order"
)

// Store is a complete backend for both services.
type Store interface {
	catalog.Store
	order.Store
	// Mode is "postgres" or "memory".
	Mode() string
	Close() error
}


// Open connects to PostgreSQL and prepares the schema. When no database is
// configured, or it cannot be reached or migrated, the service runs on the
// in-memory store instead.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) Store {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, running in memory mode")
		return NewMemory()
	}
	pg, err := Connect(ctx, cfg)
	if err != nil {
		logger.Warn("database unavailable, running in memory mode", zap.Error(err))
		return NewMemory()
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Warn("schema setup failed, using memory mode", zap.Error(err))
		_ = pg.Close()
		return NewMemory()
	}
	logger.Info("connected to postgres")
	return pg
}

// checkUnits rejects ledger moves that would run the counters backwards or
// past the column range.
func checkUnits(n int) error {
	if n <= 0 || n > order.MaxQuantity {
		return apperr.Validation(fmt.Sprintf("stock move of %d units is out of range", n))
	}
	return nil
}
