package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	bboltadapter "d21vote/contexts/elections/d21-voting/adapters/bbolt"
	"d21vote/contexts/elections/d21-voting/adapters/memory"
	postgresadapter "d21vote/contexts/elections/d21-voting/adapters/postgres"
	"d21vote/contexts/elections/d21-voting/ports"
	"d21vote/internal/platform/config"
	"d21vote/internal/platform/db"
)

// storage bundles every persistence port behind the configured driver.
type storage struct {
	elections   ports.ElectionRepository
	idempotency ports.IdempotencyStore
	outbox      ports.OutboxRepository
	clock       ports.Clock
	ids         ports.IDGenerator
	close       func() error
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pg, err := db.Connect(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return storage{}, err
		}
		if err := postgresadapter.Migrate(ctx, pg.DB); err != nil {
			_ = pg.Close()
			return storage{}, fmt.Errorf("migrate election tables: %w", err)
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		return storage{
			elections:   repo,
			idempotency: repo,
			outbox:      repo,
			clock:       postgresadapter.SystemClock{},
			ids:         postgresadapter.UUIDGenerator{},
			close:       pg.Close,
		}, nil
	case config.StorageBolt:
		store, err := bboltadapter.Open(cfg.BoltPath, logger)
		if err != nil {
			return storage{}, err
		}
		return storage{
			elections:   store,
			idempotency: store,
			outbox:      store,
			clock:       postgresadapter.SystemClock{},
			ids:         postgresadapter.UUIDGenerator{},
			close:       store.Close,
		}, nil
	default:
		store := memory.NewStore(nil)
		logger.Warn("using in-memory election storage",
			"event", "bootstrap_memory_storage",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return storage{
			elections:   store,
			idempotency: store,
			outbox:      store,
			clock:       store,
			ids:         store,
			close:       func() error { return nil },
		}, nil
	}
}
