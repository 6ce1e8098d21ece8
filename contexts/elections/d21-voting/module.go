package d21voting

import (
	"log/slog"
	"time"

	"d21vote/contexts/elections/d21-voting/adapters/cache"
	httpadapter "d21vote/contexts/elections/d21-voting/adapters/http"
	"d21vote/contexts/elections/d21-voting/adapters/memory"
	application "d21vote/contexts/elections/d21-voting/application"
	"d21vote/contexts/elections/d21-voting/application/commands"
	"d21vote/contexts/elections/d21-voting/application/queries"
	"d21vote/contexts/elections/d21-voting/application/workers"
	"d21vote/contexts/elections/d21-voting/domain/entities"
	"d21vote/contexts/elections/d21-voting/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Relay   workers.OutboxRelay
	Store   *memory.Store
}

type Dependencies struct {
	Elections       ports.ElectionRepository
	Idempotency     ports.IdempotencyStore
	Outbox          ports.OutboxRepository
	Publisher       ports.EventPublisher
	Clock           ports.Clock
	IDGen           ports.IDGenerator
	IdempotencyTTL  time.Duration
	OutboxBatchSize int
	ResultCacheSize int
	SourceService   string
	Logger          *slog.Logger
}

// NewModule wires the election use cases over the given ports. A positive
// ResultCacheSize puts an LRU of finalized elections in front of the store.
func NewModule(deps Dependencies) Module {
	elections := deps.Elections
	if deps.ResultCacheSize > 0 {
		cached, err := cache.NewFinalizedElections(deps.Elections, deps.ResultCacheSize)
		if err != nil {
			application.ResolveLogger(deps.Logger).Warn("finalized election cache disabled",
				"event", "election_result_cache_disabled",
				"module", "elections/d21-voting",
				"layer", "platform",
				"error", err.Error(),
			)
		} else {
			elections = cached
		}
	}

	electionUseCase := commands.ElectionUseCase{
		Elections:      elections,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		IdempotencyTTL: deps.IdempotencyTTL,
		SourceService:  deps.SourceService,
		Logger:         deps.Logger,
	}
	electionQueries := queries.ElectionQueries{
		Elections: elections,
	}
	return Module{
		Handler: httpadapter.Handler{
			Elections: electionUseCase,
			Queries:   electionQueries,
			Logger:    deps.Logger,
		},
		Relay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.OutboxBatchSize,
			Logger:    deps.Logger,
		},
	}
}

// NewInMemoryModule backs every port with one memory.Store. Publisher may be
// nil when the caller never runs the relay.
func NewInMemoryModule(seed []entities.Election, publisher ports.EventPublisher, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Elections:      store,
		Idempotency:    store,
		Outbox:         store,
		Publisher:      publisher,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}

