package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	d21voting "d21vote/contexts/elections/d21-voting"
	"d21vote/contexts/elections/d21-voting/application/workers"
	"d21vote/contexts/elections/d21-voting/ports"
	"d21vote/internal/platform/config"
	"d21vote/internal/platform/httpserver"
	"d21vote/internal/platform/messaging"
	"d21vote/internal/platform/metrics"
	"d21vote/internal/shared/events"

	"github.com/prometheus/client_golang/prometheus"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server  *httpserver.Server
	storage storage
	relay   *relayLoop
	bus     *messaging.Bus
	logger  *slog.Logger
}

type WorkerApp struct {
	storage   storage
	relay     *relayLoop
	publisher publisher
	bus       *messaging.Bus
	logger    *slog.Logger
}

// publisher is the event bus as seen by the relay, plus shutdown.
type publisher interface {
	ports.EventPublisher
	Close() error
}

type inProcessPublisher struct {
	*messaging.Bus
}

func (inProcessPublisher) Close() error { return nil }

type relayLoop struct {
	relay        workers.OutboxRelay
	metrics      *metrics.Collector
	pollInterval time.Duration
	logger       *slog.Logger
}

// BuildAPI wires the HTTP process. With the in-process bus the API also runs
// the outbox relay, since no separate worker can reach its memory.
func BuildAPI(ctx context.Context, cfg config.Config) (*APIApp, error) {
	logger := cfg.NewLogger().With("service", cfg.ServiceName, "process", "api")
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		bus       *messaging.Bus
		publisher ports.EventPublisher
	)
	if cfg.EventBus == config.EventBusInProcess {
		bus = messaging.NewBus(logger)
		publisher = bus
	}
	collector := metrics.New(prometheus.NewRegistry(), "")
	module := d21voting.NewModule(dependencies(cfg, store, publisher, logger))
	app := &APIApp{
		server:  httpserver.New(module, collector, logger, normalizeAddr(cfg.HTTPPort)),
		storage: store,
		bus:     bus,
		logger:  logger,
	}
	if bus != nil {
		app.relay = newRelayLoop(module.Relay, collector, cfg.OutboxPollInterval, logger)
	}
	return app, nil
}

func BuildWorker(ctx context.Context, cfg config.Config) (*WorkerApp, error) {
	logger := cfg.NewLogger().With("service", cfg.ServiceName, "process", "worker")
	if cfg.StorageDriver == config.StorageMemory {
		return nil, errors.New("worker needs shared storage; set STORAGE_DRIVER to postgres or bbolt")
	}
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	bus, err := openPublisher(ctx, cfg, logger)
	if err != nil {
		_ = store.close()
		return nil, err
	}

	module := d21voting.NewModule(dependencies(cfg, store, bus, logger))
	app := &WorkerApp{
		storage:   store,
		relay:     newRelayLoop(module.Relay, metrics.New(prometheus.NewRegistry(), ""), cfg.OutboxPollInterval, logger),
		publisher: bus,
		logger:    logger,
	}
	if inProcess, ok := bus.(inProcessPublisher); ok {
		app.bus = inProcess.Bus
	}
	return app, nil
}

func openPublisher(ctx context.Context, cfg config.Config, logger *slog.Logger) (publisher, error) {
	if cfg.EventBus == config.EventBusNATS {
		return messaging.DialNATS(ctx, messaging.NATSOptions{URL: cfg.NATSURL}, logger)
	}
	logger.Warn("worker relays to the in-process bus; events are only logged",
		"event", "bootstrap_worker_inprocess_bus",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	return inProcessPublisher{Bus: messaging.NewBus(logger)}, nil
}

func dependencies(cfg config.Config, store storage, bus ports.EventPublisher, logger *slog.Logger) d21voting.Dependencies {
	return d21voting.Dependencies{
		Elections:       store.elections,
		Idempotency:     store.idempotency,
		Outbox:          store.outbox,
		Publisher:       bus,
		Clock:           store.clock,
		IDGen:           store.ids,
		IdempotencyTTL:  cfg.IdempotencyTTL,
		OutboxBatchSize: cfg.OutboxBatchSize,
		ResultCacheSize: cfg.ResultCacheSize,
		SourceService:   cfg.ServiceName,
		Logger:          logger,
	}
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"relay_enabled", a.relay != nil,
	)

	if a.bus != nil {
		if err := subscribeEventLog(ctx, a.bus, a.logger); err != nil {
			return err
		}
	}

	errs := make(chan error, 2)
	go func() {
		errs <- a.server.Start()
	}()
	if a.relay != nil {
		go func() {
			errs <- a.relay.run(ctx)
		}()
	}

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	}
}

func (a *APIApp) Close() error {
	return a.storage.close()
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.relay.pollInterval.String(),
	)
	if w.bus != nil {
		if err := subscribeEventLog(ctx, w.bus, w.logger); err != nil {
			return err
		}
	}
	return w.relay.run(ctx)
}

func (w *WorkerApp) Close() error {
	return errors.Join(w.publisher.Close(), w.storage.close())
}

// subscribeEventLog records every election notification delivered on the
// in-process bus.
func subscribeEventLog(ctx context.Context, bus *messaging.Bus, logger *slog.Logger) error {
	for _, topic := range []string{events.TopicVoteCasted, events.TopicElectionFinalized} {
		err := bus.Subscribe(ctx, topic, "d21-voting-event-log", func(_ context.Context, event events.Envelope) error {
			logger.Info("election event delivered",
				"event", "bootstrap_election_event_delivered",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"event_id", event.EventID,
				"event_type", event.EventType,
				"partition_key", event.PartitionKey,
			)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func newRelayLoop(relay workers.OutboxRelay, collector *metrics.Collector, pollInterval time.Duration, logger *slog.Logger) *relayLoop {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &relayLoop{
		relay:        relay,
		metrics:      collector,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// run drains the outbox every poll interval until ctx ends. A failed cycle is
// logged and retried on the next tick; rows stay pending until published.
func (l *relayLoop) run(ctx context.Context) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		published, err := l.relay.RunOnce(ctx)
		l.metrics.ObserveRelayCycle(published, err)
		if err != nil && ctx.Err() == nil {
			l.logger.Warn("outbox relay cycle failed",
				"event", "bootstrap_relay_cycle_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"published_count", published,
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
