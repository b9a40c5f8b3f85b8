package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Titi-shop/TiTi/internal/application/checkout"
	"github.com/Titi-shop/TiTi/internal/application/reconcile"
	"github.com/Titi-shop/TiTi/internal/domain/event"
	"github.com/Titi-shop/TiTi/internal/domain/ledger"
	"github.com/Titi-shop/TiTi/internal/domain/order"
	"github.com/Titi-shop/TiTi/internal/infra/clock"
	"github.com/Titi-shop/TiTi/internal/infra/logging"
	"github.com/Titi-shop/TiTi/internal/infra/metrics"
	"github.com/Titi-shop/TiTi/internal/infrastructure/alert"
	"github.com/Titi-shop/TiTi/internal/infrastructure/eventbus"
	"github.com/Titi-shop/TiTi/internal/infrastructure/gateway"
	httpapi "github.com/Titi-shop/TiTi/internal/infrastructure/http"
	"github.com/Titi-shop/TiTi/internal/infrastructure/outbox"
	"github.com/Titi-shop/TiTi/internal/infrastructure/persistence/postgres"
	"github.com/Titi-shop/TiTi/internal/infrastructure/persistence/sqlite"
)

const (
	defaultPort        = "8080"
	defaultDBPath      = "titi.db"
	defaultSpoolPath   = "titi-outbox.db"
	defaultPiAPIURL    = "https://api.minepi.com/v2"
	defaultAlertQueue  = "payment-alerts"
	defaultRetention   = 72 * time.Hour
	shutdownTimeout    = 10 * time.Second
	outboxPollInterval = 500 * time.Millisecond
)

func main() {
	logger := &logging.StdoutLogger{}
	clk := clock.NewSystem()
	counters := &metrics.Counters{}

	port := envOr("PORT", defaultPort, logger)
	dbURL := envOr("DATABASE_URL", defaultDBPath, logger)
	piURL := envOr("PI_API_URL", defaultPiAPIURL, logger)
	piKey := os.Getenv("PI_API_KEY")
	if piKey == "" {
		logger.Warn("PI_API_KEY not set, payment network calls will be rejected", nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orderRepo, ledgerRepo, cleanup, err := openStores(ctx, dbURL, clk)
	if err != nil {
		log.Fatalf("open stores: %v", err)
	}
	defer cleanup()

	// The outbox spool stays on local sqlite even when orders live in
	// postgres: alerts must survive broker and network outages.
	spoolDB, err := sqlite.Open(envOr("OUTBOX_PATH", defaultSpoolPath, logger))
	if err != nil {
		log.Fatalf("open outbox spool: %v", err)
	}
	defer spoolDB.Close()
	if err := sqlite.RunMigrations(spoolDB); err != nil {
		log.Fatalf("migrate outbox spool: %v", err)
	}

	bus := eventbus.NewInMemoryBus(logger)
	outboxRepo := outbox.NewSQLiteRepository(spoolDB)
	recorder := &outbox.Recorder{Repo: outboxRepo, Clock: clk}

	dispatcher := &outbox.Dispatcher{
		Repo:         outboxRepo,
		EventBus:     bus,
		Logger:       logger,
		PollInterval: outboxPollInterval,
		BatchSize:    50,
	}
	go dispatcher.Run(ctx)

	retrier := &reconcile.CompletionRetrier{
		EventBus:  bus,
		MaxRetry:  6,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
	}

	coordinator := &reconcile.Coordinator{
		Orders:         orderRepo,
		Ledger:         ledgerRepo,
		Gateway:        gateway.NewClient(piURL, piKey, logger),
		Recorder:       recorder,
		Retry:          retrier,
		Logger:         logger,
		Metrics:        counters,
		Clock:          clk,
		LookupAttempts: 5,
		LookupDelay:    100 * time.Millisecond,
	}

	bus.Subscribe(event.CompletionDeferred, coordinator.HandleDeferred)

	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		publisher, err := alert.NewAMQPPublisher(amqpURL, envOr("AMQP_QUEUE", defaultAlertQueue, logger), logger)
		if err != nil {
			log.Fatalf("connect alert publisher: %v", err)
		}
		defer publisher.Close()

		bus.Subscribe(event.OrderFailed, publisher.Handle)
		bus.Subscribe(event.InconsistencyFound, publisher.Handle)
	}

	pruner := &reconcile.LedgerPruner{
		Ledger:    ledgerRepo,
		Retention: defaultRetention,
		Interval:  time.Hour,
		Logger:    logger,
		Clock:     clk,
	}
	go pruner.Run(ctx)

	checkoutSvc := &checkout.Service{Repo: orderRepo, Clock: clk}

	router := httpapi.NewRouter(
		&httpapi.OrderHandler{Service: checkoutSvc},
		&httpapi.PaymentHandler{Coordinator: coordinator},
	)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("server listening", map[string]any{"port": port})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}

// openStores selects postgres or sqlite repositories from the DSN shape.
func openStores(ctx context.Context, dbURL string, clk clock.Clock) (order.Repository, ledger.Repository, func(), error) {
	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		pool, err := postgres.Open(ctx, dbURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return postgres.NewOrderRepository(pool, clk), postgres.NewLedgerRepository(pool, clk), pool.Close, nil
	}

	db, err := sqlite.Open(dbURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := sqlite.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return sqlite.NewOrderRepository(db, clk), sqlite.NewLedgerRepository(db, clk), func() { db.Close() }, nil
}

func envOr(key, fallback string, logger logging.Logger) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	logger.Warn(key+" not set, using default", map[string]any{"default": fallback})
	return fallback
}
