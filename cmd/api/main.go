package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/acidbank/internal/api"
	"github.com/punchamoorthee/acidbank/internal/auth"
	"github.com/punchamoorthee/acidbank/internal/cache"
	"github.com/punchamoorthee/acidbank/internal/config"
	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/punchamoorthee/acidbank/internal/idempotency"
	"github.com/punchamoorthee/acidbank/internal/notify"
	"github.com/punchamoorthee/acidbank/internal/seed"
	"github.com/punchamoorthee/acidbank/internal/service"
	"github.com/punchamoorthee/acidbank/internal/store"
	"github.com/shopspring/decimal"
)

// ledger is what both storage backends provide.
type ledger interface {
	api.Accounts
	service.Ledger
	idempotency.Finder
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	sinks := []notify.Sink{notify.NewLogSink(logger)}

	var db ledger
	switch cfg.Storage {
	case config.StorageMemory:
		slog.Warn("using in-memory ledger, balances are lost on restart")
		mem := store.NewMemoryStore(cfg.LockTimeout)
		if err := seedMemory(mem, cfg.MemorySeedAccounts, cfg.MemorySeedBalance); err != nil {
			slog.Error("memory seeding failed", "error", err)
			os.Exit(1)
		}
		slog.Info("seeded in-memory ledger", "accounts", cfg.MemorySeedAccounts,
			"balance", cfg.MemorySeedBalance.StringFixed(domain.MoneyScale))
		db = mem
	default:
		pool, err := store.NewPool(ctx, cfg.DBSource)
		if err != nil {
			slog.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		ledgerStore := store.NewLedgerStore(pool, cfg.LockTimeout)
		if err := ledgerStore.Migrate(ctx); err != nil {
			slog.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		db = ledgerStore
		sinks = append(sinks, notify.NewPostgresSink(pool))
	}

	var outcomes idempotency.OutcomeCache
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer client.Close()
		oc := cache.NewOutcomeCache(client, cfg.ReferenceCacheTTL)
		if err := oc.Ping(ctx); err != nil {
			// The ledger still answers replays; the cache only saves round trips.
			slog.Warn("redis unreachable, continuing without reference cache", "error", err)
		} else {
			outcomes = oc
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := notify.NewKafkaSink(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.AuditTopic))
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}

	dispatcher := notify.NewDispatcher(logger, cfg.HookBuffer, sinks...)
	dispatcher.Start()

	engine := service.NewTransferService(
		db,
		idempotency.NewGuard(db, outcomes, logger),
		dispatcher,
		service.Limits{MaxAmount: cfg.MaxTransferAmount, LargeTransferThreshold: cfg.LargeTransferThreshold},
		logger,
	)
	handler := api.NewHandler(db, engine, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(auth.NewVerifier(cfg.JWTSecret, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "env", cfg.Env, "port", cfg.Port, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop <- syscall.SIGTERM
		}
	}()

	<-stop
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	// In-flight requests are done; flush queued audit events before closing sinks.
	dispatcher.Close()
	slog.Info("server exited")
}

// seedMemory creates the same accounts cmd/seeder writes to Postgres, so
// cmd/benchmark can run against either backend.
func seedMemory(mem *store.MemoryStore, n int, balance decimal.Decimal) error {
	base := time.Now().UTC()
	for i := 1; i <= n; i++ {
		if _, err := mem.Seed(seed.Account(i, balance, base)); err != nil {
			return err
		}
	}
	return nil
}
