package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gurux2003/charityauction/internal/config"
	"github.com/gurux2003/charityauction/internal/custody"
	"github.com/gurux2003/charityauction/internal/db"
	"github.com/gurux2003/charityauction/internal/engine"
	"github.com/gurux2003/charityauction/internal/events"
	"github.com/gurux2003/charityauction/internal/ledger/postgres"
	"github.com/gurux2003/charityauction/internal/policy"
	"github.com/gurux2003/charityauction/internal/tonclient"
	"github.com/gurux2003/charityauction/internal/treasury"
)

const finalizeBatch = 50

// The worker drives the time-gated transitions: it ends expired auctions
// and retries settlements that failed on an external transfer. Bare reads
// of the clock happen only inside the engine.
func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	api, err := tonclient.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to TON", zap.Error(err))
	}
	payer, err := treasury.NewTONWallet(api, cfg.HotWalletSeed, log)
	if err != nil {
		log.Fatal("failed to open hot wallet", zap.Error(err))
	}

	store := postgres.NewStore(pool)
	whitelist := policy.NewPGRegistry(pool, policy.TableWhitelist)
	charities := policy.NewPGRegistry(pool, policy.TableCharities)
	publisher := events.NewRedisPublisher(rdb, log)
	registry := custody.NewClient(cfg.NFTRegistryURL, log)

	eng := engine.New(store, registry, payer, whitelist, charities, publisher, cfg, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	go runFinalizer(ctx, eng, cfg.FinalizeInterval, log)
	runSettleRetrier(ctx, eng, cfg.SettleRetryInterval, log)
}

func runFinalizer(ctx context.Context, eng *engine.Engine, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("finalizer started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := eng.FinalizeExpired(ctx, finalizeBatch); n > 0 {
				log.Info("finalized expired auctions", zap.Int("count", n))
			}
		}
	}
}

func runSettleRetrier(ctx context.Context, eng *engine.Engine, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("settlement retrier started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := eng.RetryUnsettled(ctx, finalizeBatch); n > 0 {
				log.Info("retried settlements", zap.Int("count", n))
			}
		}
	}
}
