package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gurux2003/charityauction/internal/config"
	"github.com/gurux2003/charityauction/internal/custody"
	"github.com/gurux2003/charityauction/internal/db"
	"github.com/gurux2003/charityauction/internal/engine"
	"github.com/gurux2003/charityauction/internal/events"
	apphttp "github.com/gurux2003/charityauction/internal/http"
	"github.com/gurux2003/charityauction/internal/http/handlers"
	"github.com/gurux2003/charityauction/internal/ledger/postgres"
	"github.com/gurux2003/charityauction/internal/policy"
	"github.com/gurux2003/charityauction/internal/tonclient"
	"github.com/gurux2003/charityauction/internal/treasury"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// TON payout wallet
	api, err := tonclient.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to TON", zap.Error(err))
	}
	payer, err := treasury.NewTONWallet(api, cfg.HotWalletSeed, log)
	if err != nil {
		log.Fatal("failed to open hot wallet", zap.Error(err))
	}

	// Ledger + registries
	store := postgres.NewStore(pool)
	whitelist := policy.NewPGRegistry(pool, policy.TableWhitelist)
	charities := policy.NewPGRegistry(pool, policy.TableCharities)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Engine
	registry := custody.NewClient(cfg.NFTRegistryURL, log)
	eng := engine.New(store, registry, payer, whitelist, charities, publisher, cfg, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(cfg, log)
	auctionHandler := handlers.NewAuctionHandler(eng, log)
	accountHandler := handlers.NewAccountHandler(eng, log)
	adminHandler := handlers.NewAdminHandler(whitelist, charities, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, auctionHandler, accountHandler, adminHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
