package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gurux2003/charityauction/internal/config"
	"github.com/gurux2003/charityauction/internal/http/handlers"
	"github.com/gurux2003/charityauction/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	auctionHandler *handlers.AuctionHandler,
	accountHandler *handlers.AccountHandler,
	adminHandler *handlers.AdminHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (internal callers only)
	api.Post("/auth/token", authHandler.IssueToken)

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Meta (public, no auth required)
	metaHandler := handlers.NewMetaHandler(cfg)
	api.Get("/params", metaHandler.GetParams)

	// Public reads
	api.Get("/auctions", auctionHandler.ListAuctions)
	api.Get("/auctions/count", auctionHandler.GetCount)
	api.Get("/auctions/:id", auctionHandler.GetAuction)
	api.Get("/auctions/:id/events", auctionHandler.GetAuctionEvents)
	api.Get("/accounts/:address", accountHandler.GetAccount)
	api.Get("/whitelist/:address", accountHandler.GetWhitelistStatus)
	api.Get("/charities/:address", accountHandler.GetCharityStatus)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Auctions
	protected.Post("/auctions", auctionHandler.CreateAuction)
	protected.Post("/auctions/:id/bids", auctionHandler.PlaceBid)
	protected.Post("/auctions/:id/buy-now", auctionHandler.BuyNow)
	protected.Post("/auctions/:id/extend", auctionHandler.ExtendAuction)
	protected.Post("/auctions/:id/end", auctionHandler.EndAuction)
	protected.Post("/auctions/:id/withdraw", auctionHandler.WithdrawBid)
	protected.Post("/auctions/:id/reclaim", auctionHandler.ReclaimNFT)

	// Admin registries
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg))
	admin.Post("/whitelist", adminHandler.AddToWhitelist)
	admin.Delete("/whitelist/:address", adminHandler.RemoveFromWhitelist)
	admin.Post("/charities", adminHandler.AddCharity)
	admin.Delete("/charities/:address", adminHandler.RemoveCharity)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
