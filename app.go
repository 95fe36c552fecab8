package main

import (
	"time"

	"stockroom/internal/config"
	"stockroom/internal/handlers"
	"stockroom/internal/middleware"
	"stockroom/internal/repositories"
	"stockroom/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// AppDeps are the collaborators NewApp wires together.
type AppDeps struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *gorm.DB
	Publisher services.EventPublisher // optional
	Clock     func() time.Time        // optional, defaults to time.Now
}

// NewApp builds the Fiber application with all routes registered.
func NewApp(deps AppDeps) *fiber.App {
	productRepo := repositories.NewGORMProductRepository(deps.DB)

	opts := []services.Option{
		services.WithLogger(deps.Logger.With().Str("component", "inventory_service").Logger()),
		services.WithWithdrawAttempts(deps.Config.Inventory.WithdrawAttempts),
		services.WithExpiryWindow(deps.Config.Inventory.ExpiryWindowDays),
	}
	if deps.Publisher != nil {
		opts = append(opts, services.WithPublisher(deps.Publisher))
	}
	if deps.Clock != nil {
		opts = append(opts, services.WithClock(deps.Clock))
	}
	inventoryService := services.NewInventoryService(productRepo, opts...)
	productHandler := handlers.NewProductHandler(inventoryService, deps.Logger)

	app := fiber.New(fiber.Config{
		AppName:               "stockroom",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(deps.Logger))

	apiV1 := app.Group("/api/v1")
	productHandler.RegisterRoutes(apiV1)

	app.Get("/health", func(c *fiber.Ctx) error {
		status, health, database := fiber.StatusOK, "healthy", "connected"
		if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status, health, database = fiber.StatusServiceUnavailable, "unhealthy", "unreachable"
		}
		messaging := "disabled"
		if deps.Publisher != nil {
			messaging = "enabled"
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    health,
			"time":      time.Now().Format(time.RFC3339),
			"database":  database,
			"messaging": messaging,
		})
	})

	return app
}
