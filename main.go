package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockroom/internal/config"
	"stockroom/internal/database"
	"stockroom/internal/observability"
	"stockroom/internal/services"
	"stockroom/pkg/rabbitmq"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		bootstrap := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		bootstrap.Fatal().Err(err).Msg("failed to load config")
	}
	logger := observability.NewLogger(cfg.Log.Level)

	mainCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Tracing ---
	shutdownTracing, err := observability.SetupTracing(mainCtx, observability.TracingConfig{
		Endpoint: cfg.Otel.Endpoint,
		Insecure: cfg.Otel.Insecure,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// --- Database ---
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open database")
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Error().Err(err).Msg("error closing database")
		}
	}()

	// --- Messaging (optional) ---
	var publisher services.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize RabbitMQ client")
		}
		defer mqClient.Close()
		publisher = mqClient

		if err := mqClient.Consume(cfg.RabbitMQ.ReorderQueue, services.EventReorderPointReached, reorderHandler(logger)); err != nil {
			logger.Error().Err(err).Msg("failed to start reorder consumer")
		}
	} else {
		logger.Info().Msg("rabbitmq.url not set, event publishing disabled")
	}

	app := NewApp(AppDeps{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Publisher: publisher,
	})

	// --- Start HTTP Server ---
	go func() {
		logger.Info().Str("port", cfg.App.Port).Msg("starting server")
		if err := app.Listen(cfg.App.Port); err != nil {
			logger.Error().Err(err).Msg("server stopped")
			cancel()
		}
	}()

	<-mainCtx.Done()
	logger.Info().Msg("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error flushing traces")
	}
	logger.Info().Msg("server gracefully stopped")
}

// reorderHandler logs products whose stock reached their reorder point so that
// purchasing can pick them up.
func reorderHandler(logger zerolog.Logger) func(amqp.Delivery) error {
	return func(msg amqp.Delivery) error {
		var event services.ReorderPointReachedEvent
		if err := rabbitmq.DecodeEvent(msg, &event); err != nil {
			return err
		}
		logger.Warn().
			Str("product_id", event.ProductID).
			Str("name", event.Name).
			Str("lot", event.Lot).
			Int("quantity", event.Quantity).
			Int("min_quantity", event.MinQuantity).
			Msg("product reached its reorder point")
		return nil
	}
}
