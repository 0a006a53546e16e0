package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gamemarket/backend/internal/cache"
	"github.com/gamemarket/backend/internal/chat"
	"github.com/gamemarket/backend/internal/config"
	"github.com/gamemarket/backend/internal/db"
	handler "github.com/gamemarket/backend/internal/handler/http"
	"github.com/gamemarket/backend/internal/listing"
	"github.com/gamemarket/backend/internal/notification"
	"github.com/gamemarket/backend/internal/order"
	"github.com/gamemarket/backend/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "marketplace-api").Logger()

	log.Info().Msg("Marketplace API starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	dbConn, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	var statsCache cache.Cache
	if cfg.Redis.Addr != "" {
		statsCache = cache.NewRedisCache(cfg.Redis.Addr, "marketplace-api")
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Stats cache enabled")
	}

	orderRepo := order.NewRepository(dbConn.Pool)
	listings := listing.NewReader(dbConn.Pool)
	notifier := notification.NewNotifier(dbConn.Pool)
	chatRooms := chat.NewProvisioner(dbConn.Pool)

	orderSvc := order.NewService(orderRepo, listings, notifier, chatRooms, statsCache)
	orderHandler := handler.NewOrderHandler(orderSvc)
	notificationHandler := handler.NewNotificationHandler(notifier)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      transport.NewRouter(orderHandler, notificationHandler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
