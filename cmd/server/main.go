/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave scheduling server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then environment)
  2. Initialize logging
  3. Open SQLite store
  4. Connect optional Redis cache and AMQP publisher
  5. Create API handler and router
  6. Start the advance sweeper
  7. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (configurable timeout)
  3. Stop the sweeper, close cache/publisher/database
  4. Exit

ENVIRONMENT:
  See config/config.go for all variables. Unset CACHE_REDIS_ADDR and
  AMQP_URL fall back to no-op implementations.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment schema
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/leave-scheduler/api"
	"github.com/warp/leave-scheduler/cache"
	"github.com/warp/leave-scheduler/config"
	"github.com/warp/leave-scheduler/notify"
	"github.com/warp/leave-scheduler/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Server.LogLevel)

	// Store
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("failed to open database")
	}
	defer store.Close()

	// Handler with optional cache and publisher
	handler := api.NewHandler(store, log)

	if cfg.Cache.RedisAddr != "" {
		ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
		redisCache, err := cache.NewRedis(context.Background(),
			cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, ttl)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("failed to connect to redis")
		}
		defer redisCache.Close()
		handler.Cache = redisCache
		log.Info().Str("addr", cfg.Cache.RedisAddr).Dur("ttl", ttl).Msg("availability cache enabled")
	}

	if cfg.AMQP.URL != "" {
		publisher, err := notify.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to amqp broker")
		}
		defer publisher.Close()
		handler.Publisher = publisher
		log.Info().Str("exchange", cfg.AMQP.Exchange).Msg("event publishing enabled")
	}

	// Advance sweeper
	sweeper := api.NewAdvanceSweeper(handler.Reconciler, handler.Publisher, log)
	sweeper.Enabled = cfg.Sweep.Enabled
	sweeper.CheckInterval = time.Duration(cfg.Sweep.IntervalMinutes) * time.Minute
	sweeper.Start()
	defer sweeper.Stop()

	// Router and server
	origins := strings.Split(cfg.Server.AllowedCORSOrigins, ",")
	router := api.NewRouter(handler, origins)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	grace := time.Duration(cfg.Server.ShutdownGraceSecs) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().
		Logger()
}
