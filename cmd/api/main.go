package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/birbparty/birb-feathers/internal/api"
	"github.com/birbparty/birb-feathers/internal/cache"
	"github.com/birbparty/birb-feathers/internal/database"
	"github.com/birbparty/birb-feathers/internal/serving"
	"github.com/birbparty/birb-feathers/internal/telemetry"
)

func main() {
	if err := telemetry.Init(telemetry.NewConfigFromEnv()); err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	cfg, err := api.LoadConfig()
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to load configuration")
	}

	cacheConfig, err := cache.NewConfigFromEnv()
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to load cache configuration")
	}

	dbConfig, err := database.NewConfigFromEnv()
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to load database configuration")
	}

	servingConfig, err := serving.NewConfigFromEnv()
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to load serving configuration")
	}

	redisCache, err := cache.NewRedisCache(cacheConfig)
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()
	telemetry.L().Info("Connected to Redis")

	db, err := database.NewDB(dbConfig)
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	defer db.Close()
	telemetry.L().Info("Connected to PostgreSQL")

	// The registry gets its own smaller pool so catalog traffic never
	// competes with value reads for connections.
	registryDBConfig, err := dbConfig.RegistryConfig()
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to derive registry pool configuration")
	}
	registryDB, err := database.NewDB(registryDBConfig)
	if err != nil {
		telemetry.L().WithError(err).Fatal("Failed to connect registry pool")
	}
	defer registryDB.Close()

	store := database.NewFeatureStore(db)
	registry := database.NewFeatureRegistry(registryDB)
	engine := serving.NewEngine(redisCache, store, servingConfig)

	handler := api.NewHandler(engine, registry, db, redisCache)

	app := fiber.New(fiber.Config{
		AppName:               "birb-feathers-api",
		ReadTimeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.RequestTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	})

	api.SetupMiddleware(app)
	api.SetupRoutes(app, handler, cfg)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		telemetry.L().Info("Shutting down gracefully")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			telemetry.L().WithError(err).Error("Server forced to shutdown")
		}

		telemetry.Shutdown(shutdownCtx)
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	telemetry.L().WithField("addr", addr).Info("API listening")

	if err := app.Listen(addr); err != nil {
		telemetry.L().WithError(err).Fatal("Failed to start server")
	}
}
