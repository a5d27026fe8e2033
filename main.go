package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"quota-platform/internal/config"
	"quota-platform/internal/db"
	"quota-platform/internal/events"
	"quota-platform/internal/logger"
	"quota-platform/internal/metrics"
	"quota-platform/internal/models"
	"quota-platform/internal/router"
	"quota-platform/internal/scheduler"
	"quota-platform/internal/services"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.InitLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info().Msg("Starting quota platform")

	dialect, err := db.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Fatal().Err(err).Msg("Unsupported database driver")
	}

	database := db.InitDB(dialect, cfg.DBUrl, log)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx, database, dialect); err != nil {
		log.Fatal().Err(err).Msg("Migrations failed")
	}

	store := db.NewStore(database, dialect)
	if err := store.Seed(ctx, cfg.PoolSeedQuota, models.SystemSettings{
		CreditPrice:        cfg.CreditPrice,
		QuotaPrice:         cfg.QuotaPrice,
		DailyPurchaseLimit: cfg.DailyPurchaseLimit,
	}); err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}

	emitters := events.Multi{events.LogEmitter{Logger: log}}
	if cfg.RedisURL != "" {
		publisher, err := events.NewRedisPublisherFromURL(cfg.RedisURL, cfg.EventChannel)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid Redis configuration")
		}
		defer publisher.Close()
		emitters = append(emitters, publisher)
		log.Info().Str("channel", cfg.EventChannel).Msg("Publishing balance events to Redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.NewPrometheus(registry, "quota")

	userService := services.NewUserService(store, log)
	if err := userService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("Bootstrap administrator failed")
	}

	ledgerService := services.NewLedgerService(store, emitters, promMetrics, log)
	if pool, err := ledgerService.GetPool(ctx); err == nil {
		promMetrics.RecordPoolLevel(pool.AvailableQuota)
	}

	handler := router.SetupRouter(router.Deps{
		Users:        userService,
		Auth:         services.NewAuthService(cfg.JWTSecret, log),
		Ledger:       ledgerService,
		Marketplace:  services.NewMarketplaceService(store, emitters, promMetrics, log),
		Requests:     services.NewRequestService(store, emitters, promMetrics, log),
		Transactions: services.NewTransactionService(store, log),
		Settings:     services.NewSettingsService(store, log),
		Ping:         store.Ping,
		Gatherer:     registry,
		RateLimit:    rate.Limit(cfg.RateLimit),
		RateBurst:    cfg.RateBurst,
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	reset := scheduler.NewDailyReset(userService, cfg.DailyResetHour, cfg.Location, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("Server listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return reset.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("Server stopped")
}
