package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"food_ordering/cache"
	"food_ordering/config"
	"food_ordering/database"
	"food_ordering/handlers"
	"food_ordering/logging"
	"food_ordering/outbox"
	"food_ordering/services"
	"food_ordering/shutdown"
	"food_ordering/tracing"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env)
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	tracing.Init()

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Error("database connect failed", "driver", cfg.DBDriver, "err", err)
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Error("database migrate failed", "err", err)
		os.Exit(1)
	}
	if err := database.SeedReference(db); err != nil {
		log.Error("reference data seed failed", "err", err)
		os.Exit(1)
	}

	// Redis is optional: without it the catalog is read straight from the
	// database and checkout has no idempotency guard.
	var (
		catalogCache services.CatalogCache
		idem         handlers.IdempotencyGuard
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, continuing without cache", "addr", cfg.RedisAddr, "err", err)
		} else {
			catalogCache = cache.NewCatalogCache(rdb, cfg.CatalogTTL)
			idem = cache.NewIdempotencyStore(rdb, cfg.IdempotentTTL)
		}
	}

	// Outbox relay
	if cfg.KafkaAddr != "" {
		writer := outbox.NewKafkaWriter(cfg.KafkaAddr)
		defer writer.Close()
		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
		relay := outbox.NewRelay(log, outbox.NewGormStore(db), dispatch, "food-ordering-relay")
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped", "err", err)
			}
		}()
	} else {
		log.Info("KAFKA_ADDR not set, outbox events stay in the database")
	}

	var notifier services.Notifier = services.NewLogNotifier(log)
	if cfg.SMTPHost != "" {
		notifier = services.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	}

	auth := services.NewAuthService(db, cfg.JWTSecret, cfg.TokenTTL)
	catalog := services.NewCatalogService(db, catalogCache, log)
	promotions := services.NewPromotionService(db)
	pricing := services.NewPricingService(db, promotions)
	carts := services.NewCartService(db, promotions)
	rewards := services.NewRewardService(db, log)
	orders := services.NewOrderService(db, pricing, promotions, rewards, notifier, log)
	payments := services.NewPaymentService(db, cfg.PaymentURL, cfg.PaymentSecret, cfg.PaymentReturnURL, log)

	router := handlers.NewRouter(handlers.Deps{
		Log:         log,
		Auth:        auth,
		Catalog:     catalog,
		Carts:       carts,
		Promotions:  promotions,
		Pricing:     pricing,
		Orders:      orders,
		Rewards:     rewards,
		Payments:    payments,
		Idempotency: idem,
		TokenTTL:    cfg.TokenTTL,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "err", err)
	}
	log.Info("food-ordering shutdown")
}
