package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/forfit/storefront/internal/abacatepay"
	"github.com/forfit/storefront/internal/auth"
	"github.com/forfit/storefront/internal/checkout"
	checkoutapi "github.com/forfit/storefront/internal/checkout/api"
	checkoutdb "github.com/forfit/storefront/internal/checkout/db"
	"github.com/forfit/storefront/internal/config"
	"github.com/forfit/storefront/internal/database"
	"github.com/forfit/storefront/internal/kafka"
	"github.com/forfit/storefront/internal/logger"
	"github.com/forfit/storefront/internal/points"
	"github.com/forfit/storefront/internal/shipping"
	"github.com/forfit/storefront/internal/tenant"
	"github.com/forfit/storefront/internal/utils"
	"github.com/forfit/storefront/internal/webhook"
	webhookapi "github.com/forfit/storefront/internal/webhook/api"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	// --- PostgreSQL ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if err := database.Migrate(ctx, bunDB); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("migration failed: %v", err))
	}
	log.Info("DATABASE", "connected and migrated")

	// --- Redis (tenant cache) ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("redis unavailable at %s, tenant cache disabled: %v", cfg.Redis.Addr, err))
		redisClient = nil
	}

	// --- Kafka (optional) ---
	var checkoutPublisher checkout.Publisher
	var webhookPublisher webhook.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		checkoutPublisher = producer
		webhookPublisher = producer
		log.Info("KAFKA", fmt.Sprintf("order events on topic %s", cfg.Kafka.Topic))
	}

	// --- Services ---
	storage := &checkoutdb.DB{Bun: bunDB}
	ledger := points.NewLedger(bunDB)
	gateway := abacatepay.NewClient(cfg.AbacatePay.BaseURL, &http.Client{Timeout: 30 * time.Second}, log)
	resolver := tenant.NewResolver(bunDB, redisClient, cfg.Redis.TenantTTL, log)

	checkoutService := checkout.NewService(storage, gateway, ledger, shipping.Calculate, checkoutPublisher, cfg.Frontend.BaseURL, log)
	reconciler := webhook.NewReconciler(bunDB, ledger, webhookPublisher, log)

	checkoutHandler := checkoutapi.NewHandler(checkoutService, log)
	webhookHandler := webhookapi.NewHandler(reconciler, log)

	// --- Router ---
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	// Webhooks authenticate by signature, not by session or tenant host.
	r.Post("/webhooks/abacatepay", webhookHandler.AbacatePay)

	r.Group(func(r chi.Router) {
		r.Use(resolver.Middleware())
		r.Use(auth.Middleware(cfg.Auth.JWTSecret))

		r.Post("/orders/checkout", checkoutHandler.Checkout)
		r.Get("/orders", checkoutHandler.ListOrders)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("storefront running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("http server error: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "shutdown signal received")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("forced shutdown: %v", err))
	}
	log.Info("SERVER", "exited gracefully")
}
