package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/internal/api"
	"checkout-service/internal/auth"
	"checkout-service/internal/broker"
	"checkout-service/internal/gateway"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting checkout service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	if cfg.Observ.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Observ.SentryDSN,
			Environment: cfg.Server.Env,
		}); err != nil {
			logger.Error("Failed to initialize Sentry", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	ctx := context.Background()
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	var events service.EventPublisher = broker.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicOrder))
	}

	paymentGateway := gateway.NewClient(gateway.Config{
		BaseURL:        cfg.Gateway.BaseURL,
		KeyID:          cfg.Gateway.KeyID,
		KeySecret:      cfg.Gateway.KeySecret,
		Timeout:        cfg.Gateway.Timeout,
		MaxRetries:     cfg.Gateway.MaxRetries,
		RequestsPerSec: cfg.Gateway.RequestsPerSec,
	})

	var inventory *service.InventoryClient
	switch cfg.Business.StockLedger {
	case "redis":
		if err := service.SyncStockToLedger(ctx, db, redisClient); err != nil {
			logger.Fatal("Failed to seed Redis stock ledger", zap.Error(err))
		}
		inventory = service.NewInventoryClient(redisClient, db)
	case "postgres":
		inventory = service.NewInventoryClient(db, nil)
	default:
		logger.Fatal("Unknown stock ledger", zap.String("stock_ledger", cfg.Business.StockLedger))
	}

	payments := service.NewPaymentService(db, db, paymentGateway, redisClient, events, service.PaymentSettings{
		Currency:       cfg.Business.Currency,
		RefundOnCancel: cfg.Business.RefundOnCancel,
		LockTTL:        cfg.Business.PaymentLockTTL,
	})
	orders := service.NewOrderService(db, redisClient, db, db, inventory, payments, events,
		service.Pricing{
			TaxRatePercent:        cfg.Business.TaxRatePercent,
			FreeShippingThreshold: cfg.Business.FreeShippingThreshold,
			FlatShippingFee:       cfg.Business.FlatShippingFee,
		},
		cfg.Business.Currency,
	)
	carts := service.NewCartService(redisClient, db, inventory)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(carts, orders, payments,
		auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		map[string]api.Pinger{"postgres": db, "redis": redisClient},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
