package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heartapi/heartgate/internal/auth"
	"github.com/heartapi/heartgate/internal/config"
	"github.com/heartapi/heartgate/internal/consumer"
	"github.com/heartapi/heartgate/internal/handler"
	"github.com/heartapi/heartgate/internal/middleware"
	"github.com/heartapi/heartgate/internal/mq"
	"github.com/heartapi/heartgate/internal/pkg/logger"
	"github.com/heartapi/heartgate/internal/ratelimit"
	"github.com/heartapi/heartgate/internal/repository"
	"github.com/heartapi/heartgate/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Get().Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level)
	log := logger.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence. Postgres when a DSN is configured, in-memory otherwise.
	var (
		ledger   service.QuotaLedger
		orders   service.OrderStore
		registry service.InterfaceRegistry
		credRepo auth.SecretSource
	)
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ledger = repository.NewPostgresQuotaLedger(db)
		orders = repository.NewPostgresOrderStore(db)
		registry = repository.NewPostgresInterfaceRegistry(db)
		credRepo = repository.NewPostgresCredentialRepo(db)
		log.Info("using postgres persistence")
	} else {
		ledger = repository.NewMemoryQuotaLedger()
		orders = repository.NewMemoryOrderStore()
		registry = repository.NewMemoryInterfaceRegistry()
		log.Warn("no database configured, using in-memory persistence")
	}

	// Shared key-value store and broker. Redis when reachable, in-memory
	// single-node fallback otherwise.
	var (
		kv     service.MarkerStore
		broker mq.Broker
	)
	if redisKV, err := repository.NewRedisKV(cfg); err == nil {
		kv = redisKV
		rb := mq.NewRedisBroker(redisKV.Client)
		go rb.RunDelayMover(ctx, cfg.Queues.OrderExpire)
		broker = rb
		log.Info("connected to redis", "addr", cfg.Redis.Addr)
	} else {
		log.Warn("redis unavailable, using in-memory store and broker", "error", err)
		kv = repository.NewMemoryKV()
		broker = mq.NewMemoryBroker()
	}

	// Services.
	creds := service.NewCredentialManager(cfg, credRepo)
	verifier := auth.NewVerifier(creds)
	guard := auth.NewReplayGuard(kv,
		time.Duration(cfg.Auth.NonceTTLSeconds)*time.Second,
		time.Duration(cfg.Auth.TimestampSkewSeconds)*time.Second)
	bucket := ratelimit.NewTokenBucket(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)

	window := time.Duration(cfg.Order.ReservationMinutes) * time.Minute
	admission := service.NewAdmissionService(registry, ledger,
		service.NewHTTPForwarder(10*time.Second), broker, cfg.Queues.Compensation)
	orderSvc := service.NewOrderService(registry, orders, kv, broker,
		cfg.Queues.OrderExpire, cfg.Queues.PaymentSuccess, window)

	// Consumers.
	runner := consumer.NewRunner(broker, cfg.Queues.Group)
	runner.Bind(cfg.Queues.Compensation, consumer.NewCompensationConsumer(ledger, kv).Handle)
	runner.Bind(cfg.Queues.PaymentSuccess, consumer.NewPaymentConsumer(orders, ledger, kv, window).Handle)
	runner.Bind(cfg.Queues.OrderExpire, consumer.NewTimeoutConsumer(orders, registry, kv, nil).Handle)
	runner.Start(ctx)

	// HTTP surface.
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Metrics(), middleware.ErrorHandler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	invokeHandler := handler.NewInvokeHandler(admission)
	api := router.Group("/api",
		middleware.GlobalRateLimit(bucket),
		middleware.Authenticate(creds, verifier, guard))
	api.Any("/*path", invokeHandler.Invoke)

	orderHandler := handler.NewOrderHandler(orderSvc)
	router.POST("/orders", orderHandler.Create)
	router.GET("/orders", orderHandler.List)
	router.POST("/notify/payment", handler.NewPaymentHandler(orderSvc).Notify)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	go func() {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	runner.Stop()
	log.Info("server stopped")
}
