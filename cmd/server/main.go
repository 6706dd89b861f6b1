package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/card-shop/internal/adapter/handler"
	"github.com/rl1809/card-shop/internal/adapter/identity"
	"github.com/rl1809/card-shop/internal/adapter/messaging"
	"github.com/rl1809/card-shop/internal/adapter/storage"
	"github.com/rl1809/card-shop/internal/config"
	"github.com/rl1809/card-shop/internal/core/domain"
	"github.com/rl1809/card-shop/internal/core/service"
	"github.com/rl1809/card-shop/internal/logger"
	"github.com/rl1809/card-shop/internal/metrics"
	"github.com/rl1809/card-shop/internal/port"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := sql.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLife)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info("connected to database", zap.String("driver", cfg.DBDriver))

	store, err := newStore(cfg.DBDriver, db)
	if err != nil {
		return err
	}
	if cfg.DBAutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		log.Info("schema up to date")
	}

	// Identity
	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	// Order events
	var publisher port.EventPublisher
	if brokers := messaging.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		publisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
		log.Info("publishing order events to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaOrderTopic))
	} else {
		publisher = messaging.NewLogPublisher(log)
		log.Info("no kafka brokers configured, order events are logged only")
	}
	defer publisher.Close()

	m := metrics.New()
	orderService := service.NewOrderService(store, cfg.EventQueueSize, log)
	checkoutOpts := []service.CheckoutOption{service.WithNotifier(orderService)}

	// Idempotency
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		checkoutOpts = append(checkoutOpts, service.WithIdempotency(storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)))
	}

	cartService := service.NewCartService(store, store, log, cfg.TxTimeout)
	checkoutService := service.NewCheckoutService(store, log, cfg.TxTimeout, checkoutOpts...)

	var wg sync.WaitGroup
	for i := 0; i < cfg.EventWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, orderService.GetOrderQueue(), publisher, m, log)
		}(i)
	}
	log.Info("started event workers", zap.Int("count", cfg.EventWorkers))

	// gRPC health
	healthServer := handler.NewHealthServer(store, 10*time.Second, log)
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go healthServer.Run(healthCtx)
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP
	if cfg.Env == logger.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	var limiter *handler.RateLimiter
	if cfg.CheckoutRateLimit > 0 {
		limiter = handler.NewRateLimiter(rate.Limit(cfg.CheckoutRateLimit), cfg.CheckoutRateBurst)
	}
	httpHandler := handler.NewHTTPHandler(cartService, checkoutService, orderService, store, m, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler, verifier, limiter, m, log, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	stopHealth()
	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// Drain pending events before the publisher closes.
	orderService.Close()
	wg.Wait()
	log.Info("event workers stopped")
	return nil
}

func newStore(driver string, db *sql.DB) (*storage.SQLAdapter, error) {
	switch driver {
	case "mysql":
		return storage.NewMySQLAdapter(db), nil
	case "pgx", "postgres":
		return storage.NewPostgresAdapter(db), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

func newVerifier(cfg config.Config) (port.IdentityVerifier, error) {
	if cfg.IdentityURL != "" {
		return identity.NewRemoteVerifier(cfg.IdentityURL, 3*time.Second), nil
	}
	return identity.NewJWTVerifier(cfg.JWTSecret)
}

func workerLoop(id int, queue <-chan domain.Order, publisher port.EventPublisher, m *metrics.Metrics, log *zap.Logger) {
	for order := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := publisher.PublishOrderCompleted(ctx, order); err != nil {
			m.EventsPublish.WithLabelValues("failed").Inc()
			log.Error("failed to publish order event",
				zap.Int("worker", id), zap.Int64("order_id", order.ID), zap.Error(err))
		} else {
			m.EventsPublish.WithLabelValues("published").Inc()
			log.Debug("published order event", zap.Int("worker", id), zap.Int64("order_id", order.ID))
		}

		cancel()
	}
}
