package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/utafrali/fibpay/internal/callback"
	"github.com/utafrali/fibpay/internal/config"
	"github.com/utafrali/fibpay/internal/event"
	"github.com/utafrali/fibpay/internal/gateway"
	handlerhttp "github.com/utafrali/fibpay/internal/handler/http"
	"github.com/utafrali/fibpay/internal/repository/postgres"
	"github.com/utafrali/fibpay/internal/service"
	"github.com/utafrali/fibpay/migrations"
	"github.com/utafrali/fibpay/pkg/database"
	"github.com/utafrali/fibpay/pkg/health"
	"github.com/utafrali/fibpay/pkg/httpclient"
	"github.com/utafrali/fibpay/pkg/kafka"
)

// App owns the service's runtime resources and wires the layers together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *kafka.Producer
	server   *http.Server

	reconciler *service.Reconciler
	stopReconc context.CancelFunc
	reconcDone sync.WaitGroup
}

// NewApp builds the application from configuration. Failing to reach
// PostgreSQL, Redis or Kafka is fatal at startup.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	producer := kafka.NewProducer(kafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.FIBTimeout
	httpCfg.MaxAttempts = cfg.FIBRetryAttempts
	httpCfg.RetryWait = cfg.FIBRetryWait
	httpCfg.InsecureSkipVerify = cfg.FIBSkipTLSVerify
	fibHTTP := httpclient.New(httpCfg)

	tokens, err := gateway.NewTokenSource(cfg, "", fibHTTP, logger)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}

	breaker := httpclient.NewCircuitBreakerClient(
		fibHTTP,
		httpclient.DefaultCircuitBreakerConfig("fib-gateway"),
		logger,
	)

	var limiter *rate.Limiter
	if cfg.FIBRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.FIBRateLimit), int(cfg.FIBRateLimit))
	}

	fibClient := gateway.NewClient(cfg.PaymentsBaseURL(), tokens, breaker, limiter, logger)

	repo := postgres.NewPaymentRepository(pool)
	publisher := event.NewKafkaPublisher(producer)
	paymentSvc := service.NewPaymentService(cfg, fibClient, repo, publisher, logger)

	reconciler := service.NewReconciler(
		repo, paymentSvc, cfg.ReconcileInterval, cfg.ReconcileMinAge, logger,
	)

	guard := callback.NewReplayGuard(redisClient, 0, logger)

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", producer.Ping)

	router := handlerhttp.NewRouter(handlerhttp.RouterConfig{
		Payments:            handlerhttp.NewPaymentHandler(paymentSvc, logger),
		Webhook:             handlerhttp.NewWebhookHandler(paymentSvc, cfg.WebhookSecret, guard, logger),
		Health:              healthHandler,
		Logger:              logger,
		WebhookRateLimitRPS: cfg.WebhookRateLimitRPS,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		redis:      redisClient,
		producer:   producer,
		server:     server,
		reconciler: reconciler,
	}, nil
}

// Run starts the reconciler and the HTTP server, blocking until the server
// stops. http.ErrServerClosed is not an error.
func (a *App) Run() error {
	reconcCtx, cancel := context.WithCancel(context.Background())
	a.stopReconc = cancel
	a.reconcDone.Add(1)
	go func() {
		defer a.reconcDone.Done()
		a.reconciler.Run(reconcCtx)
	}()

	a.logger.Info("fibpay service started",
		slog.Int("port", a.cfg.HTTPPort),
		slog.String("environment", a.cfg.Environment),
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, the reconciler, and closes shared resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down fibpay service")

	var shutdownErr error
	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = fmt.Errorf("shutdown http server: %w", err)
	}

	if a.stopReconc != nil {
		a.stopReconc()
		a.reconcDone.Wait()
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("failed to close kafka producer", slog.String("error", err.Error()))
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error("failed to close redis client", slog.String("error", err.Error()))
	}
	a.pool.Close()

	a.logger.Info("fibpay service stopped")
	return shutdownErr
}
