// Package app wires the storefront API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wassimD28/store-go/internal/domain/order"
	"github.com/wassimD28/store-go/internal/domain/promotion"
	"github.com/wassimD28/store-go/internal/events"
	"github.com/wassimD28/store-go/internal/handler"
	"github.com/wassimD28/store-go/internal/storage/postgres"
	"github.com/wassimD28/store-go/internal/storage/redis"
	"github.com/wassimD28/store-go/pkg/health"
	"github.com/wassimD28/store-go/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	var promotionRepo promotion.Repository = postgres.NewPromotionRepository(pool)

	if cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		promotionRepo = redis.NewPromotionCache(promotionRepo, rdb, cfg.Redis.TTL, lg.Named("cache"))
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		lg.Info("Promotion cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	// Domain services.
	opts := []promotion.Option{
		promotion.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
		promotion.WithPreviewConcurrency(cfg.Promotion.PreviewConcurrency),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewPublisher(
			events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic),
			"store-go/promotion",
			lg.Named("events"),
		)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Error("Close event publisher", zap.Error(err))
			}
		}()
		opts = append(opts,
			promotion.WithPublisher(publisher),
			promotion.WithPublishTimeout(cfg.Kafka.PublishTimeout),
		)
		lg.Info("Event publishing enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	promotionService, err := promotion.NewService(promotionRepo, productRepo, lg.Named("promotion"), opts...)
	if err != nil {
		return errors.Wrap(err, "create promotion service")
	}
	orderService := order.NewService(promotionService, orderRepo)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: newHTTPHandler(ctx, cfg.RateLimit, routerDeps{
			api:            handler.NewHandler(productRepo, promotionService, orderService),
			health:         healthSvc,
			lg:             zctx.From(ctx),
			tracerProvider: m.TracerProvider(),
			meterProvider:  m.MeterProvider(),
			propagator:     otel.GetTextMapPropagator(),
		}),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

type routerDeps struct {
	api            *handler.Handler
	health         *health.Health
	lg             *zap.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
}

// newHTTPHandler builds the router: health endpoints plus the rate limited
// API, behind the middleware chain.
func newHTTPHandler(ctx context.Context, rl RateLimitConfig, deps routerDeps) http.Handler {
	router := chi.NewRouter()
	router.Use(httpmiddleware.LogRequests())
	router.Get("/livez", deps.health.LiveEndpoint)
	router.Get("/readyz", deps.health.ReadyEndpoint)
	router.Group(func(r chi.Router) {
		r.Use(httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Rate:  rl.Rate,
			Burst: rl.Burst,
		}))
		deps.api.Register(r)
	})

	return httpmiddleware.Wrap(router,
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument("store-api", deps.tracerProvider, deps.meterProvider, deps.propagator),
		httpmiddleware.InjectLogger(deps.lg),
		httpmiddleware.Recovery(),
	)
}
