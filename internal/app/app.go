package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/cache"
	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/discount"
	"github.com/xenking/storefront-checkout/internal/domain/promotion"
	"github.com/xenking/storefront-checkout/internal/events"
	"github.com/xenking/storefront-checkout/internal/handler"
	"github.com/xenking/storefront-checkout/internal/notify"
	"github.com/xenking/storefront-checkout/internal/payment"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
	"github.com/xenking/storefront-checkout/pkg/health"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

const serviceName = "storefront-checkout"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	checkoutCfg, err := cfg.Checkout.Resolve()
	if err != nil {
		return errors.Wrap(err, "checkout config")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	store := postgres.NewStore(pool)

	// Health check service.
	healthSvc := health.New()
	pgCheck := health.PingCheck("postgres", store)
	pgCheck.Timeout = 5 * time.Second
	healthSvc.Register(pgCheck)
	healthSvc.Register(health.GoroutineCheck(10000))

	// Redis backs coupon cache invalidation, idempotency keys and rate limit
	// counters. Without it they live in process memory.
	var (
		invalidator checkout.CacheInvalidator = cache.NopInvalidator{}
		idem        cache.Idempotency         = cache.NewMemoryIdempotency(cfg.Redis.TTL, time.Now)
		limiter                               = func(limit int) httpmiddleware.Limiter {
			l := httpmiddleware.NewMemoryLimiter(limit, cfg.RateLimit.Window)
			go l.Run(ctx, 2*cfg.RateLimit.Window)
			return l
		}
	)
	if cfg.Redis.URL != "" {
		rdb, err := cache.NewClient(cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()

		redisCheck := health.PingCheck("redis", redisPinger{rdb})
		redisCheck.Timeout = 2 * time.Second
		healthSvc.Register(redisCheck)
		invalidator = cache.NewRedisInvalidator(rdb)
		idem = cache.NewRedisIdempotency(rdb, cfg.Redis.TTL)
		limiter = func(limit int) httpmiddleware.Limiter {
			return cache.NewRedisLimiter(rdb, limit, cfg.RateLimit.Window)
		}
	} else {
		lg.Warn("Redis not configured, using in-memory idempotency store")
	}

	// Order events go to Kafka when brokers are configured.
	var publisher events.Publisher
	if cfg.Kafka.Enabled() {
		kp, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			return errors.Wrap(err, "create kafka publisher")
		}
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Error("Close kafka publisher", zap.Error(err))
			}
		}()
		publisher = kp
	}
	dispatcher := notify.NewDispatcher(notify.LogSender{}, publisher, serviceName)
	defer dispatcher.Wait()

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	repos := store.Repos()
	calc := discount.NewCalculator(checkoutCfg.Rounding)
	coupons := coupon.NewService(repos.Coupons, repos.Customers, calc)
	promotions := promotion.NewService(repos.Promotions, repos.Customers, calc)
	checkoutSvc, err := checkout.NewService(checkoutCfg, store, coupons, promotions,
		checkout.WithNotifier(dispatcher),
		checkout.WithCacheInvalidator(invalidator),
		checkout.WithMeterProvider(m.MeterProvider()),
		checkout.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	payments := payment.NewRegistry(cfg.Payment.Gateways()...)
	lg.Info("Payment methods", zap.Strings("available", payments.Available()))

	// HTTP handlers.
	h := handler.NewHandler(
		handler.Config{ReturnURL: cfg.Payment.ReturnURL, CancelURL: cfg.Payment.CancelURL},
		checkoutSvc,
		coupons,
		promotions,
		repos.Products,
		payments,
		idem,
	)
	if len(cfg.Auth.APIKeyHashes) == 0 {
		lg.Warn("No API keys configured, order status and payment routes will reject every request")
	}
	admin, err := httpmiddleware.APIKey(httpmiddleware.APIKeyConfig{
		Pepper:    cfg.Auth.APIKeyPepper,
		KeyHashes: cfg.Auth.APIKeyHashes,
	})
	if err != nil {
		return errors.Wrap(err, "api key middleware")
	}

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.Handle("/livez", healthSvc.LiveHandler())
	mux.Handle("/readyz", healthSvc.ReadyHandler())
	mux.Handle("/api/", h.Routes(admin))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{
					"Content-Type",
					httpmiddleware.HeaderAPIKey,
					httpmiddleware.HeaderRequestID,
					handler.HeaderIdempotencyKey,
					handler.HeaderUserID,
				},
				ExposeHeaders: []string{
					httpmiddleware.HeaderRequestID,
					"X-RateLimit-Limit",
					"X-RateLimit-Remaining",
					"X-RateLimit-Reset",
					"Retry-After",
				},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(limiter(cfg.RateLimit.Max)),
			httpmiddleware.RateLimit(limiter(cfg.RateLimit.CheckoutMax),
				httpmiddleware.WithScope("checkout"),
				httpmiddleware.WithMatch(httpmiddleware.MethodPath(http.MethodPost,
					"/api/checkout", "/api/coupons/validate")),
			),
		),
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

// redisPinger adapts a Redis client to health.Pinger.
type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
