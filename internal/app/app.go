package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-desk/internal/auth"
	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/user"
	"github.com/xenking/order-desk/internal/events"
	"github.com/xenking/order-desk/internal/handler"
	"github.com/xenking/order-desk/internal/idempotency"
	"github.com/xenking/order-desk/internal/repository"
	"github.com/xenking/order-desk/pkg/health"
	"github.com/xenking/order-desk/pkg/httpmiddleware"
)

const serviceName = "order-desk"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application. The
// go-faster/sdk *app.Telemetry satisfies m.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", health.PingCheck(pool), health.WithTimeout(5*time.Second))
	healthSvc.Add(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))
	healthSvc.Add(health.Liveness, "gc_pause", health.GCMaxPauseCheck(time.Second))

	// Optional Redis for Idempotency-Key support.
	var idem handler.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb, err := newRedis(cfg.Redis.Addr)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.Add(health.Readiness, "redis", health.RedisCheck(rdb), health.WithTimeout(2*time.Second))
		idem = idempotency.NewStore(rdb, cfg.Redis.IdempotencyTTL)
		lg.Info("Idempotency keys enabled", zap.Duration("ttl", cfg.Redis.IdempotencyTTL))
	}

	orderOpts := []order.Option{
		order.WithInactivePromos(cfg.Orders.AllowInactivePromo),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	}
	// Optional Kafka for order events.
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		orderOpts = append(orderOpts, order.WithPublisher(publisher))
		lg.Info("Order events enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	promoRepo := repository.NewPromoRepository(pool)
	orderStore := repository.NewOrderStore(pool)
	userRepo := repository.NewUserRepository(pool)

	// Domain services.
	orderService, err := order.NewService(orderStore, orderOpts...)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	userService := user.NewService(userRepo, user.WithBcryptCost(cfg.Auth.BcryptCost))
	tokens, err := auth.NewIssuer([]byte(cfg.Auth.Secret), auth.WithTTL(cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL))
	if err != nil {
		return errors.Wrap(err, "create token issuer")
	}

	h := handler.New(handler.Config{
		Products:    productRepo,
		Promos:      promoRepo,
		Orders:      orderService,
		Users:       userService,
		Tokens:      tokens,
		Idempotency: idem,
	})

	// Health endpoints and API routes on one router.
	r := chi.NewRouter()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/api", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "Idempotency-Key"},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Idempotent-Replayed"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   isProbe,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, m),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: flip readiness, let balancers drain, then stop.
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		if ctx.Err() != nil {
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		defer healthSvc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}

// isProbe exempts health probes from rate limiting.
func isProbe(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz"
}

// newRedis accepts either a redis:// URL (as platforms provide in REDIS_URL)
// or a plain host:port address.
func newRedis(addr string) (*redis.Client, error) {
	if !strings.Contains(addr, "://") {
		return redis.NewClient(&redis.Options{Addr: addr}), nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return redis.NewClient(opts), nil
}
