package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/payment-paytr/internal/cart"
	"github.com/noah-isme/payment-paytr/internal/common"
	"github.com/noah-isme/payment-paytr/internal/config"
	"github.com/noah-isme/payment-paytr/internal/db"
	"github.com/noah-isme/payment-paytr/internal/health"
	"github.com/noah-isme/payment-paytr/internal/obs"
	"github.com/noah-isme/payment-paytr/internal/payment"
	"github.com/noah-isme/payment-paytr/internal/ratelimit"
)

const serviceName = "payment-paytr"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrationsEnabled {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = serviceName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	store := cart.NewPGStore(pool)
	provider, err := payment.NewPayTR(payment.Deps{
		Carts:    store,
		Totals:   cart.Totals{},
		Regions:  store,
		Sessions: store,
		HTTPClient: &http.Client{
			Timeout:   cfg.PayTR.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger: &logger,
	}, merchantConfig(cfg.PayTR))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise paytr provider")
	}

	tokenLimiter, err := ratelimit.NewRedis(redisClient, cfg.TokenRateLimit, "ratelimit:paytr-token")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token rate limiter")
	}

	paymentHandler := &payment.Handler{Provider: provider, Carts: store, Sessions: store}
	webhook := payment.Webhook{
		Provider:  provider,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		MaxBody:   cfg.WebhookMaxBodyBytes,
	}
	idem := common.Idem{R: redisClient}
	limit := ratelimit.Handler{
		Limiter: tokenLimiter,
		Key:     ratelimit.ByClientIPAndCart,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	healthHandler := health.Handler{Probes: []health.Probe{
		health.Postgres(pool, 500*time.Millisecond),
		health.Redis(redisClient, 300*time.Millisecond),
	}}

	r := newRouter(cfg, logger, tracingEnabled)
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/payments/paytr/carts/{cartId}", func(c chi.Router) {
			c.With(idem.Middleware).Post("/session", paymentHandler.Session)
			c.With(limit.Middleware).Post("/token", paymentHandler.Token)
			c.Get("/status", paymentHandler.Status)
		})
		v.Post("/webhooks/paytr", webhook.Handle)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, logger zerolog.Logger, tracing bool) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracing {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))
	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

func merchantConfig(c config.PayTR) payment.MerchantConfig {
	return payment.MerchantConfig{
		MerchantID:      c.MerchantID,
		MerchantKey:     c.MerchantKey,
		MerchantSalt:    c.MerchantSalt,
		TokenEndpoint:   c.TokenEndpoint,
		NoInstallment:   c.NoInstallment,
		MaxInstallment:  c.MaxInstallment,
		TestMode:        c.TestMode,
		DebugOn:         c.DebugOn,
		TimeoutLimit:    c.TimeoutLimit,
		MerchantOkURL:   c.OkURL,
		MerchantFailURL: c.FailURL,
		IframeBaseURL:   c.IframeBaseURL,
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
