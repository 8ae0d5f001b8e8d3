package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/financing-gateway/internal/checkout"
	"github.com/noah-isme/financing-gateway/internal/config"
	"github.com/noah-isme/financing-gateway/internal/db"
	"github.com/noah-isme/financing-gateway/internal/eligibility"
	"github.com/noah-isme/financing-gateway/internal/financing"
	"github.com/noah-isme/financing-gateway/internal/health"
	"github.com/noah-isme/financing-gateway/internal/lock"
	"github.com/noah-isme/financing-gateway/internal/obs"
	"github.com/noah-isme/financing-gateway/internal/repo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().
		Str("env", cfg.AppEnv).
		Str("mode", cfg.Mode).
		Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "financing_gateway")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "financing-gateway",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
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

	if err := db.Up(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	var redisClient *redis.Client
	var locker *lock.Locker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		locker = &lock.Locker{R: redisClient}
	} else {
		logger.Warn().Msg("redis not configured; concurrent offers for one order are last-write-wins")
	}

	if cfg.Live() && !strings.HasPrefix(cfg.PublicBaseURL, "https://") {
		logger.Warn().Str("public_base_url", cfg.PublicBaseURL).
			Msg("live mode without https public base url; insecure checkouts will be refused")
	}

	store := repo.Orders{Pool: pool}

	providerClient := financing.Client{
		Live:       cfg.Live(),
		BaseURL:    cfg.ProviderBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.ProviderTimeout},
		Logger:     logger,
	}
	offers := &financing.Service{
		Store:        store,
		Client:       providerClient,
		PartnerKey:   cfg.SecretKey,
		UsagePrefix:  cfg.UsagePrefix,
		ValidityDays: cfg.ValidityDays,
		CallbackURL:  cfg.PublicBaseURL + "/?wc-api=" + financing.GatewayID,
		Description:  cfg.Description,
		Logger:       logger,
	}
	states := financing.States{
		PendingFunding:  cfg.StatePendingFunding,
		PaymentReceived: cfg.StatePaymentReceived,
		Cancelled:       cfg.StateCancelled,
		TimedOut:        cfg.StateTimedOut,
	}
	machine := financing.StateMachine{Store: store, States: states}
	webhook := financing.Webhook{
		Store:     store,
		SecretKey: cfg.SecretKey,
		Machine:   machine,
		Logger:    logger,
	}

	evaluator := eligibility.Evaluator{
		Currency:            cfg.Currency,
		MinAmount:           cfg.MinAmount,
		MaxAmount:           cfg.MaxAmount,
		Countries:           cfg.AllowedCountries,
		Live:                cfg.Live(),
		AllowInsecure:       cfg.AllowInsecure,
		ForceSecureCheckout: cfg.ForceSecureCheckout,
		Logger:              logger,
	}
	checkoutSvc := &checkout.Service{
		Store:       store,
		Offers:      offers,
		Eligibility: evaluator,
		Currency:    cfg.Currency,
		States:      states,
		Locker:      locker,
		LockTTL:     cfg.OfferLockTTL,
		Logger:      logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{Checker: readinessChecker{db: pool, redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	// The provider calls back on the site root with the gateway-identifying
	// query parameter; keep that contract and offer a clean path alongside.
	r.Handle("/", gatewayDispatch(webhook))

	r.Route("/api/v1", func(v chi.Router) {
		v.Post("/checkout/financing", checkoutHandler.Financing)
		v.Handle("/webhooks/financing", http.HandlerFunc(webhook.Handle))
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func gatewayDispatch(webhook financing.Webhook) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wc-api") != financing.GatewayID {
			http.NotFound(w, r)
			return
		}
		webhook.Handle(w, r)
	})
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}
