package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/maison-living/backend-maison/internal/app"
	"github.com/maison-living/backend-maison/internal/cart"
	"github.com/maison-living/backend-maison/internal/checkout"
	"github.com/maison-living/backend-maison/internal/common"
	"github.com/maison-living/backend-maison/internal/config"
	"github.com/maison-living/backend-maison/internal/coupon"
	"github.com/maison-living/backend-maison/internal/events"
	"github.com/maison-living/backend-maison/internal/health"
	"github.com/maison-living/backend-maison/internal/inventory"
	"github.com/maison-living/backend-maison/internal/money"
	"github.com/maison-living/backend-maison/internal/notify"
	"github.com/maison-living/backend-maison/internal/obs"
	"github.com/maison-living/backend-maison/internal/order"
	"github.com/maison-living/backend-maison/internal/payment"
	"github.com/maison-living/backend-maison/internal/pricing"
	"github.com/maison-living/backend-maison/internal/ratelimit"
	"github.com/maison-living/backend-maison/internal/security"
	"github.com/maison-living/backend-maison/internal/shipping"
	"github.com/maison-living/backend-maison/internal/store"
	"github.com/maison-living/backend-maison/internal/wholesale"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "maison")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "maison-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if envBool("DB_AUTO_MIGRATE", false) {
		source := envOrDefault("DB_MIGRATIONS_URL", "file://migrations")
		if err := app.RunMigrations(source, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "maison-api"

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
	if metricsEnabled {
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

	taskClient, err := app.NewTaskClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise task client")
	}
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	db := store.NewPostgres(pool)

	busLogger := logger.With().Str("component", "events").Logger()
	bus := events.NewBus(events.Options{
		Logger:           busLogger,
		HistoryCapacity:  cfg.EventsHistoryCap,
		StrictValidation: cfg.EventsStrictValidation,
		Metrics:          events.NewMetrics(metricsNamespace, nil),
	})
	events.RegisterDefaultSchemas(bus)

	inventorySvc := &inventory.Service{
		Store:             db,
		Events:            bus,
		Logger:            logger.With().Str("component", "inventory").Logger(),
		LowStockThreshold: cfg.LowStockThreshold,
	}
	if _, err := inventorySvc.Attach(bus); err != nil {
		logger.Fatal().Err(err).Msg("attach inventory subscriber")
	}

	dispatcher := &notify.Dispatcher{
		Tasks:           taskClient,
		Logger:          logger.With().Str("component", "notify").Logger(),
		AdminEmail:      cfg.AdminEmail,
		ForwardWebhooks: cfg.OpsWebhookURL != "",
	}
	if _, err := dispatcher.Attach(bus); err != nil {
		logger.Fatal().Err(err).Msg("attach notify dispatcher")
	}

	cartSvc := &cart.Service{R: redisClient, TTL: cfg.CartTTL, Currency: cfg.CurrencyCode}
	cartHandler := cart.NewHandler(cart.HandlerConfig{Service: cartSvc})

	shippingResolver := &shipping.Resolver{
		Store:         db,
		FreeThreshold: money.Cents(cfg.FreeShippingThreshold, cfg.CurrencyCode),
	}
	shippingHandler := shipping.NewHandler(shipping.HandlerConfig{Resolver: shippingResolver})

	engine := &pricing.Engine{
		Coupons:  &coupon.Resolver{Store: db},
		Tiers:    db,
		Shipping: shippingResolver,
	}
	pricingHandler := pricing.NewHandler(pricing.HandlerConfig{Carts: cartSvc, Engine: engine})

	orderSvc := &order.Service{
		Store:     db,
		Events:    bus,
		Customers: db,
		Logger:    logger.With().Str("component", "order").Logger(),
	}
	orderHandler := order.NewHandler(order.HandlerConfig{Service: orderSvc, Lister: db})

	checkoutSvc := &checkout.Service{
		Carts:     cartSvc,
		Pricing:   engine,
		Orders:    db,
		Events:    bus,
		Customers: db,
		Logger:    logger.With().Str("component", "checkout").Logger(),
	}
	checkoutHandler := checkout.NewHandler(checkout.HandlerConfig{Service: checkoutSvc})

	tierHandler := wholesale.NewHandler(wholesale.HandlerConfig{Store: db})

	paymentWebhook := payment.Webhook{
		Orders:    orderSvc,
		Provider:  payment.HMACProvider{Secret: envOrDefault("PAYMENT_WEBHOOK_SECRET", "")},
		Replay:    redisClient,
		ReplayTTL: cfg.IdempotencyTTL,
	}
	webhookLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return "webhook:" + common.ClientIP(r) },
			Window: time.Minute,
			Max:    envInt("WEBHOOK_RATE_LIMIT_PER_MIN", 120),
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limit store") },
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
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
	r.Use(customerIDMiddleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: true}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("HTTP_MAX_BODY_BYTES", 1<<20))}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Customer-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/shipping/options", shippingHandler.Options)

		v.Route("/carts", func(c chi.Router) {
			c.Use(idem.Middleware)
			c.Get("/{id}", cartHandler.Get)
			c.Get("/{id}/quote", pricingHandler.Quote)
			c.Post("/", cartHandler.Create)
			c.Post("/{id}/lines", cartHandler.AddLine)
			c.Patch("/{id}/lines/{variantId}", cartHandler.UpdateLineQty)
			c.Delete("/{id}/lines/{variantId}", cartHandler.RemoveLine)
			c.Post("/{id}/coupon", cartHandler.ApplyCoupon)
			c.Delete("/{id}/coupon", cartHandler.RemoveCoupon)
			c.Put("/{id}/destination", cartHandler.SetDestination)
			c.Put("/{id}/shipping", cartHandler.SelectShipping)
			c.Delete("/{id}", cartHandler.Clear)
		})

		v.With(idem.Middleware).Post("/checkout", checkoutHandler.Confirm)

		v.Get("/orders", orderHandler.List)
		v.Get("/orders/{id}", orderHandler.Get)
		v.Post("/orders/{id}/cancel", orderHandler.Cancel)

		v.Route("/admin", func(admin chi.Router) {
			admin.Patch("/orders/{id}/status", orderHandler.PatchStatus)
			admin.Post("/orders/{id}/tracking", orderHandler.AddTracking)
			admin.Post("/orders/{id}/refund", orderHandler.Refund)
			admin.Get("/customers/{id}/tier", tierHandler.GetTier)
			admin.Put("/customers/{id}/tier", tierHandler.AssignTier)
			admin.Delete("/customers/{id}/tier", tierHandler.RemoveTier)
		})

		v.With(webhookLimit.Middleware).Post("/webhooks/payment", paymentWebhook.Handle)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

// customerIDMiddleware trusts the upstream gateway's X-Customer-ID header.
// Authentication itself happens at the edge; this service only needs the
// identity for cart binding and order listing.
func customerIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get("X-Customer-ID")); id != "" {
			r = r.WithContext(common.WithCustomerID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
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
		return errors.New("redis not configured")
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

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
