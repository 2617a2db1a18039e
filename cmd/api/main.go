package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
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
	"github.com/rs/zerolog"

	"github.com/noah-isme/inventario-pricing/internal/audit"
	"github.com/noah-isme/inventario-pricing/internal/common"
	"github.com/noah-isme/inventario-pricing/internal/config"
	"github.com/noah-isme/inventario-pricing/internal/db"
	"github.com/noah-isme/inventario-pricing/internal/health"
	"github.com/noah-isme/inventario-pricing/internal/lock"
	"github.com/noah-isme/inventario-pricing/internal/obs"
	"github.com/noah-isme/inventario-pricing/internal/quote"
	"github.com/noah-isme/inventario-pricing/internal/ratelimit"
	"github.com/noah-isme/inventario-pricing/internal/resilience"
	"github.com/noah-isme/inventario-pricing/internal/security"
	"github.com/noah-isme/inventario-pricing/internal/settings"
)

const serviceName = "inventario-pricing"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "inventario")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   serviceName,
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := connectDatabase(ctx, cfg, logger)
	if pool != nil {
		defer pool.Close()
	}
	redisClient := connectRedis(ctx, cfg, logger, metricsEnabled)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	var store settings.Store = &settings.MemoryStore{}
	if pool != nil {
		store = settings.PGStore{DB: pool}
	}
	var (
		settingsCache  *settings.Cache
		settingsLocker settings.Locker
	)
	if redisClient != nil {
		settingsCache = settings.NewCache(redisClient, cfg.SettingsCacheTTL)
		settingsLocker = lock.Locker{R: redisClient}
	}
	breakerLogger := logger.With().Str("component", "settings").Logger()
	storeBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "settings_store",
		MinRequests:  envInt("SETTINGS_BREAKER_MIN_REQUESTS", 5),
		FailureRatio: envFloat("SETTINGS_BREAKER_FAILURE_RATIO", 0.5),
		OpenFor:      envDurationMillis("SETTINGS_BREAKER_OPEN_MS", 30000),
		Logger:       &breakerLogger,
	})
	settingsService, err := settings.NewService(settings.ServiceConfig{
		Store:    store,
		Cache:    settingsCache,
		Breaker:  storeBreaker,
		Locker:   settingsLocker,
		Defaults: settings.Defaults(cfg.DefaultIVAPercent, cfg.DefaultICEPercent, cfg.DefaultMarginPercent),
		Logger:   logger.With().Str("component", "settings").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise settings service")
	}

	validate := common.NewValidator()
	settingsHandler := &settings.Handler{Svc: settingsService, Validate: validate}
	var auditStore audit.Store = &audit.MemoryStore{}
	if pool != nil {
		auditStore = audit.PGStore{DB: pool}
	}
	auditRecorder := audit.HTTPRecorder{
		Service: &audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled, SamplingRate: cfg.AuditSamplingRate},
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}
	auditHandler := audit.Handler{Store: auditStore}
	quoteHandler := &quote.Handler{
		Settings: settingsService,
		Validate: validate,
		Logger:   logger.With().Str("component", "pricing").Logger(),
	}

	limiter := newLimiter(cfg, redisClient, logger)
	rateLimit := ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP, Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     envBool("SECURE_HEADERS_ENABLE", true),
		EnableHSTS: envBool("SECURE_HSTS_ENABLE", cfg.AppEnv == "production"),
		NoStore:    true,
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", common.IdempotencyKeyHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", settings.RevisionHeader, common.ReplayedHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		Probes: map[string]health.Probe{
			// served from cache or last known settings when the store is down
			"settings": func(ctx context.Context) error {
				_, err := settingsService.Current(ctx)
				return err
			},
		},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rateLimit.Middleware)
		v.Use(security.BodyLimit{Max: cfg.HTTPBodyLimitBytes}.Middleware)
		v.Use(security.RequireJSON)

		v.Route("/pricing", quoteHandler.Routes)

		v.Route("/settings/tax", func(s chi.Router) {
			s.Get("/", settingsHandler.Get)
			// Audit sits inside Idem so replayed responses are not recorded twice.
			update := auditRecorder.Middleware(audit.HTTPConfig{
				Action:           "settings.tax.update",
				Resource:         "settings.tax",
				ResourceIDHeader: settings.RevisionHeader,
				SkipFailures:     true,
				MetadataFunc: func(r *http.Request, _ int, _ http.Header) map[string]any {
					if key := r.Header.Get(common.IdempotencyKeyHeader); key != "" {
						return map[string]any{"idempotencyKey": key}
					}
					return nil
				},
			})(http.HandlerFunc(settingsHandler.Update))
			if redisClient != nil {
				update = common.Idem{
					R:             redisClient,
					TTL:           cfg.IdempotencyTTL,
					ReplayHeaders: []string{settings.RevisionHeader},
				}.Middleware(update)
			}
			s.Method(http.MethodPut, "/", update)
			s.Get("/audit", auditHandler.List)
		})
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = obs.TraceHandler(r, serviceName)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("database", pool != nil).Bool("redis", redisClient != nil).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-sigCtx.Done():
	}

	health.SetReady(false)
	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

// newLimiter picks the rate limiter backend: in-process without Redis, otherwise the
// sliding-window sorted-set limiter or, with RATE_LIMIT_STRATEGY=fixed, ulule's Redis store.
func newLimiter(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) ratelimit.Allower {
	if rdb == nil {
		return ratelimit.NewMemoryLimiter()
	}
	if cfg.RateLimitStrategy == "fixed" {
		store, err := ratelimit.NewRedisStoreLimiter(rdb, "pricing:ratelimit:fixed")
		if err == nil {
			return store
		}
		logger.Warn().Err(err).Msg("fixed-window limiter unavailable, using sliding window")
	}
	return ratelimit.RedisLimiter{Client: rdb, Prefix: "pricing:ratelimit:"}
}

// connectDatabase opens the pool when DATABASE_URL is set. Without it settings are kept in memory.
func connectDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, tax settings are kept in memory")
		return nil
	}
	if cfg.DBAutoMigrate {
		if err := db.Up(cfg.DatabaseURL); err != nil {
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
	poolConfig.ConnConfig.RuntimeParams["application_name"] = serviceName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

// connectRedis returns nil when REDIS_URL is not set.
func connectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metricsEnabled bool) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, settings cache and idempotency disabled")
		return nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
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
		return health.ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return health.ErrDisabled
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

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
