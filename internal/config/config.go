package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	DBAutoMigrate      bool

	DefaultIVAPercent    decimal.Decimal
	DefaultICEPercent    decimal.Decimal
	DefaultMarginPercent decimal.Decimal
	SettingsCacheTTL     time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration
	// RateLimitStrategy is "sliding" (sorted-set window) or "fixed" (counter per period).
	RateLimitStrategy  string
	HTTPBodyLimitBytes int64
	IdempotencyTTL     time.Duration
	ShutdownTimeout    time.Duration

	AuditEnabled      bool
	AuditSamplingRate float64
}

// Load reads configuration from environment variables and optional .env files.
// DATABASE_URL and REDIS_URL are optional: without them settings live in memory
// and rate limiting runs in-process.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	iva, err := parsePercent(k.String("PRICING_DEFAULT_IVA_PERCENT"), "15", true)
	if err != nil {
		return nil, fmt.Errorf("PRICING_DEFAULT_IVA_PERCENT: %w", err)
	}
	ice, err := parsePercent(k.String("PRICING_DEFAULT_ICE_PERCENT"), "0", true)
	if err != nil {
		return nil, fmt.Errorf("PRICING_DEFAULT_ICE_PERCENT: %w", err)
	}
	margin, err := parsePercent(k.String("PRICING_DEFAULT_MARGIN_PERCENT"), "30", false)
	if err != nil {
		return nil, fmt.Errorf("PRICING_DEFAULT_MARGIN_PERCENT: %w", err)
	}

	cfg := &Config{
		AppEnv:               valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                 valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:          strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:             strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins:   splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		DBAutoMigrate:        parseBool(k.String("DB_AUTO_MIGRATE")),
		DefaultIVAPercent:    iva,
		DefaultICEPercent:    ice,
		DefaultMarginPercent: margin,
		SettingsCacheTTL:     parseDuration(k.String("SETTINGS_CACHE_TTL"), "5m"),
		RateLimitMax:         parseInt(k.String("RATE_LIMIT_MAX"), 120),
		RateLimitWindow:      parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		HTTPBodyLimitBytes:   int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		ShutdownTimeout:      parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
		AuditEnabled:         parseBoolDefault(k.String("AUDIT_ENABLED"), true),
		AuditSamplingRate:    parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1),
	}

	switch strategy := strings.ToLower(valueOrDefault(strings.TrimSpace(k.String("RATE_LIMIT_STRATEGY")), "sliding")); strategy {
	case "sliding", "fixed":
		cfg.RateLimitStrategy = strategy
	default:
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY: unknown strategy %q", strategy)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return fallback
	}
	return parsed
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parsePercent(value, fallback string, capped bool) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(valueOrDefault(strings.TrimSpace(value), fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percentage %q", value)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("percentage %q must not be negative", value)
	}
	if capped && d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("percentage %q must not exceed 100", value)
	}
	return d, nil
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
