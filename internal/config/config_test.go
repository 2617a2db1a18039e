package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"PORT":                           "",
		"DATABASE_URL":                   "",
		"REDIS_URL":                      "",
		"PRICING_DEFAULT_IVA_PERCENT":    "",
		"PRICING_DEFAULT_ICE_PERCENT":    "",
		"PRICING_DEFAULT_MARGIN_PERCENT": "",
		"SETTINGS_CACHE_TTL":             "",
		"RATE_LIMIT_MAX":                 "",
		"RATE_LIMIT_STRATEGY":            "",
		"AUDIT_ENABLED":                  "",
		"AUDIT_SAMPLING_RATE":            "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Empty(t, cfg.DatabaseURL)
	require.Equal(t, "15", cfg.DefaultIVAPercent.String())
	require.Equal(t, "0", cfg.DefaultICEPercent.String())
	require.Equal(t, "30", cfg.DefaultMarginPercent.String())
	require.Equal(t, 5*time.Minute, cfg.SettingsCacheTTL)
	require.Equal(t, 120, cfg.RateLimitMax)
	require.Equal(t, "sliding", cfg.RateLimitStrategy)
	require.True(t, cfg.AuditEnabled)
	require.Equal(t, 1.0, cfg.AuditSamplingRate)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"PORT":                        ":9090",
		"PRICING_DEFAULT_IVA_PERCENT": "12",
		"CORS_ALLOWED_ORIGINS":        "https://pos.example.com, https://admin.example.com",
		"RATE_LIMIT_WINDOW":           "30s",
		"DB_AUTO_MIGRATE":             "true",
		"RATE_LIMIT_STRATEGY":         "Fixed",
		"AUDIT_ENABLED":               "false",
		"AUDIT_SAMPLING_RATE":         "0.25",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, "12", cfg.DefaultIVAPercent.String())
	require.Equal(t, []string{"https://pos.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 30*time.Second, cfg.RateLimitWindow)
	require.True(t, cfg.DBAutoMigrate)
	require.Equal(t, "fixed", cfg.RateLimitStrategy)
	require.False(t, cfg.AuditEnabled)
	require.Equal(t, 0.25, cfg.AuditSamplingRate)
}

func TestLoadRejectsInvalidTaxPercent(t *testing.T) {
	_, err := LoadForTests(map[string]string{"PRICING_DEFAULT_IVA_PERCENT": "150"})
	require.Error(t, err)

	_, err = LoadForTests(map[string]string{"PRICING_DEFAULT_MARGIN_PERCENT": "abc"})
	require.Error(t, err)
}

func TestLoadRejectsUnknownRateLimitStrategy(t *testing.T) {
	_, err := LoadForTests(map[string]string{"RATE_LIMIT_STRATEGY": "leaky"})
	require.Error(t, err)
}
