package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	defaultTokenEndpoint = "https://www.paytr.com/odeme/api/get-token"
	defaultIframeURL     = "https://www.paytr.com/odeme/guvenli/"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv              string
	Port                string
	DatabaseURL         string
	RedisURL            string
	CORSAllowedOrigins  []string
	MigrationsEnabled   bool
	WebhookReplayTTL    time.Duration
	WebhookMaxBodyBytes int64
	TokenRateLimit      string
	PayTR               PayTR
	Obs                 Obs
}

// PayTR carries the merchant credentials and checkout options.
type PayTR struct {
	MerchantID     string
	MerchantKey    string
	MerchantSalt   string
	TokenEndpoint  string
	IframeBaseURL  string
	NoInstallment  bool
	MaxInstallment int
	TestMode       bool
	DebugOn        bool
	TimeoutLimit   int
	OkURL          string
	FailURL        string
	RequestTimeout time.Duration
}

// Obs configures logging, metrics and tracing.
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:         k.String("DATABASE_URL"),
		RedisURL:            k.String("REDIS_URL"),
		CORSAllowedOrigins:  splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MigrationsEnabled:   parseBool(k.String("MIGRATIONS_ENABLED"), true),
		WebhookReplayTTL:    parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		WebhookMaxBodyBytes: int64(parseInt(k.String("WEBHOOK_MAX_BODY_BYTES"), 64<<10)),
		TokenRateLimit:      valueOrDefault(k.String("TOKEN_RATE_LIMIT"), "30-M"),
		PayTR: PayTR{
			MerchantID:     strings.TrimSpace(k.String("PAYTR_MERCHANT_ID")),
			MerchantKey:    k.String("PAYTR_MERCHANT_KEY"),
			MerchantSalt:   k.String("PAYTR_MERCHANT_SALT"),
			TokenEndpoint:  valueOrDefault(k.String("PAYTR_TOKEN_ENDPOINT"), defaultTokenEndpoint),
			IframeBaseURL:  valueOrDefault(k.String("PAYTR_IFRAME_URL"), defaultIframeURL),
			NoInstallment:  parseBool(k.String("PAYTR_NO_INSTALLMENT"), false),
			MaxInstallment: parseInt(k.String("PAYTR_MAX_INSTALLMENT"), 0),
			TestMode:       parseBool(k.String("PAYTR_TEST_MODE"), false),
			DebugOn:        parseBool(k.String("PAYTR_DEBUG_ON"), false),
			TimeoutLimit:   parseInt(k.String("PAYTR_TIMEOUT_LIMIT"), 30),
			OkURL:          strings.TrimSpace(k.String("PAYTR_OK_URL")),
			FailURL:        strings.TrimSpace(k.String("PAYTR_FAIL_URL")),
			RequestTimeout: parseDuration(k.String("PAYTR_REQUEST_TIMEOUT"), "20s"),
		},
		Obs: Obs{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "paytr"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PayTR.MerchantID == "" {
		return nil, errors.New("PAYTR_MERCHANT_ID is required")
	}
	if cfg.PayTR.MerchantKey == "" || cfg.PayTR.MerchantSalt == "" {
		return nil, errors.New("PAYTR_MERCHANT_KEY and PAYTR_MERCHANT_SALT are required")
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

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
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
		return strings.TrimSpace(value)
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

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error.
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
