package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/backend-groupbuy/internal/checkout"
)

// Config holds the API process configuration loaded from the environment.
type Config struct {
	AppEnv             string `validate:"required"`
	Port               string `validate:"required"`
	DatabaseURL        string `validate:"required"`
	RedisURL           string `validate:"required"`
	AutoMigrate        bool
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string

	CronSecret          string
	CronRateLimitMax    int           `validate:"gte=1"`
	CronRateLimitWindow time.Duration `validate:"gt=0"`
	CheckoutRateLimit   string        `validate:"required"`

	Sweep    SweepConfig
	Checkout CheckoutConfig

	VATRatePercent float64 `validate:"gte=0,lte=100"`
}

// SweepConfig bounds a single commitment sweep invocation.
type SweepConfig struct {
	PageSize    int           `validate:"gte=1,lte=1000"`
	MaxPages    int           `validate:"gte=1"`
	Concurrency int           `validate:"gte=1,lte=64"`
	Timeout     time.Duration `validate:"gt=0"`
}

// CheckoutConfig parameterises the admission policy evaluator.
type CheckoutConfig struct {
	StandardMOQ         int           `validate:"gte=1"`
	PolicyLookupTimeout time.Duration `validate:"gt=0"`
}

// TriggerConfig is used by the processes that invoke the sweep endpoint.
type TriggerConfig struct {
	TargetURL      string        `validate:"required,url"`
	CronSecret     string        `validate:"required"`
	Interval       time.Duration `validate:"gte=1m"`
	RequestTimeout time.Duration `validate:"gt=0"`
	MaxAttempts    int           `validate:"gte=1,lte=10"`
	RetryBase      time.Duration `validate:"gt=0"`
	RedisURL       string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func loadEnv() (*koanf.Koanf, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return k, nil
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	k, err := loadEnv()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		AutoMigrate:        parseBool(k.String("DB_AUTO_MIGRATE")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CronSecret:          strings.TrimSpace(k.String("CRON_SECRET")),
		CronRateLimitMax:    parseInt(k.String("CRON_RATE_LIMIT_MAX"), 30),
		CronRateLimitWindow: parseDuration(k.String("CRON_RATE_LIMIT_WINDOW"), "1m"),
		CheckoutRateLimit:   valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "120-M"),

		Sweep: SweepConfig{
			PageSize:    parseInt(k.String("SWEEP_PAGE_SIZE"), 200),
			MaxPages:    parseInt(k.String("SWEEP_MAX_PAGES"), 5),
			Concurrency: parseInt(k.String("SWEEP_CONCURRENCY"), 4),
			Timeout:     parseDuration(k.String("SWEEP_TIMEOUT"), "25s"),
		},
		Checkout: CheckoutConfig{
			StandardMOQ:         parseInt(k.String("CHECKOUT_STANDARD_MOQ"), checkout.StandardMOQ),
			PolicyLookupTimeout: parseDuration(k.String("POLICY_LOOKUP_TIMEOUT"), "2s"),
		},
		VATRatePercent: parseFloat(k.String("VAT_RATE_PERCENT"), 7.5),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, describe(err)
	}
	if cfg.CronSecret == "" {
		return nil, errors.New("CRON_SECRET is required")
	}
	return cfg, nil
}

// LoadTrigger reads the configuration for cmd/cron and cmd/scheduler.
func LoadTrigger() (*TriggerConfig, error) {
	k, err := loadEnv()
	if err != nil {
		return nil, err
	}
	cfg := &TriggerConfig{
		TargetURL:      strings.TrimSpace(k.String("CRON_TARGET_URL")),
		CronSecret:     strings.TrimSpace(k.String("CRON_SECRET")),
		Interval:       parseDuration(k.String("CRON_INTERVAL"), "5m"),
		RequestTimeout: parseDuration(k.String("CRON_REQUEST_TIMEOUT"), "30s"),
		MaxAttempts:    parseInt(k.String("CRON_MAX_ATTEMPTS"), 3),
		RetryBase:      parseDuration(k.String("CRON_RETRY_BASE"), "500ms"),
		RedisURL:       strings.TrimSpace(k.String("REDIS_URL")),
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, describe(err)
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
	return strings.EqualFold(c.AppEnv, "production")
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
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

// malformed integers keep their zero value so validation reports them
func parseInt(value string, fallback int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return -1
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests applies env overrides, runs load and restores the previous values.
func LoadForTests[T any](env map[string]string, load func() (T, error)) (T, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			var zero T
			return zero, err
		}
	}
	cfg, err := load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return cfg, err
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
