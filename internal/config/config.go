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

// Config enumerates every gateway option explicitly; values are mapped from
// the environment in Load rather than assigned reflectively.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	PublicBaseURL string
	// APIKey is the provider's public key. The service itself authenticates
	// with SecretKey only; the public key is exposed for the storefront
	// widget, which lives outside this module.
	APIKey    string
	SecretKey string
	Mode      string

	UsagePrefix  string
	ValidityDays int
	Description  string

	MinAmount        float64
	MaxAmount        float64
	AllowedCountries []string
	Currency         string

	AllowInsecure       bool
	ForceSecureCheckout bool

	StatePendingFunding  string
	StatePaymentReceived string
	StateCancelled       string
	StateTimedOut        string

	ProviderBaseURL string
	ProviderTimeout time.Duration
	OfferLockTTL    time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		PublicBaseURL: strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_BASE_URL")), "/"),
		APIKey:        k.String("GATEWAY_API_KEY"),
		SecretKey:     k.String("GATEWAY_SECRET_KEY"),
		Mode:          strings.ToLower(valueOrDefault(k.String("GATEWAY_MODE"), "test")),

		UsagePrefix:  valueOrDefault(k.String("GATEWAY_USAGE_PREFIX"), "Order"),
		ValidityDays: parseInt(k.String("GATEWAY_VALIDITY_DAYS"), 3),
		Description:  strings.TrimSpace(k.String("GATEWAY_DESCRIPTION")),

		MinAmount:        parseFloat(k.String("GATEWAY_MIN_AMOUNT"), 500),
		MaxAmount:        parseFloat(k.String("GATEWAY_MAX_AMOUNT"), 12000),
		AllowedCountries: splitAndTrim(valueOrDefault(k.String("GATEWAY_COUNTRIES"), "DE")),
		Currency:         valueOrDefault(k.String("GATEWAY_CURRENCY"), "EUR"),

		AllowInsecure:       parseBool(k.String("GATEWAY_ALLOW_INSECURE")),
		ForceSecureCheckout: parseBool(k.String("FORCE_SECURE_CHECKOUT")),

		StatePendingFunding:  valueOrDefault(k.String("STATE_PENDING_FUNDING"), "pending"),
		StatePaymentReceived: valueOrDefault(k.String("STATE_PAYMENT_RECEIVED"), "processing"),
		StateCancelled:       valueOrDefault(k.String("STATE_CANCELLED"), "cancelled"),
		StateTimedOut:        valueOrDefault(k.String("STATE_TIMED_OUT"), "failed"),

		ProviderBaseURL: strings.TrimSpace(k.String("PROVIDER_BASE_URL")),
		ProviderTimeout: parseDuration(k.String("PROVIDER_TIMEOUT"), "15s"),
		OfferLockTTL:    parseDuration(k.String("OFFER_LOCK_TTL"), "30s"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("GATEWAY_SECRET_KEY is required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("PUBLIC_BASE_URL is required")
	}
	if cfg.Mode != "live" && cfg.Mode != "test" {
		return nil, fmt.Errorf("GATEWAY_MODE must be live or test, got %q", cfg.Mode)
	}
	if cfg.ValidityDays <= 0 {
		return nil, errors.New("GATEWAY_VALIDITY_DAYS must be positive")
	}
	if cfg.MinAmount < 0 || cfg.MaxAmount < 0 {
		return nil, errors.New("amount bounds must not be negative")
	}

	return cfg, nil
}

// Live reports whether the gateway talks to the production provider host.
func (c *Config) Live() bool { return c.Mode == "live" }

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

func parseInt(value string, fallback int) int {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return parsed
		}
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

// LoadForTests allows tests to override environment variables without
// touching the real environment.
func LoadForTests(environ map[string]string) (*Config, error) {
	original := make(map[string]string, len(environ))
	for key := range environ {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, environ[key]); err != nil {
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
