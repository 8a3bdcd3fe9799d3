package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL         string
	StripeSecretKey     string
	StripeWebhookSecret string
	// Shared HS256 secret of the session service that issues viewer tokens
	JWTSecret string
	// Where checkout and onboarding redirects land (the web frontend)
	PublicBaseURL string
	// Optional: enables the processed-event marker when set
	RedisURL string
	// Optional: base URL for running remote HTTP integration tests (e.g., https://api.example.com)
	IntegrationBaseURL string
	// Server ports
	HTTPPort string
	GRPCPort string

	// Parsed from the raw string variables below
	PlatformFeePercent int64
	Currency           string
	WebhookTimeout     time.Duration

	platformFeePercentRaw string
	webhookTimeoutRaw     string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{}

	// Try to load .env file from current directory and parent directories
	currentDir, _ := os.Getwd()
	for currentDir != "/" {
		envPath := filepath.Join(currentDir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			err = godotenv.Load(envPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load .env file: %v", err)
			}
			break
		}
		currentDir = filepath.Dir(currentDir)
	}

	requiredVars := []struct {
		name     string
		envVar   string
		display  string
		required bool
	}{
		{"DatabaseURL", "DATABASE_URL", "Database URL", true},
		{"StripeSecretKey", "STRIPE_SECRET_KEY", "Stripe Secret Key", true},
		{"StripeWebhookSecret", "STRIPE_WEBHOOK_SECRET", "Stripe Webhook Secret", true},
		{"JWTSecret", "JWT_SECRET", "JWT Secret", true},
		{"PublicBaseURL", "PUBLIC_BASE_URL", "Public Base URL", false},
		{"RedisURL", "REDIS_URL", "Redis URL", false},
		{"IntegrationBaseURL", "INTEGRATION_BASE_URL", "Integration Base URL", false},
		{"HTTPPort", "PORT", "HTTP Port", false},
		{"GRPCPort", "GRPC_PORT", "gRPC Port", false},
		{"Currency", "CURRENCY", "Currency", false},
	}

	for _, v := range requiredVars {
		value := os.Getenv(v.envVar)
		if v.required && value == "" {
			return nil, fmt.Errorf("missing required environment variable: %s", v.display)
		}
		configField := reflect.ValueOf(config).Elem().FieldByName(v.name)
		configField.SetString(value)
	}

	// Numeric and duration settings are parsed in applyDefaults
	config.platformFeePercentRaw = os.Getenv("PLATFORM_FEE_PERCENT")
	config.webhookTimeoutRaw = os.Getenv("WEBHOOK_TIMEOUT")

	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() error {
	if c.HTTPPort == "" {
		c.HTTPPort = "8080"
	}
	if c.GRPCPort == "" {
		c.GRPCPort = "50051"
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = DefaultPublicBaseURL
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	c.Currency = strings.ToLower(c.Currency)

	c.PlatformFeePercent = DefaultPlatformFeePercent
	if c.platformFeePercentRaw != "" {
		pct, err := strconv.ParseInt(c.platformFeePercentRaw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid PLATFORM_FEE_PERCENT %q: %v", c.platformFeePercentRaw, err)
		}
		if pct < 0 || pct > 100 {
			return fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %d", pct)
		}
		c.PlatformFeePercent = pct
	}

	c.WebhookTimeout = DefaultWebhookTimeout
	if c.webhookTimeoutRaw != "" {
		d, err := time.ParseDuration(c.webhookTimeoutRaw)
		if err != nil {
			return fmt.Errorf("invalid WEBHOOK_TIMEOUT %q: %v", c.webhookTimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %s", d)
		}
		c.WebhookTimeout = d
	}
	return nil
}
