package config

import (
	"log"
	"strings"
	"time"
)

const (
	// ProdDbId is the identifier for the production database
	ProdDbId = "old-cloud"

	// DefaultPlatformFeePercent is the share of every PPV, tip and subscription payment kept by the platform
	DefaultPlatformFeePercent = 20

	DefaultCurrency      = "usd"
	DefaultPublicBaseURL = "http://localhost:3000"

	// DefaultWebhookTimeout bounds a single webhook delivery; Stripe retries anything slower
	DefaultWebhookTimeout = 10 * time.Second

	// WebhookMaxBodyBytes caps the webhook payload read from the request body
	WebhookMaxBodyBytes = 65536
)

// CheckNotProdDB aborts immediately if the configured database URL contains ProdDbId.
// This should be called at the start of any test that interacts with the database.
func CheckNotProdDB() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DatabaseURL is not configured")
	}
	if strings.Contains(cfg.DatabaseURL, ProdDbId) {
		log.Fatalf("Tests aborted: DatabaseURL contains production identifier %s", ProdDbId)
	}
}
