package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const EnvPrefix = "MARKETPLACE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv              = "MARKETPLACE_APP_ENV"
	EnvPort                = "MARKETPLACE_APP_PORT"
	EnvLogLevel            = "MARKETPLACE_LOG_LEVEL"
	EnvDBDSN               = "MARKETPLACE_DB_DSN"
	EnvDBHost              = "MARKETPLACE_DB_HOST"
	EnvDBUser              = "MARKETPLACE_DB_USER"
	EnvDBName              = "MARKETPLACE_DB_NAME"
	EnvDBPassword          = "MARKETPLACE_DB_PASSWORD"
	EnvRedisURL            = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret           = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer           = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMins          = "MARKETPLACE_JWT_EXPIRATION_MINUTES"
	EnvGCPProjectID        = "MARKETPLACE_GCP_PROJECT_ID"
	EnvPubSubDomainTopic   = "MARKETPLACE_PUBSUB_DOMAIN_TOPIC"
	EnvCartMaxLineQuantity = "MARKETPLACE_CART_MAX_LINE_QUANTITY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

// LoadDotEnv loads a .env file when present. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading dotenv: %w", err)
	}
	return nil
}
