// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	COHORT_HOST="0.0.0.0"
//	COHORT_PORT="8080"
//	COHORT_HEALTH_PORT="9090"
//	COHORT_READ_TIMEOUT="15s"
//	COHORT_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	COHORT_POSTGRES_URL="postgres://localhost/cohort"
//	COHORT_POSTGRES_MAX_CONNS="20"
//
// Token store settings:
//
//	COHORT_REDIS_URL="redis://localhost:6379"
//	COHORT_REDIS_PASSWORD=""
//	COHORT_REDIS_DB="0"
//
// OIDC client settings (one registration per principal kind):
//
//	COHORT_OIDC_ISSUER_URL="https://cognito-idp.us-east-1.amazonaws.com/pool"
//	COHORT_RESEARCHER_CLIENT_ID="..."
//	COHORT_RESEARCHER_CLIENT_SECRET="..."
//	COHORT_RESEARCHER_REDIRECT_URL="https://api.example.com/auth/researcher/callback"
//	COHORT_PARTICIPANT_CLIENT_ID="..."
//	COHORT_PARTICIPANT_CLIENT_SECRET="..."
//	COHORT_PARTICIPANT_REDIRECT_URL="https://api.example.com/auth/participant/callback"
//
// Observability settings:
//
//	COHORT_LOG_LEVEL="info"  # debug, info, warn, error
//	COHORT_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/oidc: Uses the OIDC client configuration
//   - pkg/observability: Uses observability configuration
package config
