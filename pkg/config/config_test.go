package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortd/cohort/pkg/observability"
)

// setRequiredEnv sets the minimum environment needed for Validate to pass.
func setRequiredEnv(t *testing.T) {
	t.Setenv("COHORT_POSTGRES_URL", "postgres://localhost/cohort_test")
	t.Setenv("COHORT_OIDC_ISSUER_URL", "https://issuer.example.org")
	t.Setenv("COHORT_RESEARCHER_CLIENT_ID", "researcher-client")
	t.Setenv("COHORT_RESEARCHER_REDIRECT_URL", "https://app.example.org/auth/researcher/callback")
	t.Setenv("COHORT_PARTICIPANT_CLIENT_ID", "participant-client")
	t.Setenv("COHORT_PARTICIPANT_REDIRECT_URL", "https://app.example.org/auth/participant/callback")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnTimeout)
	assert.Empty(t, cfg.TokenStore.RedisURL)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COHORT_PORT", "9000")
	t.Setenv("COHORT_READ_TIMEOUT", "5s")
	t.Setenv("COHORT_POSTGRES_MAX_CONNS", "50")
	t.Setenv("COHORT_REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("COHORT_LOG_LEVEL", "debug")
	t.Setenv("COHORT_METRICS_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 50, cfg.Database.MaxConns)
	assert.Equal(t, "redis://localhost:6379/2", cfg.TokenStore.RedisURL)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.MetricsEnabled)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T)
		wantErr string
	}{
		{
			name:    "missing postgres URL",
			mutate:  func(t *testing.T) { t.Setenv("COHORT_POSTGRES_URL", "") },
			wantErr: "postgres URL is required",
		},
		{
			name:    "missing issuer",
			mutate:  func(t *testing.T) { t.Setenv("COHORT_OIDC_ISSUER_URL", "") },
			wantErr: "OIDC issuer URL is required",
		},
		{
			name:    "missing researcher client ID",
			mutate:  func(t *testing.T) { t.Setenv("COHORT_RESEARCHER_CLIENT_ID", "") },
			wantErr: "researcher OIDC client ID is required",
		},
		{
			name:    "missing participant redirect URL",
			mutate:  func(t *testing.T) { t.Setenv("COHORT_PARTICIPANT_REDIRECT_URL", "") },
			wantErr: "participant OIDC redirect URL is required",
		},
		{
			name:    "health port collides with server port",
			mutate:  func(t *testing.T) { t.Setenv("COHORT_HEALTH_PORT", "8080") },
			wantErr: "must be different",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			tt.mutate(t)

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("unknown"))
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("COHORT_TEST_BOOL", "1")
	assert.True(t, getEnvBool("COHORT_TEST_BOOL", false))

	t.Setenv("COHORT_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("COHORT_TEST_INT", 7))

	t.Setenv("COHORT_TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getEnvDuration("COHORT_TEST_DURATION", time.Minute))
}
