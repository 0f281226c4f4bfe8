package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndModeFlags(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.IsTest())
	require.False(t, cfg.IsDev())
	require.False(t, cfg.IsProd())
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 120, cfg.LLMRateLimitPerMin)
}

func TestValidate_RequiresLLMAPIKeyOutsideTestMode(t *testing.T) {
	cfg := Config{AppEnv: "dev", JWTSecret: "a-real-secret", LLMProvider: "openrouter"}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestValidate_RejectsPlaceholderSecrets(t *testing.T) {
	cfg := Config{AppEnv: "dev", LLMAPIKey: "changeme", JWTSecret: "changeme", LLMProvider: "openrouter"}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := Config{AppEnv: "dev", LLMAPIKey: "sk-real", JWTSecret: "a-real-secret", LLMProvider: "unknown-provider"}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "LLM_PROVIDER")
}

func TestValidate_PassesWithValidConfig(t *testing.T) {
	cfg := Config{AppEnv: "prod", LLMAPIKey: "sk-real", JWTSecret: "a-real-secret", LLMProvider: "agentrouter"}
	require.NoError(t, cfg.Validate())
}

func TestValidate_SkipsChecksInTestMode(t *testing.T) {
	cfg := Config{AppEnv: "test"}
	require.NoError(t, cfg.Validate())
}

func TestGetRetryConfig_UsesFastTuningInTestMode(t *testing.T) {
	cfg := Config{AppEnv: "test"}
	tuning := cfg.GetRetryConfig()
	require.Equal(t, 3, tuning.MaxRetries)
	require.Equal(t, 10*time.Millisecond, tuning.InitialDelay)
	require.False(t, tuning.Jitter)
}

func TestGetRetryConfig_UsesConfiguredValuesOutsideTestMode(t *testing.T) {
	cfg := Config{
		AppEnv:            "prod",
		RetryMaxRetries:   7,
		RetryInitialDelay: 2 * time.Second,
		RetryMaxDelay:     20 * time.Second,
		RetryMultiplier:   3.0,
		RetryJitter:       true,
	}
	tuning := cfg.GetRetryConfig()
	require.Equal(t, 7, tuning.MaxRetries)
	require.Equal(t, 2*time.Second, tuning.InitialDelay)
	require.True(t, tuning.Jitter)
}
