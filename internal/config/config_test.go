package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every env var that Load() reads.
var allConfigKeys = []string{
	"TELEGRAM_API_KEY",
	"GITHUB_TOKEN",
	"SURVEY_PERIOD",
	"FETCHING_STEP_PERIOD",
	"FETCH_TIMEOUT",
	"DB_PATH",
	"LISTEN_ADDR",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

// isolateConfigEnv saves and unsets all config env vars so tests don't
// inherit values from the host environment (e.g. a developer's .env).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("TELEGRAM_API_KEY", "123:abc")
	t.Setenv("GITHUB_TOKEN", "ghp_test123")
	t.Setenv("SURVEY_PERIOD", "600")
	t.Setenv("FETCHING_STEP_PERIOD", "5")
	t.Setenv("FETCH_TIMEOUT", "10")
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.TelegramAPIKey)
	assert.Equal(t, "ghp_test123", cfg.GitHubToken)
	assert.Equal(t, 10*time.Minute, cfg.SurveyPeriod)
	assert.Equal(t, 5*time.Second, cfg.FetchingStepPeriod)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.HasTelegram())
	assert.NoError(t, cfg.RequireTelegram())
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.SurveyPeriod)
	assert.Equal(t, time.Minute, cfg.FetchingStepPeriod)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "db.sqlite3", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.HTTPEnabled())
}

// TestLoad_EmptyValuesUseDefaults mirrors shell setups that export empty variables.
func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("SURVEY_PERIOD", "")
	t.Setenv("FETCHING_STEP_PERIOD", " ")
	t.Setenv("DB_PATH", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.SurveyPeriod)
	assert.Equal(t, time.Minute, cfg.FetchingStepPeriod)
	assert.Equal(t, "db.sqlite3", cfg.DBPath)
}

func TestLoad_EmptyListenAddrDisablesHTTP(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("LISTEN_ADDR", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.HTTPEnabled())
}

func TestLoad_ZeroStepPeriodAllowed(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("FETCHING_STEP_PERIOD", "0")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.FetchingStepPeriod)
}

// TestLoad_MissingTelegramKey verifies that Load itself succeeds without a bot
// token; only RequireTelegram rejects it.
func TestLoad_MissingTelegramKey(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.HasTelegram())
	assert.EqualError(t, cfg.RequireTelegram(), "TELEGRAM_API_KEY is required")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{name: "non-integer survey period", key: "SURVEY_PERIOD", value: "1h", wantErr: "SURVEY_PERIOD has invalid integer seconds"},
		{name: "zero survey period", key: "SURVEY_PERIOD", value: "0", wantErr: "SURVEY_PERIOD"},
		{name: "negative step period", key: "FETCHING_STEP_PERIOD", value: "-1", wantErr: "FETCHING_STEP_PERIOD"},
		{name: "zero fetch timeout", key: "FETCH_TIMEOUT", value: "0", wantErr: "FETCH_TIMEOUT"},
		{name: "bad listen addr", key: "LISTEN_ADDR", value: "localhost", wantErr: "LISTEN_ADDR"},
		{name: "bad log level", key: "LOG_LEVEL", value: "verbose", wantErr: "LOG_LEVEL"},
		{name: "bad log format", key: "LOG_FORMAT", value: "xml", wantErr: "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
