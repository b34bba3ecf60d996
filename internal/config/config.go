// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults applied when a variable is unset or empty.
const (
	DefaultSurveyPeriod       = 3600
	DefaultFetchingStepPeriod = 60
	DefaultFetchTimeout       = 30
	DefaultDBPath             = "db.sqlite3"
	DefaultListenAddr         = "127.0.0.1:8080"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	TelegramAPIKey string `env:"TELEGRAM_API_KEY"`
	GitHubToken    string `env:"GITHUB_TOKEN"`

	// SurveyPeriod is the rest between two full release check cycles.
	SurveyPeriod time.Duration `env:"SURVEY_PERIOD" validate:"gte=1s"`
	// FetchingStepPeriod is the pause after every repository inside a cycle.
	FetchingStepPeriod time.Duration `env:"FETCHING_STEP_PERIOD" validate:"gte=0s"`
	// FetchTimeout bounds every GitHub request.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" validate:"gte=1s"`

	DBPath string `env:"DB_PATH" validate:"required"`
	// ListenAddr is the HTTP API and dashboard address. Empty disables HTTP.
	ListenAddr string `env:"LISTEN_ADDR" validate:"omitempty,hostname_port"`

	LogLevel  string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=text json"`
}

// HasTelegram reports whether a bot token is configured.
func (c *Config) HasTelegram() bool {
	return c.TelegramAPIKey != ""
}

// HTTPEnabled reports whether the HTTP server should be started.
func (c *Config) HTTPEnabled() bool {
	return c.ListenAddr != ""
}

// RequireTelegram returns an error when no bot token is configured. Only the
// serve command needs one.
func (c *Config) RequireTelegram() error {
	if !c.HasTelegram() {
		return errors.New("TELEGRAM_API_KEY is required")
	}
	return nil
}

// Load reads configuration from environment variables and returns a validated Config.
// Periods are integer seconds. Unset or empty variables take their defaults:
// SURVEY_PERIOD (3600), FETCHING_STEP_PERIOD (60), FETCH_TIMEOUT (30),
// DB_PATH (db.sqlite3), LISTEN_ADDR (127.0.0.1:8080), LOG_LEVEL (info), LOG_FORMAT (text).
// LISTEN_ADDR set to an empty value disables the HTTP server.
func Load() (*Config, error) {
	survey, err := secondsEnv("SURVEY_PERIOD", DefaultSurveyPeriod)
	if err != nil {
		return nil, err
	}

	step, err := secondsEnv("FETCHING_STEP_PERIOD", DefaultFetchingStepPeriod)
	if err != nil {
		return nil, err
	}

	timeout, err := secondsEnv("FETCH_TIMEOUT", DefaultFetchTimeout)
	if err != nil {
		return nil, err
	}

	listenAddr := DefaultListenAddr
	if v, ok := os.LookupEnv("LISTEN_ADDR"); ok {
		listenAddr = strings.TrimSpace(v)
	}

	cfg := &Config{
		TelegramAPIKey:     strings.TrimSpace(os.Getenv("TELEGRAM_API_KEY")),
		GitHubToken:        strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
		SurveyPeriod:       survey,
		FetchingStepPeriod: step,
		FetchTimeout:       timeout,
		DBPath:             stringEnv("DB_PATH", DefaultDBPath),
		ListenAddr:         listenAddr,
		LogLevel:           strings.ToLower(stringEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(stringEnv("LOG_FORMAT", "text")),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// stringEnv returns the variable's value, or def if it is unset or empty.
func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// secondsEnv parses an integer number of seconds, or returns def seconds if
// the variable is unset or empty.
func secondsEnv(key string, def int) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return time.Duration(def) * time.Second, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer seconds %q: %w", key, v, err)
	}
	return time.Duration(n) * time.Second, nil
}

// validate checks cfg against its struct tags and reports failures by
// environment variable name.
func validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s=%q fails %q", fe.Field(), fmt.Sprint(fe.Value()), fe.ActualTag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
