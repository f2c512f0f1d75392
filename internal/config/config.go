// Package config loads the process bootstrap settings: where the store
// lives and how to reach the judgment provider. Run-level behavior (prompt
// templates, retry budget, table names) lives in the store's config table,
// not here.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings are the process-level knobs, sourced from a config file when
// present and PMDIAG_* environment variables always.
type Settings struct {
	// StorePath is the SQLite database file.
	StorePath string `mapstructure:"store_path"`

	// APIKey authenticates against the judgment provider. Required.
	APIKey string `mapstructure:"api_key"`

	// Model and Endpoint select the judgment model.
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`

	// RequestTimeout bounds a single judgment attempt.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RequestsPerSecond and Burst feed the client rate limiter; zero rps
	// disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	// Concurrency bounds simultaneous respondents; below 2 is sequential.
	Concurrency int `mapstructure:"concurrency"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// ErrAPIKeyMissing means no provider credential was configured.
var ErrAPIKeyMissing = errors.New("api_key is required (set PMDIAG_API_KEY)")

// Load reads settings from pmdiag.yaml in the working directory (optional)
// and the PMDIAG_* environment.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("pmdiag")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PMDIAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store_path", "pmdiag.db")
	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("request_timeout", "60s")
	v.SetDefault("requests_per_second", 0.0)
	v.SetDefault("burst", 1)
	v.SetDefault("concurrency", 1)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if s.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if s.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be positive, got %s", s.RequestTimeout)
	}
	return &s, nil
}
