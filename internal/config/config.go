// Package config loads logterm settings from flags, environment, .env and
// an optional YAML file, and validates them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/atikulmunna/logterm/internal/filter"
	"github.com/atikulmunna/logterm/internal/output"
	"github.com/atikulmunna/logterm/internal/stream"
)

// EnvPrefix is the prefix of environment overrides, e.g. LOGTERM_API_BASE.
const EnvPrefix = "LOGTERM"

// Config is the full runtime configuration.
type Config struct {
	APIBase        string        `mapstructure:"api_base" validate:"required,url"`
	Token          string        `mapstructure:"token"`
	HistoryLimit   int           `mapstructure:"history_limit" validate:"gt=0,lte=10000"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	ConnectBackoff time.Duration `mapstructure:"connect_backoff" validate:"gt=0"`
	CloseBackoff   time.Duration `mapstructure:"close_backoff" validate:"gt=0"`
	BackoffCap     time.Duration `mapstructure:"backoff_cap" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=1,lte=100"`
	Scrollback     int           `mapstructure:"scrollback" validate:"gt=0"`
	Output         string        `mapstructure:"output" validate:"oneof=text json"`
	LogLevel       string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Listen         string        `mapstructure:"listen" validate:"omitempty,hostname_port"`
	Filter         filter.Rules  `mapstructure:"filter"`
}

// SetDefaults registers every key with its default so environment
// overrides are seen by Unmarshal.
func SetDefaults(v *viper.Viper) {
	rules := filter.DefaultRules()

	v.SetDefault("api_base", "http://localhost:8000")
	v.SetDefault("token", "")
	v.SetDefault("history_limit", 200)
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("connect_backoff", 5*time.Second)
	v.SetDefault("close_backoff", 3*time.Second)
	v.SetDefault("backoff_cap", 30*time.Second)
	v.SetDefault("max_retries", 5)
	v.SetDefault("scrollback", output.DefaultScrollback)
	v.SetDefault("output", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("listen", "")
	v.SetDefault("filter.prefixes", rules.Prefixes)
	v.SetDefault("filter.globs", rules.Globs)
	v.SetDefault("filter.suppress_modules", rules.SuppressModules)
	v.SetDefault("filter.suppress_phrases", rules.SuppressPhrases)
}

// BindEnv enables LOGTERM_* overrides; nested keys use underscores
// (LOGTERM_FILTER_PREFIXES).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotenv loads variables from the given .env files (default ".env")
// without overriding the real environment. Missing files are not an error.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Output = strings.ToLower(cfg.Output)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.BackoffCap < cfg.ConnectBackoff || cfg.BackoffCap < cfg.CloseBackoff {
		return nil, fmt.Errorf("invalid config: backoff_cap %s is below a backoff base", cfg.BackoffCap)
	}
	if _, err := filter.Compile(cfg.Filter); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Stream returns the stream client settings.
func (c *Config) Stream() (stream.Config, error) {
	live, err := stream.LiveURL(c.APIBase)
	if err != nil {
		return stream.Config{}, err
	}
	return stream.Config{
		LiveURL:        live,
		HistoryLimit:   c.HistoryLimit,
		ConnectTimeout: c.ConnectTimeout,
		ConnectBackoff: c.ConnectBackoff,
		CloseBackoff:   c.CloseBackoff,
		BackoffCap:     c.BackoffCap,
		MaxRetries:     c.MaxRetries,
	}, nil
}

// Watch reloads the config file on change and hands the new filter to apply.
// Invalid edits are logged and ignored.
func Watch(v *viper.Viper, logger zerolog.Logger, apply func(filter.Predicate)) {
	log := logger.With().Str("component", "config").Logger()
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(v)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name).Msg("ignoring config change")
			return
		}
		pred, err := filter.Compile(cfg.Filter)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring filter change")
			return
		}
		log.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("config reloaded")
		apply(pred)
	})
	v.WatchConfig()
}
