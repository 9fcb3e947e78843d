// Package config loads and validates bot configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
// Credentials (image API key, social handle and app password) are expected
// from the environment: LOTBOT_IMAGE_API_KEY, LOTBOT_SOCIAL_HANDLE,
// LOTBOT_SOCIAL_APP_PASSWORD.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Geocode GeocodeConfig `mapstructure:"geocode"`
	Image   ImageConfig   `mapstructure:"image"`
	Social  SocialConfig  `mapstructure:"social"`
	Bot     BotConfig     `mapstructure:"bot"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the HTTP status/metrics server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the property store.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// GeocodeConfig governs geocoding requests and their retry schedule.
type GeocodeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	BackoffBaseMs  int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs   int    `mapstructure:"backoff_max_ms"`
	PauseMs        int    `mapstructure:"pause_ms"`
}

// ImageConfig governs imagery requests and local image persistence.
type ImageConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Size           string `mapstructure:"size"`
	SaveDir        string `mapstructure:"save_dir"`
	Heading        int    `mapstructure:"heading"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SocialConfig holds the social platform endpoint and pacing.
type SocialConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	Handle              string `mapstructure:"handle"`
	AppPassword         string `mapstructure:"app_password"`
	PostIntervalSeconds int    `mapstructure:"post_interval_seconds"`
}

// BotConfig governs the orchestration loop.
type BotConfig struct {
	BatchSize       int `mapstructure:"batch_size"`
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LOTBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.provider", "postgres")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "chicago-lots-bot")
	v.SetDefault("geocode.max_attempts", 3)
	v.SetDefault("geocode.timeout_seconds", 10)
	v.SetDefault("geocode.backoff_base_ms", 1000)
	v.SetDefault("geocode.backoff_max_ms", 30000)
	v.SetDefault("geocode.pause_ms", 1000)
	v.SetDefault("image.base_url", "https://maps.googleapis.com/maps/api/streetview")
	v.SetDefault("image.size", "600x400")
	v.SetDefault("image.save_dir", "images")
	v.SetDefault("image.heading", -1)
	v.SetDefault("image.timeout_seconds", 15)
	v.SetDefault("social.base_url", "https://bsky.social/xrpc")
	v.SetDefault("social.post_interval_seconds", 3600)
	v.SetDefault("bot.batch_size", 10)
	v.SetDefault("bot.cooldown_seconds", 60)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown db.provider: %s", c.DB.Provider)
	}
	if c.Geocode.MaxAttempts <= 0 {
		return fmt.Errorf("geocode.max_attempts must be > 0")
	}
	if c.Bot.BatchSize <= 0 {
		return fmt.Errorf("bot.batch_size must be > 0")
	}
	if c.Social.PostIntervalSeconds <= 0 {
		return fmt.Errorf("social.post_interval_seconds must be > 0")
	}
	return nil
}

// PostInterval is the pause between outbound posts.
func (c Config) PostInterval() time.Duration {
	return time.Duration(c.Social.PostIntervalSeconds) * time.Second
}

// Cooldown is the pause after an unexpected loop error.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Bot.CooldownSeconds) * time.Second
}

// GeocodeTimeout is the per-request geocoding budget.
func (c Config) GeocodeTimeout() time.Duration {
	return time.Duration(c.Geocode.TimeoutSeconds) * time.Second
}
