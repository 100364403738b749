package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultPlayerURL is the live player feed of the world map.
	DefaultPlayerURL = "http://159.69.165.169:8000/maps/world/live/players.json?857372"
	// DefaultMapURL is the marker feed of the world map.
	DefaultMapURL = "http://159.69.165.169:8000/maps/world/markers.json?"
)

// Config holds all configuration for the map proxy.
// It is loaded once at startup and never mutated afterwards.
type Config struct {
	// HTTP listener
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Upstream endpoints (configurable for testing)
	PlayerURL       string        `mapstructure:"player_url"`
	MapURL          string        `mapstructure:"map_url"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`

	// ForwardID appends the :id route parameter to the upstream URL.
	// When false the id is a client-side routing concern only.
	ForwardID bool `mapstructure:"forward_id"`

	// Upstream protection
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	BreakerEnabled     bool          `mapstructure:"breaker_enabled"`
	BreakerMaxFailures int           `mapstructure:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`

	// Output and observability
	PrettyJSON     bool   `mapstructure:"pretty_json"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               3000,
		ShutdownTimeout:    10 * time.Second,
		PlayerURL:          DefaultPlayerURL,
		MapURL:             DefaultMapURL,
		UpstreamTimeout:    5 * time.Second,
		UserAgent:          "mapproxy",
		ForwardID:          false,
		RateLimitRPS:       0,
		RateLimitBurst:     1,
		BreakerEnabled:     true,
		BreakerMaxFailures: 5,
		BreakerOpenTimeout: 30 * time.Second,
		PrettyJSON:         true,
		MetricsEnabled:     true,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values.
//
// Recognized environment variables:
//   - HOST, PORT
//   - PLAYER_URL, MAP_URL
//   - UPSTREAM_TIMEOUT (duration, e.g. "5s"; "0" disables the explicit bound)
//   - USER_AGENT
//   - FORWARD_ID
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST (0 rps means unlimited)
//   - BREAKER_ENABLED, BREAKER_MAX_FAILURES, BREAKER_OPEN_TIMEOUT
//   - PRETTY_JSON, METRICS_ENABLED
//   - LOG_LEVEL, LOG_FORMAT
//   - SHUTDOWN_TIMEOUT
func Load() (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("player_url", def.PlayerURL)
	v.SetDefault("map_url", def.MapURL)
	v.SetDefault("upstream_timeout", def.UpstreamTimeout)
	v.SetDefault("user_agent", def.UserAgent)
	v.SetDefault("forward_id", def.ForwardID)
	v.SetDefault("rate_limit_rps", def.RateLimitRPS)
	v.SetDefault("rate_limit_burst", def.RateLimitBurst)
	v.SetDefault("breaker_enabled", def.BreakerEnabled)
	v.SetDefault("breaker_max_failures", def.BreakerMaxFailures)
	v.SetDefault("breaker_open_timeout", def.BreakerOpenTimeout)
	v.SetDefault("pretty_json", def.PrettyJSON)
	v.SetDefault("metrics_enabled", def.MetricsEnabled)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.mapproxy")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var problems []string

	if err := checkUpstreamURL(c.PlayerURL); err != nil {
		problems = append(problems, fmt.Sprintf("PLAYER_URL %v", err))
	}
	if err := checkUpstreamURL(c.MapURL); err != nil {
		problems = append(problems, fmt.Sprintf("MAP_URL %v", err))
	}
	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %d out of range", c.Port))
	}
	if c.UpstreamTimeout < 0 {
		problems = append(problems, "UPSTREAM_TIMEOUT must not be negative")
	}
	if c.RateLimitRPS < 0 {
		problems = append(problems, "RATE_LIMIT_RPS must not be negative")
	}
	if c.BreakerEnabled && c.BreakerMaxFailures < 1 {
		problems = append(problems, "BREAKER_MAX_FAILURES must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}

func checkUpstreamURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("has no host")
	}
	return nil
}
