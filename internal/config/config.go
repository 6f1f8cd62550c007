// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Query     QueryConfig     `mapstructure:"query"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// PortalConfig holds the remote GIS portal configuration.
type PortalConfig struct {
	URL               string        `mapstructure:"url"`                 // Root services endpoint
	Timeout           time.Duration `mapstructure:"timeout"`             // Per-request deadline
	KnownServicesFile string        `mapstructure:"known_services_file"` // Optional YAML seed file
}

// DiscoveryConfig holds discovery and caching configuration.
type DiscoveryConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`   // Catalog TTL
	Concurrency       int           `mapstructure:"concurrency"`        // Bounded fetch pool size
	BackgroundRefresh bool          `mapstructure:"background_refresh"` // Refresh on a ticker, not only on demand
}

// QueryConfig holds query dispatch configuration.
type QueryConfig struct {
	MaxRecords     int           `mapstructure:"max_records"`      // Default result cap
	RetryAttempts  int           `mapstructure:"retry_attempts"`   // Attempts per page, including the first
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"` // Backoff base
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 120*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Portal defaults
	viper.SetDefault("portal.url", "https://gismaps.durban.gov.za/server/rest/services")
	viper.SetDefault("portal.timeout", 60*time.Second)
	viper.SetDefault("portal.known_services_file", "")

	// Discovery defaults
	viper.SetDefault("discovery.refresh_interval", 900*time.Second)
	viper.SetDefault("discovery.concurrency", 8)
	viper.SetDefault("discovery.background_refresh", false)

	// Query defaults
	viper.SetDefault("query.max_records", 100)
	viper.SetDefault("query.retry_attempts", 3)
	viper.SetDefault("query.retry_base_delay", 500*time.Millisecond)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("ATLAS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/atlas")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Portal.URL == "" {
		return fmt.Errorf("portal URL is required")
	}
	u, err := url.Parse(c.Portal.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid portal URL: %q", c.Portal.URL)
	}

	if c.Discovery.RefreshInterval <= 0 {
		return fmt.Errorf("discovery refresh interval must be positive")
	}
	if c.Discovery.Concurrency < 1 {
		return fmt.Errorf("discovery concurrency must be at least 1")
	}

	if c.Query.MaxRecords < 1 {
		return fmt.Errorf("query max records must be at least 1")
	}
	if c.Query.RetryAttempts < 1 {
		return fmt.Errorf("query retry attempts must be at least 1")
	}

	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
