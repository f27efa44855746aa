// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/sentinai-cli/internal/reporting/format"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	API() APIConfig
	Session() SessionConfig
	Dashboard() DashboardConfig
	Database() DatabaseConfig
	Metrics() MetricsConfig
	Output() OutputConfig

	SetAPIBaseURL(string)
	SetOutputFormat(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	APICfg       APIConfig       `mapstructure:"api" yaml:"api"`
	SessionCfg   SessionConfig   `mapstructure:"session" yaml:"session"`
	DashboardCfg DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
	DatabaseCfg  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	MetricsCfg   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	OutputCfg    OutputConfig    `mapstructure:"output" yaml:"output"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) API() APIConfig             { return c.APICfg }
func (c *Config) Session() SessionConfig     { return c.SessionCfg }
func (c *Config) Dashboard() DashboardConfig { return c.DashboardCfg }
func (c *Config) Database() DatabaseConfig   { return c.DatabaseCfg }
func (c *Config) Metrics() MetricsConfig     { return c.MetricsCfg }
func (c *Config) Output() OutputConfig       { return c.OutputCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetAPIBaseURL(u string)   { c.APICfg.BaseURL = u }
func (c *Config) SetOutputFormat(f string) { c.OutputCfg.Format = f }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// APIConfig configures access to the analysis service.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RateLimit is the sustained number of requests per second; Burst the bucket size.
	RateLimit       float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst           int     `mapstructure:"burst" yaml:"burst"`
	MaxRetries      int     `mapstructure:"max_retries" yaml:"max_retries"`
	IgnoreTLSErrors bool    `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string  `mapstructure:"user_agent" yaml:"user_agent"`
}

// SessionConfig locates the stored login session.
type SessionConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DashboardConfig tunes the local metrics aggregation.
type DashboardConfig struct {
	RecentLimit int `mapstructure:"recent_limit" yaml:"recent_limit"`
	// TrendTimezone pins the zone used to bucket the risk trend by date. Empty
	// keeps the date written in each timestamp.
	TrendTimezone string `mapstructure:"trend_timezone" yaml:"trend_timezone"`
}

// Location resolves TrendTimezone. An empty value yields nil.
func (d DashboardConfig) Location() (*time.Location, error) {
	if d.TrendTimezone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(d.TrendTimezone)
	if err != nil {
		return nil, fmt.Errorf("dashboard.trend_timezone: %w", err)
	}
	return loc, nil
}

// DatabaseConfig holds the database connection details for the local result
// cache. The cache is disabled when URL is empty.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Enabled reports whether a cache database is configured.
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	// Source is "remote" for the service's dashboard endpoint or "cache" for the
	// local aggregator over the cache database.
	Source string `mapstructure:"source" yaml:"source"`
}

// Metrics sources.
const (
	MetricsSourceRemote = "remote"
	MetricsSourceCache  = "cache"
)

// OutputConfig selects the default report format.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sentinai-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- API --
	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.timeout", "60s")
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.burst", 5)
	v.SetDefault("api.max_retries", 2)
	v.SetDefault("api.ignore_tls_errors", false)
	v.SetDefault("api.user_agent", "sentinai-cli")

	// -- Session --
	v.SetDefault("session.path", "~/.sentinai/session.json")

	// -- Dashboard --
	v.SetDefault("dashboard.recent_limit", 5)
	v.SetDefault("dashboard.trend_timezone", "")

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Metrics --
	v.SetDefault("metrics.listen_addr", ":9464")
	v.SetDefault("metrics.refresh_interval", "1m")
	v.SetDefault("metrics.source", MetricsSourceRemote)

	// -- Output --
	v.SetDefault("output.format", string(format.Text))
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are commonly injected through dedicated variables.
	_ = v.BindEnv("database.url", "SENTINAI_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("api.base_url", "SENTINAI_API_BASE_URL", "SENTINAI_API_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.APICfg.Validate(); err != nil {
		return fmt.Errorf("api configuration invalid: %w", err)
	}
	if c.SessionCfg.Path == "" {
		return fmt.Errorf("session.path must not be empty")
	}
	if c.DashboardCfg.RecentLimit <= 0 {
		return fmt.Errorf("dashboard.recent_limit must be a positive integer")
	}
	if _, err := c.DashboardCfg.Location(); err != nil {
		return err
	}
	if err := c.MetricsCfg.Validate(); err != nil {
		return fmt.Errorf("metrics configuration invalid: %w", err)
	}
	if _, err := format.Parse(c.OutputCfg.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	return nil
}

// Validate checks the API configuration.
func (a *APIConfig) Validate() error {
	u, err := url.Parse(a.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", a.BaseURL)
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if a.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if a.Burst <= 0 {
		return fmt.Errorf("burst must be a positive integer")
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	return nil
}

// Validate checks the exporter configuration.
func (m *MetricsConfig) Validate() error {
	if m.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be a positive duration")
	}
	switch strings.ToLower(m.Source) {
	case MetricsSourceRemote, MetricsSourceCache:
	default:
		return fmt.Errorf("source must be %q or %q, got %q", MetricsSourceRemote, MetricsSourceCache, m.Source)
	}
	return nil
}
