// Package config loads hotspot settings from config.yaml and HOTSPOT_*
// environment variables and sets up the global logger.
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/hotspot/internal/model"
	"github.com/sells-group/hotspot/internal/resilience"
	"github.com/sells-group/hotspot/internal/snapshot"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Page    PageConfig    `yaml:"page" mapstructure:"page"`
	Funnel  FunnelConfig  `yaml:"funnel" mapstructure:"funnel"`
	Events  EventsConfig  `yaml:"events" mapstructure:"events"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and configures the page store.
type StoreConfig struct {
	Driver            string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL       string      `yaml:"database_url" mapstructure:"database_url"`
	FlushIntervalSecs int         `yaml:"flush_interval_secs" mapstructure:"flush_interval_secs"`
	MaxConns          int32       `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns          int32       `yaml:"min_conns" mapstructure:"min_conns"`
	Redis             RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// FlushInterval returns the dirty page flush period.
func (c StoreConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSecs) * time.Second
}

// BrowserConfig configures snapshot capture.
type BrowserConfig struct {
	RemoteURL           string  `yaml:"remote_url" mapstructure:"remote_url"`
	Stealth             bool    `yaml:"stealth" mapstructure:"stealth"`
	DetectBlocks        bool    `yaml:"detect_blocks" mapstructure:"detect_blocks"`
	NavigateTimeoutSecs int     `yaml:"navigate_timeout_secs" mapstructure:"navigate_timeout_secs"`
	CaptureRatePerSec   float64 `yaml:"capture_rate_per_sec" mapstructure:"capture_rate_per_sec"`
	CaptureBurst        int     `yaml:"capture_burst" mapstructure:"capture_burst"`
	RetryAttempts       int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs      int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs    int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	RecycleIntervalMins int     `yaml:"recycle_interval_mins" mapstructure:"recycle_interval_mins"`
}

// Manager returns the browser manager settings.
func (c BrowserConfig) Manager() snapshot.ManagerConfig {
	return snapshot.ManagerConfig{
		RemoteURL:       c.RemoteURL,
		RecycleInterval: time.Duration(c.RecycleIntervalMins) * time.Minute,
	}
}

// Guard returns the throttling and resilience settings for captures.
func (c BrowserConfig) Guard() snapshot.GuardConfig {
	return snapshot.GuardConfig{
		RatePerSec: c.CaptureRatePerSec,
		Burst:      c.CaptureBurst,
		Retry:      resilience.FromRetryConfig(c.RetryAttempts, c.RetryBackoffMs, 0),
		Breaker:    resilience.FromCircuitConfig(c.BreakerThreshold, c.BreakerResetSecs),
	}
}

// NavigateTimeout bounds one capture's page load.
func (c BrowserConfig) NavigateTimeout() time.Duration {
	return time.Duration(c.NavigateTimeoutSecs) * time.Second
}

// PageConfig holds the defaults applied to new pages.
type PageConfig struct {
	Width      int      `yaml:"width" mapstructure:"width"`
	Height     int      `yaml:"height" mapstructure:"height"`
	Downsample float64  `yaml:"downsample" mapstructure:"downsample"`
	Encoding   string   `yaml:"encoding" mapstructure:"encoding"`
	Track      []string `yaml:"track" mapstructure:"track"`
}

// Model converts the defaults to a page config.
func (c PageConfig) Model() (model.PageConfig, error) {
	track, err := model.ParseCategories(c.Track)
	if err != nil {
		return model.PageConfig{}, eris.Wrap(err, "config: page.track")
	}
	cfg := model.PageConfig{
		View: model.ViewConfig{
			Width:      c.Width,
			Height:     c.Height,
			Downsample: c.Downsample,
			Encoding:   model.Encoding(strings.ToLower(c.Encoding)),
		},
		Hotspot: model.HotspotConfig{Track: track},
	}
	return cfg, cfg.Validate()
}

// FunnelConfig configures funnel inference.
type FunnelConfig struct {
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth"`
}

// EventsConfig configures the change event stream. An empty RabbitURL
// disables publishing.
type EventsConfig struct {
	RabbitURL string `yaml:"rabbit_url" mapstructure:"rabbit_url"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Buffer    int    `yaml:"buffer" mapstructure:"buffer"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HOTSPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.flush_interval_secs", 30)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "hotspot:")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.detect_blocks", true)
	v.SetDefault("browser.navigate_timeout_secs", 30)
	v.SetDefault("browser.capture_rate_per_sec", 2.0)
	v.SetDefault("browser.capture_burst", 4)
	v.SetDefault("browser.retry_attempts", 3)
	v.SetDefault("browser.retry_backoff_ms", 1000)
	v.SetDefault("browser.breaker_threshold", 5)
	v.SetDefault("browser.breaker_reset_secs", 60)
	v.SetDefault("browser.recycle_interval_mins", 60)
	v.SetDefault("page.width", 1024)
	v.SetDefault("page.height", 768)
	v.SetDefault("page.downsample", 0.8)
	v.SetDefault("page.encoding", string(model.EncodingBinary))
	v.SetDefault("page.track", []string{"click"})
	v.SetDefault("funnel.max_depth", 4)
	v.SetDefault("events.rabbit_url", "")
	v.SetDefault("events.prefix", "global")
	v.SetDefault("events.buffer", 1024)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	drivers := []string{DriverMemory, DriverSQLite, DriverPostgres, DriverRedis}
	if !slices.Contains(drivers, c.Store.Driver) {
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if (c.Store.Driver == DriverSQLite || c.Store.Driver == DriverPostgres) && c.Store.DatabaseURL == "" {
		return eris.Errorf("config: store.database_url is required for %s", c.Store.Driver)
	}
	if _, err := c.Page.Model(); err != nil {
		return err
	}
	if c.Funnel.MaxDepth < 0 {
		return eris.Errorf("config: funnel.max_depth must not be negative, got %d", c.Funnel.MaxDepth)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
