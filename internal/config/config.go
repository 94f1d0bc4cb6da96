package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig   `yaml:"store" mapstructure:"store"`
	Server   ServerConfig  `yaml:"server" mapstructure:"server"`
	Log      LogConfig     `yaml:"log" mapstructure:"log"`
	TestMode bool          `yaml:"test_mode" mapstructure:"test_mode"`
	Vendors  VendorsConfig `yaml:"vendors" mapstructure:"vendors"`
	Batch    BatchConfig   `yaml:"batch" mapstructure:"batch"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// RequestTimeout bounds read requests. Lead submissions run until every
// vendor has answered or timed out.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// VendorsConfig holds per-vendor credentials and price domains.
type VendorsConfig struct {
	TimeoutSecs int               `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ITMedia     ITMediaConfig     `yaml:"itmedia" mapstructure:"itmedia"`
	LeadsMarket LeadsMarketConfig `yaml:"leadsmarket" mapstructure:"leadsmarket"`
}

// Timeout is the per-call vendor HTTP timeout.
func (v VendorsConfig) Timeout() time.Duration {
	return time.Duration(v.TimeoutSecs) * time.Second
}

// PriceConfig describes a vendor's accepted price domain.
type PriceConfig struct {
	MaxPrice    float64 `yaml:"max_price" mapstructure:"max_price"`
	MinPrice    float64 `yaml:"min_price" mapstructure:"min_price"`
	Granularity float64 `yaml:"granularity" mapstructure:"granularity"`
}

// ITMediaConfig holds ITMedia credentials.
type ITMediaConfig struct {
	Username    string `yaml:"username" mapstructure:"username"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TestURL     string `yaml:"test_url" mapstructure:"test_url"`
	PriceConfig `yaml:",inline" mapstructure:",squash"`
}

// LeadsMarketConfig holds LeadsMarket campaign credentials.
type LeadsMarketConfig struct {
	CampaignID  string `yaml:"campaign_id" mapstructure:"campaign_id"`
	CampaignKey string `yaml:"campaign_key" mapstructure:"campaign_key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TestResult  int    `yaml:"test_result" mapstructure:"test_result"`
	PriceConfig `yaml:",inline" mapstructure:",squash"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentLeads int `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 300)
	v.SetDefault("test_mode", false)
	v.SetDefault("batch.max_concurrent_leads", 5)
	v.SetDefault("vendors.timeout_secs", 30)
	v.SetDefault("vendors.itmedia.username", "")
	v.SetDefault("vendors.itmedia.api_key", "")
	v.SetDefault("vendors.itmedia.base_url", "https://api.itmedia.xyz/post/directpost")
	v.SetDefault("vendors.itmedia.test_url", "https://api.itmedia.xyz/post/testpost")
	v.SetDefault("vendors.itmedia.max_price", 0)
	v.SetDefault("vendors.itmedia.min_price", 0)
	v.SetDefault("vendors.itmedia.granularity", 0.01)
	v.SetDefault("vendors.leadsmarket.campaign_id", "")
	v.SetDefault("vendors.leadsmarket.campaign_key", "")
	v.SetDefault("vendors.leadsmarket.base_url", "https://api.leadsmarket.com/post/data.aspx")
	v.SetDefault("vendors.leadsmarket.test_result", 1)
	v.SetDefault("vendors.leadsmarket.max_price", 230)
	v.SetDefault("vendors.leadsmarket.min_price", 0)
	v.SetDefault("vendors.leadsmarket.granularity", 1)

	// Read config file (optional)
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

// Validate checks the settings a command needs before it starts. Mode is
// one of "serve", "submit", "batch", "migrate" or "read".
func (c *Config) Validate(mode string) error {
	var errs []error
	req := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Store.Driver {
	case "postgres":
		req(c.Store.DatabaseURL != "", "store.database_url is required for postgres")
	case "sqlite":
	default:
		req(false, "store.driver must be postgres or sqlite, got %q", c.Store.Driver)
	}

	switch mode {
	case "migrate", "read":
	case "serve":
		req(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be > 0 and < 65536")
		req(c.Server.RequestTimeoutSecs > 0, "server.request_timeout_secs must be > 0")
		errs = append(errs, c.validateVendors()...)
	case "submit":
		errs = append(errs, c.validateVendors()...)
	case "batch":
		req(c.Batch.MaxConcurrentLeads >= 1 && c.Batch.MaxConcurrentLeads <= 50,
			"batch.max_concurrent_leads must be between 1 and 50")
		errs = append(errs, c.validateVendors()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if err := errors.Join(errs...); err != nil {
		return eris.Wrapf(err, "config: invalid for %s", mode)
	}
	return nil
}

// validateVendors checks numeric vendor settings. Missing credentials are
// reported by the adapters themselves and do not block startup.
func (c *Config) validateVendors() []error {
	var errs []error
	if c.Vendors.TimeoutSecs <= 0 {
		errs = append(errs, errors.New("vendors.timeout_secs must be > 0"))
	}
	prices := []struct {
		name string
		p    PriceConfig
	}{
		{"itmedia", c.Vendors.ITMedia.PriceConfig},
		{"leadsmarket", c.Vendors.LeadsMarket.PriceConfig},
	}
	for _, v := range prices {
		if v.p.MinPrice < 0 {
			errs = append(errs, fmt.Errorf("vendors.%s.min_price must be >= 0", v.name))
		}
		if v.p.MaxPrice > 0 && v.p.MaxPrice < v.p.MinPrice {
			errs = append(errs, fmt.Errorf("vendors.%s.max_price must be >= min_price", v.name))
		}
		if v.p.Granularity < 0 {
			errs = append(errs, fmt.Errorf("vendors.%s.granularity must be >= 0", v.name))
		}
	}
	return errs
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
