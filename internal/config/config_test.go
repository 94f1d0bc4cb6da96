package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Server.RequestTimeout())
	assert.False(t, cfg.TestMode)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrentLeads)
	assert.Equal(t, 30*time.Second, cfg.Vendors.Timeout())

	assert.Equal(t, "https://api.itmedia.xyz/post/directpost", cfg.Vendors.ITMedia.BaseURL)
	assert.Equal(t, "https://api.itmedia.xyz/post/testpost", cfg.Vendors.ITMedia.TestURL)
	assert.InDelta(t, 0.01, cfg.Vendors.ITMedia.Granularity, 0.0001)
	assert.Zero(t, cfg.Vendors.ITMedia.MaxPrice)

	assert.Equal(t, "https://api.leadsmarket.com/post/data.aspx", cfg.Vendors.LeadsMarket.BaseURL)
	assert.InDelta(t, 230, cfg.Vendors.LeadsMarket.MaxPrice, 0.001)
	assert.InDelta(t, 1, cfg.Vendors.LeadsMarket.Granularity, 0.001)
	assert.Equal(t, 1, cfg.Vendors.LeadsMarket.TestResult)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: leads.db
log:
  level: debug
  format: console
server:
  port: 9090
test_mode: true
batch:
  max_concurrent_leads: 10
vendors:
  itmedia:
    username: acme
    api_key: secret
  leadsmarket:
    campaign_id: "42"
    max_price: 200
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leads.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.TestMode)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrentLeads)
	assert.Equal(t, "acme", cfg.Vendors.ITMedia.Username)
	assert.Equal(t, "secret", cfg.Vendors.ITMedia.APIKey)
	assert.Equal(t, "42", cfg.Vendors.LeadsMarket.CampaignID)
	assert.InDelta(t, 200, cfg.Vendors.LeadsMarket.MaxPrice, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 1, cfg.Vendors.LeadsMarket.Granularity, 0.001)
	assert.Equal(t, 30, cfg.Vendors.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADROUTER_STORE_DRIVER", "postgres")
	t.Setenv("LEADROUTER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEADROUTER_SERVER_PORT", "3000")
	t.Setenv("LEADROUTER_VENDORS_ITMEDIA_API_KEY", "env-key")
	t.Setenv("LEADROUTER_VENDORS_LEADSMARKET_CAMPAIGN_KEY", "lm-key")
	t.Setenv("LEADROUTER_TEST_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Vendors.ITMedia.APIKey)
	assert.Equal(t, "lm-key", cfg.Vendors.LeadsMarket.CampaignKey)
	assert.True(t, cfg.TestMode)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Server.Port = 8080
	cfg.Server.RequestTimeoutSecs = 300
	cfg.Batch.MaxConcurrentLeads = 5
	cfg.Vendors.TimeoutSecs = 30
	cfg.Vendors.ITMedia.Granularity = 0.01
	cfg.Vendors.LeadsMarket.MaxPrice = 230
	cfg.Vendors.LeadsMarket.Granularity = 1
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/leads"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("read")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrentLeads = 0
	err := cfg.Validate("batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_leads must be between 1 and 50")

	cfg.Batch.MaxConcurrentLeads = 51
	assert.Error(t, cfg.Validate("batch"))

	cfg.Batch.MaxConcurrentLeads = 50
	assert.NoError(t, cfg.Validate("batch"))

	// Serve ignores batch settings.
	cfg.Batch.MaxConcurrentLeads = 0
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateVendorPrices(t *testing.T) {
	cfg := validDefaults()
	cfg.Vendors.LeadsMarket.MinPrice = 300

	err := cfg.Validate("submit")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "vendors.leadsmarket.max_price must be >= min_price")

	cfg = validDefaults()
	cfg.Vendors.ITMedia.MinPrice = -1
	err = cfg.Validate("submit")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "vendors.itmedia.min_price must be >= 0")

	cfg = validDefaults()
	cfg.Vendors.TimeoutSecs = 0
	err = cfg.Validate("submit")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "vendors.timeout_secs must be > 0")
}

func TestValidateMissingCredentialsAllowed(t *testing.T) {
	cfg := validDefaults()
	assert.Empty(t, cfg.Vendors.ITMedia.APIKey)
	assert.NoError(t, cfg.Validate("submit"))
}
