package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayulink/herbtrace/internal/ledger"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 120, cfg.HTTP.RateLimitPerMinute)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.True(t, cfg.Store.AutoMigrate)
	assert.Equal(t, ledger.DefaultAllocationRetries, cfg.Ledger.AllocationRetries)
	assert.Equal(t, 5*time.Second, cfg.Scoring.Timeout)
	assert.False(t, cfg.Certificate.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.HTTP.TrustProxyHeaders)
	assert.Empty(t, cfg.Store.Path)

	lc, err := cfg.Lifecycle()
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultStages, lc.Stages())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HERBTRACE_HTTP_ADDR", ":9090")
	t.Setenv("HERBTRACE_STORE_DRIVER", "bolt")
	t.Setenv("HERBTRACE_STORE_PATH", "/var/lib/herbtrace/ledger.bolt")
	t.Setenv("HERBTRACE_SCORING_TIMEOUT", "750ms")
	t.Setenv("HERBTRACE_LEDGER_ALLOCATION_RETRIES", "3")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, DriverBolt, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/herbtrace/ledger.bolt", cfg.Store.StorePath())
	assert.Equal(t, 750*time.Millisecond, cfg.Scoring.Timeout)
	assert.Equal(t, 3, cfg.Ledger.AllocationRetries)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herbtrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":7070"
  cors_origins: ["https://trace.example.org"]
store:
  driver: sqlite
  path: /tmp/herbtrace.db
ledger:
  lifecycle: [Harvested, Dried, Packaged]
certificate:
  enabled: true
  timezone: UTC
`), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://trace.example.org"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.True(t, cfg.Certificate.Enabled)

	lc, err := cfg.Lifecycle()
	require.NoError(t, err)
	assert.Equal(t, []ledger.Status{"Harvested", "Dried", "Packaged"}, lc.Stages())
}

func TestFlagsWin(t *testing.T) {
	t.Setenv("HERBTRACE_HTTP_ADDR", ":9090")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", ":8080", "")
	flags.String("store-driver", DriverMemory, "")
	require.NoError(t, flags.Parse([]string{"--addr", ":6060"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.HTTP.Addr)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestValidate(t *testing.T) {
	base, err := Load("", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "unknown store.driver"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, "store.dsn"},
		{"negative rate", func(c *Config) { c.HTTP.RateLimitPerMinute = -1 }, "rate_limit"},
		{"zero retries", func(c *Config) { c.Ledger.AllocationRetries = 0 }, "allocation_retries"},
		{"lifecycle without harvest", func(c *Config) { c.Ledger.Lifecycle = []string{"Processing"} }, "ledger.lifecycle"},
		{"bad timezone", func(c *Config) { c.Certificate.Enabled = true; c.Certificate.TimeZone = "Mars/Olympus" }, "certificate.timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Ledger.Lifecycle = append([]string(nil), base.Ledger.Lifecycle...)
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestStorePath(t *testing.T) {
	tests := []struct {
		name string
		cfg  StoreConfig
		want string
	}{
		{"default", StoreConfig{}, DefaultStorePath},
		{"path", StoreConfig{Path: "/data/ledger.db"}, "/data/ledger.db"},
		{"dsn", StoreConfig{DSN: "/data/from-dsn.bolt"}, "/data/from-dsn.bolt"},
		{"path wins", StoreConfig{Path: "/data/a.db", DSN: "/data/b.db"}, "/data/a.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.StorePath())
		})
	}
}

func TestStoreDSNFlagReachesFileDrivers(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("store-driver", "", "")
	flags.String("store-dsn", "", "")
	flags.String("store-path", "", "")
	require.NoError(t, flags.Parse([]string{"--store-driver", "bolt", "--store-dsn", "/data/ledger.bolt"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "/data/ledger.bolt", cfg.Store.StorePath())
}

func TestTrustProxyHeadersFromEnv(t *testing.T) {
	t.Setenv("HERBTRACE_HTTP_TRUST_PROXY_HEADERS", "true")
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.True(t, cfg.HTTP.TrustProxyHeaders)
}
