// Package config loads herbtrace settings from defaults, an optional config
// file, HERBTRACE_* environment variables, and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ayulink/herbtrace/internal/ledger"
)

// EnvPrefix is prepended to every environment key, e.g. HERBTRACE_HTTP_ADDR.
const EnvPrefix = "HERBTRACE"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	Store       StoreConfig       `mapstructure:"store"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Certificate CertificateConfig `mapstructure:"certificate"`
	Log         LogConfig         `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr               string        `mapstructure:"addr"`
	CORSOrigins        []string      `mapstructure:"cors_origins"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	// TrustProxyHeaders keys rate limiting on X-Forwarded-For and friends
	// instead of the socket peer.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	Path        string `mapstructure:"path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type LedgerConfig struct {
	AllocationRetries int      `mapstructure:"allocation_retries"`
	Lifecycle         []string `mapstructure:"lifecycle"`
}

type ScoringConfig struct {
	// Endpoint is the base URL of a remote model service. Empty selects the
	// built-in linear model.
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CertificateConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ChromiumPath string        `mapstructure:"chromium_path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	TimeZone     string        `mapstructure:"timezone"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.rate_limit_per_minute", 120)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.trust_proxy_headers", false)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "")
	v.SetDefault("store.auto_migrate", true)

	v.SetDefault("ledger.allocation_retries", ledger.DefaultAllocationRetries)
	stages := make([]string, len(ledger.DefaultStages))
	for i, s := range ledger.DefaultStages {
		stages[i] = string(s)
	}
	v.SetDefault("ledger.lifecycle", stages)

	v.SetDefault("scoring.endpoint", "")
	v.SetDefault("scoring.timeout", 5*time.Second)

	v.SetDefault("certificate.enabled", false)
	v.SetDefault("certificate.chromium_path", "")
	v.SetDefault("certificate.timeout", 15*time.Second)
	v.SetDefault("certificate.timezone", "Asia/Kolkata")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":         "http.addr",
	"store-driver": "store.driver",
	"store-dsn":    "store.dsn",
	"store-path":   "store.path",
	"log-level":    "log.level",
}

// Load reads configuration. path may be empty; flags may be nil. Flags that
// were set on the command line win over env and file values.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverBolt:
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.HTTP.RateLimitPerMinute < 0 {
		return fmt.Errorf("http.rate_limit_per_minute must not be negative")
	}
	if c.Ledger.AllocationRetries < 1 {
		return fmt.Errorf("ledger.allocation_retries must be at least 1")
	}
	if _, err := c.Lifecycle(); err != nil {
		return err
	}
	if c.Certificate.Enabled {
		if _, err := time.LoadLocation(c.Certificate.TimeZone); err != nil {
			return fmt.Errorf("certificate.timezone: %w", err)
		}
	}
	return nil
}

// Lifecycle builds the configured stage vocabulary.
func (c Config) Lifecycle() (*ledger.Lifecycle, error) {
	stages := make([]ledger.Status, 0, len(c.Ledger.Lifecycle))
	for _, s := range c.Ledger.Lifecycle {
		stages = append(stages, ledger.Status(strings.TrimSpace(s)))
	}
	lc, err := ledger.NewLifecycle(stages...)
	if err != nil {
		return nil, fmt.Errorf("ledger.lifecycle: %w", err)
	}
	return lc, nil
}

// DefaultStorePath is the database file used when neither store.path nor
// store.dsn names one.
const DefaultStorePath = "herbtrace.db"

// StorePath returns the file location for file-backed drivers: store.path,
// then store.dsn, then DefaultStorePath.
func (c StoreConfig) StorePath() string {
	if p := strings.TrimSpace(c.Path); p != "" {
		return p
	}
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		return dsn
	}
	return DefaultStorePath
}
