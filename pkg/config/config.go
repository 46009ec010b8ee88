// Package config loads the transaction monitor configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (QWICS_*)
//  2. Configuration file (YAML), when present
//  3. Default values
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the static configuration of the monitor.
type Config struct {
	// Listen is the TCP address the session listener binds. The accept
	// loop itself is an external collaborator of the core.
	Listen string `mapstructure:"listen" yaml:"listen"`

	// LoadModDir is the directory program artifacts are loaded from.
	LoadModDir string `mapstructure:"loadmod_dir" yaml:"loadmod_dir"`

	// JSDir is the directory holding copybook JSON files (<mapset>.js).
	JSDir string `mapstructure:"js_dir" yaml:"js_dir"`

	// Database configures the relational store connection.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// MemPoolSize bounds the per-task and shared allocation pools.
	MemPoolSize int `mapstructure:"mem_pool_size" yaml:"mem_pool_size"`

	// SharedArenaSize is the byte size of the shared memory arena.
	SharedArenaSize int `mapstructure:"shared_arena_size" yaml:"shared_arena_size"`

	// DateFormat is the display date-time template artifacts produce;
	// values matching it are reshaped for the database.
	DateFormat string `mapstructure:"date_format" yaml:"date_format"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// DatabaseConfig configures the pgx connection pool.
type DatabaseConfig struct {
	// ConnectString is a libpq-style or URL connect string.
	ConnectString string `mapstructure:"connect_string" yaml:"connect_string"`

	// PoolSize bounds the warm database sessions.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// ApplyDefaults fills unset fields with the stock values.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8000"
	}
	if c.LoadModDir == "" {
		c.LoadModDir = "../loadmod"
	}
	if c.JSDir == "" {
		c.JSDir = "../copybooks"
	}
	if c.Database.ConnectString == "" {
		c.Database.ConnectString = "dbname=qwics"
	}
	if c.Database.PoolSize <= 0 {
		c.Database.PoolSize = 10
	}
	if c.MemPoolSize <= 0 {
		c.MemPoolSize = 100
	}
	if c.SharedArenaSize <= 0 {
		c.SharedArenaSize = 16 << 20
	}
	if c.DateFormat == "" {
		c.DateFormat = "YYYY-MM-dd-hh.mm.ss.uuuuu"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9100"
	}
}

// envBindings maps the documented environment variables onto config keys.
var envBindings = map[string]string{
	"listen":                  "QWICS_LISTEN",
	"loadmod_dir":             "QWICS_LOADMODDIR",
	"js_dir":                  "QWICS_JSDIR",
	"database.connect_string": "QWICS_DB_CONNECTSTR",
	"database.pool_size":      "QWICS_DB_POOL_SIZE",
	"mem_pool_size":           "QWICS_MEM_POOL_SIZE",
	"shared_arena_size":       "QWICS_SHM_SIZE",
	"date_format":             "QWICS_COBDATEFORMAT",
	"logging.level":           "QWICS_LOG_LEVEL",
	"logging.format":          "QWICS_LOG_FORMAT",
	"logging.output":          "QWICS_LOG_OUTPUT",
	"metrics.enabled":         "QWICS_METRICS_ENABLED",
	"metrics.listen":          "QWICS_METRICS_LISTEN",
}

// Load reads the configuration from the optional file path and the
// environment, then applies defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := dec.Decode(prune(v.AllSettings())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// prune drops unset bindings, which surface as nil entries.
func prune(m map[string]any) map[string]any {
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			prune(t)
		}
	}
	return m
}
