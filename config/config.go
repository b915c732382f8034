/*
Package config loads service configuration.

SOURCES (later wins):
  1. Built-in defaults
  2. Optional YAML file (--config)
  3. Environment, prefix LEDGER_ with dots as underscores
     (LEDGER_STORAGE_DSN, LEDGER_HTTP_ADDR, ...)
  4. Command-line flags

FLAGS:
  --config     Path to a YAML config file
  --addr       HTTP listen address (default ":8080")
  --db         SQLite database path (default "stock.db")
               Use ":memory:" for an in-memory database
  --log-level  debug, info, warn, error
  --log-format json or text
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/warp/stock-ledger/ledger"
)

type Config struct {
	HTTP struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
		CORSOrigins  []string      `mapstructure:"cors_origins"`
	} `mapstructure:"http"`

	Storage struct {
		DSN         string        `mapstructure:"dsn"`
		UnitTimeout time.Duration `mapstructure:"unit_timeout"`
	} `mapstructure:"storage"`

	Stock struct {
		// Decimal text, parsed like request quantities.
		LowStockThreshold string `mapstructure:"low_stock_threshold"`
	} `mapstructure:"stock"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// LowStockThreshold returns the configured threshold as a decimal. An
// unparsable value yields zero, which the stock engine treats as its default.
func (c Config) LowStockThreshold() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Stock.LowStockThreshold))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("storage.dsn", "stock.db")
	v.SetDefault("storage.unit_timeout", 5*time.Second)
	v.SetDefault("stock.low_stock_threshold", "10")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
}

// Load parses args (without the program name) and merges every source.
func Load(args []string) (Config, error) {
	var c Config

	fs := pflag.NewFlagSet("stock-ledger", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to YAML config file")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("db", "stock.db", `SQLite database path (":memory:" for in-memory)`)
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "json", "log format (json or text)")
	if err := fs.Parse(args); err != nil {
		return c, err
	}

	v := viper.New()
	setDefaults(v)

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %s: %w", *configFile, err)
		}
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Only flags the user actually set override lower layers.
	for key, flag := range map[string]string{
		"http.addr":   "addr",
		"storage.dsn": "db",
		"log.level":   "log-level",
		"log.format":  "log-format",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn must not be empty")
	}
	if c.Storage.UnitTimeout <= 0 {
		return fmt.Errorf("storage.unit_timeout must be positive")
	}
	threshold, err := decimal.NewFromString(strings.TrimSpace(c.Stock.LowStockThreshold))
	if err != nil {
		return fmt.Errorf("stock.low_stock_threshold: %q is not a number", c.Stock.LowStockThreshold)
	}
	if threshold.IsNegative() {
		return fmt.Errorf("stock.low_stock_threshold must not be negative")
	}
	if !ledger.WithinPrecision(threshold) {
		return fmt.Errorf("stock.low_stock_threshold %s is out of range", c.Stock.LowStockThreshold)
	}
	return nil
}
