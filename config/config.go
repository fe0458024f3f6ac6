/*
config.go - Server configuration

PURPOSE:
  Loads the payroll server configuration from defaults, an optional YAML
  file and PAYROLL_* environment variables.

PRECEDENCE (highest first):
  1. Environment (PAYROLL_SERVER_PORT, PAYROLL_DB_PATH, ...)
  2. Config file (-config flag, or ./config/config.yaml, ./config.yaml)
  3. Defaults below

SEE ALSO:
  - cmd/server/main.go: Loads and applies the config
  - logging/logging.go: Consumes LogConfig
*/
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "PAYROLL"

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Log     LogConfig     `mapstructure:"log"`
	Payroll PayrollConfig `mapstructure:"payroll"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DBConfig points at the SQLite database. ":memory:" is accepted.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig selects the zap level and encoder ("json" or "console").
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PayrollConfig holds engine defaults applied to new runs.
type PayrollConfig struct {
	DefaultMonthUnits int     `mapstructure:"default_month_units"`
	FullDayHours      float64 `mapstructure:"full_day_hours"`
}

// Load reads configuration. An empty path searches the default locations
// and tolerates a missing file; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("db.path", "payroll.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("payroll.default_month_units", 30)
	v.SetDefault("payroll.full_day_hours", 8)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.DB.Path == "" {
		return fmt.Errorf("invalid config: db.path is required")
	}
	if c.Payroll.DefaultMonthUnits <= 0 {
		return fmt.Errorf("invalid config: payroll.default_month_units must be positive, got %d", c.Payroll.DefaultMonthUnits)
	}
	if c.Payroll.FullDayHours <= 0 {
		return fmt.Errorf("invalid config: payroll.full_day_hours must be positive, got %v", c.Payroll.FullDayHours)
	}
	return nil
}
