// Package config loads server configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration. Command-line flags override it.
type Config struct {
	Port      int    `env:"SHEETROLL_PORT" envDefault:"8787"`
	GRPCPort  int    `env:"SHEETROLL_GRPC_PORT" envDefault:"8788"`
	Host      string `env:"SHEETROLL_HOST" envDefault:"0.0.0.0"`
	SheetsDir string `env:"SHEETROLL_SHEETS_DIR"`
	// DBPath selects the SQLite store; empty keeps sheets in memory.
	DBPath    string `env:"SHEETROLL_DB_PATH"`
	LogLevel  string `env:"SHEETROLL_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"SHEETROLL_LOG_PRETTY" envDefault:"false"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.GRPCPort < 0 || cfg.GRPCPort > 65535 {
		return Config{}, fmt.Errorf("invalid grpc port %d", cfg.GRPCPort)
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddr returns the gRPC listen address.
func (c Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}
