// Package config loads runtime settings from an optional YAML file and
// ROTAPLAN_-prefixed environment variables; the environment wins.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// NodeLimit caps the number of branch-and-bound nodes per solve.
	// Zero means the engine default.
	NodeLimit uint64 `mapstructure:"node_limit"`
	// SolveTimeout is the per-solve wall clock budget. Zero disables it.
	SolveTimeout time.Duration `mapstructure:"solve_timeout"`
	// Workers bounds the division-optimizer worker pool. Zero means one
	// worker per CPU.
	Workers int `mapstructure:"workers"`
	// NatsURL is the NATS server the solve service connects to. Empty
	// disables the service.
	NatsURL string `mapstructure:"nats_url"`
	// DBPath is the sqlite file holding games and accepted schedules.
	DBPath string `mapstructure:"db_path"`
	Debug  bool   `mapstructure:"debug"`
}

func DefaultConfig() Config {
	return Config{
		SolveTimeout: 30 * time.Second,
		NatsURL:      "nats://localhost:4222",
		DBPath:       "rotaplan.db",
	}
}

// Load reads the named config file (without extension) from the given
// directory, then overlays environment variables. A missing file is not
// an error; a malformed one is.
func Load(dir, configName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(dir)
	v.SetEnvPrefix("rotaplan")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Registering defaults also makes env-only keys visible to Unmarshal.
	defaults := DefaultConfig()
	v.SetDefault("node_limit", defaults.NodeLimit)
	v.SetDefault("solve_timeout", defaults.SolveTimeout)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("nats_url", defaults.NatsURL)
	v.SetDefault("db_path", defaults.DBPath)
	v.SetDefault("debug", defaults.Debug)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("couldn't load config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("couldn't read config: %w", err)
	}
	return &cfg, nil
}
