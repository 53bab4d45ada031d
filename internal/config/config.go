// Package config loads vetogate settings from flags, environment, an optional
// YAML file and a .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/types"
)

// EnvPrefix prefixes every environment variable, e.g. VETOGATE_DB.
const EnvPrefix = "VETOGATE"

// Config is the resolved runtime configuration.
type Config struct {
	// DB is the path of the SQLite database.
	DB       string `mapstructure:"db" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Format   string `mapstructure:"format" validate:"oneof=text json"`
	// Deployer is the account that deploys manifests: a hex address or an
	// account name (see types.AccountAddress).
	Deployer string `mapstructure:"deployer" validate:"required"`
	Listen   string `mapstructure:"listen" validate:"required,hostname_port"`
	MaxSteps int    `mapstructure:"max_steps" validate:"gt=0"`
	ChainID  string `mapstructure:"chain_id" validate:"required"`

	Telemetry Telemetry `mapstructure:"telemetry"`
}

// Telemetry selects the OpenTelemetry exporters.
type Telemetry struct {
	// Enabled exports spans and metrics to stderr.
	Enabled bool `mapstructure:"enabled"`
	// Pretty indents exported spans.
	Pretty bool `mapstructure:"pretty"`
}

// flagKeys maps persistent CLI flags onto configuration keys.
var flagKeys = map[string]string{
	"db":        "db",
	"log-level": "log_level",
	"format":    "format",
	"deployer":  "deployer",
	"listen":    "listen",
	"max-steps": "max_steps",
	"telemetry": "telemetry.enabled",
}

// SetDefaults installs the default of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db", "vetogate.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("format", "text")
	v.SetDefault("deployer", "deployer")
	v.SetDefault("listen", "127.0.0.1:8080")
	v.SetDefault("max_steps", engine.DefaultMaxSteps)
	v.SetDefault("chain_id", engine.DefaultChainID)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.pretty", false)
}

// NewViper builds the viper instance behind Load. configFile may be empty, in
// which case ./vetogate.yaml is read when present. Flags that exist in flags are
// bound to their keys.
func NewViper(configFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("vetogate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct constraints and that the deployer resolves.
func (c *Config) Validate() error {
	if err := types.ValidateStruct(types.KindInvalidConfig, c); err != nil {
		return err
	}
	if _, err := c.DeployerAddress(); err != nil {
		return err
	}
	return nil
}

// DeployerAddress resolves Deployer.
func (c *Config) DeployerAddress() (types.Address, error) {
	return ResolveAccount(c.Deployer)
}

// ResolveAccount resolves an external account reference: a hex address, or any
// other non-empty string as an account name.
func ResolveAccount(ref string) (types.Address, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return types.ZeroAddress, types.Errorf(types.KindInvalidConfig, "empty account reference")
	case strings.HasPrefix(ref, "0x") || strings.HasPrefix(ref, "0X"):
		return types.ParseAddress(ref)
	default:
		return types.AccountAddress(ref), nil
	}
}

// Level returns the slog level of LogLevel.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
