// Package config loads a registry node's JSON configuration file and layers
// environment variable overrides on top of it via viper.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/kraklabs/registryd/internal/model"
)

// Config is the external, on-disk configuration shape for a registry node.
type Config struct {
	SelfAddress      string       `mapstructure:"self_address"`
	HBAddress        string       `mapstructure:"hb_address"`
	Database         string       `mapstructure:"database"`
	TTLSeconds       float64      `mapstructure:"ttl_seconds"`
	GCIntervalSecs   float64      `mapstructure:"gc_interval_seconds"`
	BootstrapPrimary bool         `mapstructure:"bootstrap_primary"`
	Peers            []model.Peer `mapstructure:"peers"`
}

// defaultGCIntervalSeconds applies only to gc_interval_seconds, a tuning
// knob with no ambiguity about what a reasonable default looks like.
// ttl_seconds gets no such default — see validate.
const defaultGCIntervalSeconds = 5.0

// Load reads path via viper (JSON), applying env var overrides prefixed
// REGISTRYD_, and validates the required fields.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("REGISTRYD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if cfg.GCIntervalSecs == 0 {
		cfg.GCIntervalSecs = defaultGCIntervalSeconds
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SelfAddress == "" {
		return errors.New("self_address is required")
	}
	if c.HBAddress == "" {
		return errors.New("hb_address is required")
	}
	if c.Database == "" {
		return errors.New("database path is required")
	}
	if c.TTLSeconds <= 0 {
		return fmt.Errorf("ttl_seconds must be set and positive: there is no implicit default, since a wrong guess either evicts live registrations or leaks dead ones")
	}
	return nil
}
