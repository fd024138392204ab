// Package config loads the job configuration, resolved once at start-up
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/civicpulse/pkg/api"
	"github.com/ethpandaops/civicpulse/pkg/blob"
	"github.com/ethpandaops/civicpulse/pkg/notify"
	"github.com/ethpandaops/civicpulse/pkg/redis"
	"github.com/ethpandaops/civicpulse/pkg/scheduler"
	"github.com/ethpandaops/civicpulse/pkg/source"
	"github.com/ethpandaops/civicpulse/pkg/window"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig wraps every configuration failure
	ErrInvalidConfig = errors.New("configuration error")
	// ErrDomainRequired is returned when the output domain is empty
	ErrDomainRequired = errors.New("domain is required")
	// ErrSourceLabelRequired is returned when the source label is empty
	ErrSourceLabelRequired = errors.New("source label is required")
	// ErrWatermarkKeyRequired is returned when the watermark key is empty
	ErrWatermarkKeyRequired = errors.New("watermark key is required")
)

// Config represents the complete job configuration
type Config struct {
	Logging     string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	MetricsAddr string `yaml:"metricsAddr"`

	Source  source.Config `yaml:"source"`
	Storage blob.Config   `yaml:"storage"`
	Redis   redis.Config  `yaml:"redis"`
	State   StateConfig   `yaml:"state"`

	// Domain and SourceLabel form the first path segments of every object
	Domain      string `yaml:"domain" default:"api/311"`
	SourceLabel string `yaml:"sourceLabel" default:"nyc"`

	Backfill BackfillConfig   `yaml:"backfill"`
	Schedule scheduler.Config `yaml:"schedule"`
	API      api.Config       `yaml:"api"`
	Notify   notify.Config    `yaml:"notify"`
}

// StateConfig names the keys used in the variable store
type StateConfig struct {
	WatermarkKey     string `yaml:"watermarkKey" default:"NYC311_WATERMARK"`
	ModeKey          string `yaml:"modeKey" default:"NYC311_MODE"`
	BackfillStartKey string `yaml:"backfillStartKey" default:"BACKFILL_START"`
	BackfillEndKey   string `yaml:"backfillEndKey" default:"BACKFILL_END"`
}

// BackfillConfig holds optional static backfill bounds
type BackfillConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Validate validates the configuration. Every failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

func (c *Config) validate() error {
	if err := c.Source.Validate(); err != nil {
		return err
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if err := c.Redis.Validate(); err != nil {
		return err
	}

	if c.Domain == "" {
		return ErrDomainRequired
	}

	if c.SourceLabel == "" {
		return ErrSourceLabelRequired
	}

	if c.State.WatermarkKey == "" {
		return ErrWatermarkKeyRequired
	}

	if _, err := window.ParseBounds(c.Backfill.Start, c.Backfill.End); err != nil {
		return err
	}

	if err := c.Schedule.Validate(); err != nil {
		return err
	}

	if err := c.API.Validate(); err != nil {
		return err
	}

	return c.Notify.Validate()
}

// Load reads a YAML file over the struct defaults. ${VAR} references are
// expanded from the environment first.
func Load(file string) (*Config, error) {
	cfg := &Config{}

	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidConfig, file, err)
	}

	cfg.Source.SetDefaults()

	return cfg, nil
}
