// Package api exposes health and run status for the scheduler daemon
package api

import (
	"errors"
	"time"
)

var (
	// ErrAPIAddrRequired is returned when the API is enabled without a listen address
	ErrAPIAddrRequired = errors.New("api address is required when API is enabled")
	// ErrInvalidShutdownTimeout is returned for a negative shutdown timeout
	ErrInvalidShutdownTimeout = errors.New("api shutdown timeout must not be negative")
)

// Config represents status API configuration
type Config struct {
	Enabled         bool          `yaml:"enabled" default:"false"`
	Addr            string        `yaml:"addr" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

// Validate validates the API configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Addr == "" {
		return ErrAPIAddrRequired
	}

	if c.ShutdownTimeout < 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

func (c *Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}

	return c.ShutdownTimeout
}
