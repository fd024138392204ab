// Package source pages through a Socrata-style dataset API
package source

import (
	"errors"
	"time"
)

const (
	// MaxPageSize is the hard cap the source API accepts for $limit
	MaxPageSize = 50000
	// MinPageDelay is the lower bound on the pause between page requests
	MinPageDelay = 100 * time.Millisecond
)

// Auth schemes for the optional token
const (
	AuthAppToken = "app-token"
	AuthBearer   = "bearer"
)

var (
	// ErrURLRequired is returned when no dataset URL is configured
	ErrURLRequired = errors.New("source URL is required")
	// ErrInvalidBatchSize is returned when the batch size is not positive
	ErrInvalidBatchSize = errors.New("batch size must be positive")
	// ErrInvalidAuthScheme is returned for an unknown auth scheme
	ErrInvalidAuthScheme = errors.New("auth scheme must be app-token or bearer")
	// ErrColumnRequired is returned when no timestamp column is configured
	ErrColumnRequired = errors.New("timestamp column is required")
)

// Config holds source API settings
type Config struct {
	URL             string        `yaml:"url"`
	Token           string        `yaml:"token"`
	AuthScheme      string        `yaml:"authScheme" default:"app-token"`
	BatchSize       int           `yaml:"batchSize" default:"10000"`
	TimestampColumn string        `yaml:"timestampColumn" default:"created_date"`
	RequestTimeout  time.Duration `yaml:"requestTimeout" default:"120s"`
	PageDelay       time.Duration `yaml:"pageDelay" default:"200ms"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.TimestampColumn == "" {
		return ErrColumnRequired
	}

	switch c.AuthScheme {
	case "", AuthAppToken, AuthBearer:
	default:
		return ErrInvalidAuthScheme
	}

	return nil
}

// SetDefaults fills in zero values
func (c *Config) SetDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 120 * time.Second
	}

	if c.PageDelay < MinPageDelay {
		c.PageDelay = MinPageDelay
	}

	if c.AuthScheme == "" {
		c.AuthScheme = AuthAppToken
	}
}

// PageSize is the batch size capped at MaxPageSize
func (c *Config) PageSize() int {
	if c.BatchSize > MaxPageSize {
		return MaxPageSize
	}

	return c.BatchSize
}
