// Package scheduler triggers ingest runs on a cron schedule and keeps them exclusive
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrCronRequired is returned when no cron expression is configured
	ErrCronRequired = errors.New("schedule cron expression is required")
	// ErrInvalidCron is returned when the cron expression cannot be parsed
	ErrInvalidCron = errors.New("invalid schedule")
	// ErrInvalidMaxRetry is returned when max retry is negative
	ErrInvalidMaxRetry = errors.New("max retry must not be negative")
	// ErrInvalidLockTTL is returned when the lock TTL is not positive
	ErrInvalidLockTTL = errors.New("lock TTL must be positive")
)

// Config defines scheduler configuration
type Config struct {
	Cron            string        `yaml:"cron" default:"0 * * * *"`
	MaxRetry        int           `yaml:"maxRetry" default:"2"`
	TaskTimeout     time.Duration `yaml:"taskTimeout" default:"2h"`
	LockTTL         time.Duration `yaml:"lockTTL" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"30s"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if c.Cron == "" {
		return ErrCronRequired
	}

	if _, err := ParseCron(c.Cron); err != nil {
		return err
	}

	if c.MaxRetry < 0 {
		return ErrInvalidMaxRetry
	}

	if c.LockTTL <= 0 {
		return ErrInvalidLockTTL
	}

	return nil
}

// ParseCron validates a standard five-field expression or a descriptor such as "@hourly"
func ParseCron(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidCron, spec, err)
	}

	return sched, nil
}
