package source

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer bounds the request rate against the source API
type Pacer interface {
	Wait(ctx context.Context) error
}

// RatePacer allows one request per interval
type RatePacer struct {
	limiter *rate.Limiter
}

// NewRatePacer creates a pacer spacing requests at least delay apart
func NewRatePacer(delay time.Duration) *RatePacer {
	if delay < MinPageDelay {
		delay = MinPageDelay
	}

	return &RatePacer{
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Wait blocks until the next request may go out
func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NoopPacer never waits
type NoopPacer struct{}

// Wait returns immediately
func (NoopPacer) Wait(_ context.Context) error {
	return nil
}

var (
	_ Pacer = (*RatePacer)(nil)
	_ Pacer = NoopPacer{}
)
