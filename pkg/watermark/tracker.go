// Package watermark tracks the highest timestamp seen during a run and persists it
package watermark

import (
	"time"

	"github.com/ethpandaops/civicpulse/pkg/batch"
)

// Tracker keeps a running maximum. It never moves backwards.
type Tracker struct {
	max time.Time
}

// NewTracker seeds the tracker with the window's lower bound
func NewTracker(since time.Time) *Tracker {
	return &Tracker{max: since.UTC()}
}

// Observe folds one batch into the maximum and reports whether it advanced
func (t *Tracker) Observe(b *batch.Batch) bool {
	if b == nil || b.MaxTimestamp == nil {
		return false
	}

	if !b.MaxTimestamp.After(t.max) {
		return false
	}

	t.max = b.MaxTimestamp.UTC()

	return true
}

// Value is the maximum at whole-second precision
func (t *Tracker) Value() time.Time {
	return t.max.Truncate(time.Second)
}
