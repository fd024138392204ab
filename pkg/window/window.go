// Package window plans the query window for a single ingest run
package window

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultLookback is how far back a cold-start incremental run reaches
	DefaultLookback = 90 * 24 * time.Hour

	// SocrataLayout is the floating timestamp layout used in predicates and watermarks
	SocrataLayout = "2006-01-02T15:04:05"
)

var (
	// ErrInvalidBound is returned when a backfill bound cannot be parsed
	ErrInvalidBound = errors.New("invalid backfill bound")
	// ErrBoundsOrder is returned when the backfill end precedes its start
	ErrBoundsOrder = errors.New("backfill end is before start")
	// ErrEmptyTimestamp is returned when there is nothing to parse
	ErrEmptyTimestamp = errors.New("empty timestamp")
)

// RunMode selects between a bounded backfill and a watermark-driven incremental run
type RunMode int

const (
	// ModeIncremental fetches everything newer than the persisted watermark
	ModeIncremental RunMode = iota
	// ModeBackfill fetches an explicit inclusive date range
	ModeBackfill
)

func (m RunMode) String() string {
	switch m {
	case ModeBackfill:
		return "backfill"
	case ModeIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// Bounds holds an explicit backfill range
type Bounds struct {
	Start time.Time
	End   time.Time
}

// QueryWindow is the outcome of planning: what to ask the source for and how to label it
type QueryWindow struct {
	Mode      RunMode
	Predicate string
	Label     string
	Since     time.Time
	// Until is only set for backfill windows
	Until time.Time
}

// Planner decides the run mode and builds the query window
type Planner struct {
	Column   string
	Lookback time.Duration
	Now      func() time.Time
}

// NewPlanner creates a planner filtering on the given timestamp column
func NewPlanner(column string) *Planner {
	return &Planner{
		Column:   column,
		Lookback: DefaultLookback,
		Now:      time.Now,
	}
}

// Plan produces exactly one window. Backfill wins whenever bounds are present,
// the watermark is only consulted for incremental runs.
func (p *Planner) Plan(bounds *Bounds, watermark *time.Time) QueryWindow {
	if bounds != nil {
		since := bounds.Start.UTC()
		until := bounds.End.UTC()

		return QueryWindow{
			Mode: ModeBackfill,
			Predicate: fmt.Sprintf("%s between '%s' and '%s'",
				p.Column, since.Format(SocrataLayout), until.Format(SocrataLayout)),
			Label: fmt.Sprintf("%s_%s", since.Format("20060102"), until.Format("20060102")),
			Since: since,
			Until: until,
		}
	}

	var since time.Time
	if watermark != nil {
		since = watermark.UTC()
	} else {
		lookback := p.Lookback
		if lookback <= 0 {
			lookback = DefaultLookback
		}
		since = p.now().Add(-lookback)
	}

	since = since.Truncate(time.Second)

	return QueryWindow{
		Mode:      ModeIncremental,
		Predicate: fmt.Sprintf("%s > '%s'", p.Column, since.Format(SocrataLayout)),
		Label:     "inc_since_" + since.Format("20060102T150405"),
		Since:     since,
	}
}

func (p *Planner) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}

	return p.Now().UTC()
}

//nolint:gochecknoglobals // Parse layouts are read-only
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	SocrataLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp reads the timestamp forms the source and the state store use.
// Values without a zone are taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyTimestamp
	}

	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, lastErr
}

// ParseBounds turns the raw backfill strings into Bounds.
// It returns nil unless both are set.
func ParseBounds(start, end string) (*Bounds, error) {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if start == "" || end == "" {
		return nil, nil //nolint:nilnil // absent bounds mean incremental mode
	}

	s, err := ParseTimestamp(start)
	if err != nil {
		return nil, fmt.Errorf("%w: start %q: %w", ErrInvalidBound, start, err)
	}

	e, err := ParseTimestamp(end)
	if err != nil {
		return nil, fmt.Errorf("%w: end %q: %w", ErrInvalidBound, end, err)
	}

	if e.Before(s) {
		return nil, fmt.Errorf("%w: %s > %s", ErrBoundsOrder, start, end)
	}

	return &Bounds{Start: s, End: e}, nil
}
