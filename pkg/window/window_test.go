package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 15, 12, 30, 45, 500, time.UTC)
}

func TestPlanner_Plan(t *testing.T) {
	watermark := time.Date(2024, 5, 1, 8, 9, 10, 0, time.UTC)

	tests := []struct {
		name          string
		bounds        *Bounds
		watermark     *time.Time
		wantMode      RunMode
		wantPredicate string
		wantLabel     string
		wantSince     time.Time
	}{
		{
			name: "backfill bounds win over watermark",
			bounds: &Bounds{
				Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			},
			watermark:     &watermark,
			wantMode:      ModeBackfill,
			wantPredicate: "created_date between '2024-01-01T00:00:00' and '2024-01-02T00:00:00'",
			wantLabel:     "20240101_20240102",
			wantSince:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:          "incremental from watermark",
			watermark:     &watermark,
			wantMode:      ModeIncremental,
			wantPredicate: "created_date > '2024-05-01T08:09:10'",
			wantLabel:     "inc_since_20240501T080910",
			wantSince:     watermark,
		},
		{
			name:          "cold start looks back ninety days",
			wantMode:      ModeIncremental,
			wantPredicate: "created_date > '2024-03-17T12:30:45'",
			wantLabel:     "inc_since_20240317T123045",
			wantSince:     time.Date(2024, 3, 17, 12, 30, 45, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlanner("created_date")
			p.Now = fixedNow

			w := p.Plan(tt.bounds, tt.watermark)

			assert.Equal(t, tt.wantMode, w.Mode)
			assert.Equal(t, tt.wantPredicate, w.Predicate)
			assert.Equal(t, tt.wantLabel, w.Label)
			assert.True(t, tt.wantSince.Equal(w.Since), "since = %s", w.Since)
		})
	}
}

func TestPlanner_ColdStartIsNowMinusLookback(t *testing.T) {
	p := NewPlanner("ts")
	p.Now = fixedNow

	w := p.Plan(nil, nil)

	assert.Equal(t, fixedNow().Add(-DefaultLookback).Truncate(time.Second), w.Since)
}

func TestPlanner_DistinctWindowsHaveDistinctLabels(t *testing.T) {
	p := NewPlanner("ts")
	a := time.Date(2024, 5, 1, 8, 9, 10, 0, time.UTC)
	b := a.Add(time.Second)

	assert.NotEqual(t, p.Plan(nil, &a).Label, p.Plan(nil, &b).Label)
}

func TestRunMode_String(t *testing.T) {
	assert.Equal(t, "backfill", ModeBackfill.String())
	assert.Equal(t, "incremental", ModeIncremental.String())
	assert.Equal(t, "unknown", RunMode(42).String())
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-01-02T03:04:05", want},
		{"2024-01-02T03:04:05.000", want},
		{"2024-01-02T03:04:05Z", want},
		{"2024-01-02T05:04:05+02:00", want},
		{"2024-01-02T03:04:05.123", want.Add(123 * time.Millisecond)},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTimestamp("")
	require.ErrorIs(t, err, ErrEmptyTimestamp)

	_, err = ParseTimestamp("not a date")
	require.Error(t, err)
}

func TestParseBounds(t *testing.T) {
	t.Run("both set", func(t *testing.T) {
		b, err := ParseBounds("2024-01-01T00:00:00", "2024-01-02T00:00:00")
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), b.Start)
	})

	t.Run("one missing means no backfill", func(t *testing.T) {
		b, err := ParseBounds("2024-01-01", "")
		require.NoError(t, err)
		assert.Nil(t, b)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseBounds("yesterday", "2024-01-02")
		require.ErrorIs(t, err, ErrInvalidBound)
	})

	t.Run("reversed", func(t *testing.T) {
		_, err := ParseBounds("2024-01-03", "2024-01-02")
		require.ErrorIs(t, err, ErrBoundsOrder)
	})
}
