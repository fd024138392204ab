// Package batch turns a fetched page into an upload-ready JSON-lines payload
package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethpandaops/civicpulse/pkg/source"
	"github.com/ethpandaops/civicpulse/pkg/window"
)

// Batch is the derived view of one page
type Batch struct {
	Payload []byte
	Count   int
	// MaxTimestamp is nil when no row carried a usable timestamp
	MaxTimestamp *time.Time
	// Skipped counts rows whose timestamp column was missing or unparseable
	Skipped int
	// Index is the zero-based page index the batch was built from
	Index int
}

// FromPage encodes the page records one per line and scans the timestamp column.
// Rows with a bad timestamp stay in the payload; they are only left out of
// the maximum.
func FromPage(page *source.Page, column string) (*Batch, error) {
	var buf bytes.Buffer

	b := &Batch{
		Count: len(page.Records),
		Index: page.Index,
	}

	for i, record := range page.Records {
		if err := json.Compact(&buf, record); err != nil {
			return nil, fmt.Errorf("failed to encode row %d at offset %d: %w", i, page.Offset, err)
		}
		buf.WriteByte('\n')

		ts, ok := rowTimestamp(record, column)
		if !ok {
			b.Skipped++
			continue
		}

		if b.MaxTimestamp == nil || ts.After(*b.MaxTimestamp) {
			b.MaxTimestamp = &ts
		}
	}

	b.Payload = buf.Bytes()

	return b, nil
}

func rowTimestamp(record json.RawMessage, column string) (time.Time, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(record, &fields); err != nil {
		return time.Time{}, false
	}

	raw, ok := fields[column]
	if !ok {
		return time.Time{}, false
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return time.Time{}, false
	}

	ts, err := window.ParseTimestamp(value)
	if err != nil {
		return time.Time{}, false
	}

	return ts, true
}
