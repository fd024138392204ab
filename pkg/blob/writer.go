package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/civicpulse/pkg/batch"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUpload marks a failed page upload
	ErrUpload = errors.New("sink upload failed")
)

// Writer uploads batches under the configured domain and source
type Writer struct {
	log    logrus.FieldLogger
	sink   Sink
	domain string
	source string
	now    func() time.Time
}

// NewWriter creates a writer; now supplies the ingest date
func NewWriter(log logrus.FieldLogger, sink Sink, domain, source string, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}

	return &Writer{
		log:    log.WithField("component", "blob-writer"),
		sink:   sink,
		domain: domain,
		source: source,
		now:    now,
	}
}

// Write uploads one batch and returns the object path it was written to
func (w *Writer) Write(ctx context.Context, b *batch.Batch, label string) (string, error) {
	objectPath := ObjectPath(w.domain, w.source, w.now(), label, b.Index)

	if err := w.sink.Put(ctx, objectPath, b.Payload); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUpload, objectPath, err)
	}

	w.log.WithFields(logrus.Fields{
		"records": b.Count,
		"path":    objectPath,
	}).Info("Uploaded page")

	return objectPath, nil
}
