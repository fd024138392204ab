package watermark

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/civicpulse/pkg/kvstore"
	"github.com/ethpandaops/civicpulse/pkg/window"
	"github.com/sirupsen/logrus"
)

// Store reads and writes the persisted watermark under one key
type Store struct {
	log logrus.FieldLogger
	kv  kvstore.Store
	key string
}

// NewStore creates a watermark store backed by kv
func NewStore(log logrus.FieldLogger, kv kvstore.Store, key string) *Store {
	return &Store{
		log: log.WithField("component", "watermark"),
		kv:  kv,
		key: key,
	}
}

// Load returns the stored watermark, or nil if none has been recorded
func (s *Store) Load(ctx context.Context) (*time.Time, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}

	if !ok || raw == "" {
		return nil, nil //nolint:nilnil // cold start
	}

	t, err := window.ParseTimestamp(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse watermark %q: %w", raw, err)
	}

	return &t, nil
}

// Save writes the watermark truncated to seconds
func (s *Store) Save(ctx context.Context, t time.Time) error {
	val := t.UTC().Truncate(time.Second).Format(window.SocrataLayout)

	if err := s.kv.Set(ctx, s.key, val); err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}

	s.log.WithField("watermark", val).Info("Updated watermark")

	return nil
}

// Finalize persists the tracked value for incremental runs only.
// It reports whether a write happened.
func Finalize(ctx context.Context, store *Store, tracker *Tracker, mode window.RunMode) (bool, error) {
	if mode != window.ModeIncremental {
		return false, nil
	}

	if err := store.Save(ctx, tracker.Value()); err != nil {
		return false, err
	}

	return true, nil
}
