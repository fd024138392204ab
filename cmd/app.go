package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/civicpulse/pkg/blob"
	"github.com/ethpandaops/civicpulse/pkg/config"
	"github.com/ethpandaops/civicpulse/pkg/ingest"
	"github.com/ethpandaops/civicpulse/pkg/kvstore"
	"github.com/ethpandaops/civicpulse/pkg/notify"
	"github.com/ethpandaops/civicpulse/pkg/source"
	"github.com/ethpandaops/civicpulse/pkg/watermark"
	"github.com/ethpandaops/civicpulse/pkg/window"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// application holds the long-lived collaborators; every run gets a fresh job
type application struct {
	cfg *config.Config
	log logrus.FieldLogger

	kv         kvstore.Store
	sink       blob.Sink
	client     source.ClientInterface
	watermarks *watermark.Store
	publisher  notify.Publisher
}

func newApplication(cfg *config.Config, log logrus.FieldLogger) (*application, error) {
	redisOpt, err := cfg.Redis.Options()
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	kv := kvstore.NewRedisStore(log, redis.NewClient(redisOpt), &cfg.Redis)

	sink, err := blob.NewSink(&cfg.Storage)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	client, err := source.NewClient(log, &cfg.Source, nil)
	if err != nil {
		_ = kv.Close()
		_ = sink.Close()
		return nil, err
	}

	return &application{
		cfg:        cfg,
		log:        log,
		kv:         kv,
		sink:       sink,
		client:     client,
		watermarks: watermark.NewStore(log, kv, cfg.State.WatermarkKey),
		publisher:  notify.NewPublisher(log, &cfg.Notify),
	}, nil
}

func (a *application) newJob() *ingest.Job {
	return ingest.NewJob(a.log, ingest.Dependencies{
		Planner:    window.NewPlanner(a.cfg.Source.TimestampColumn),
		Client:     a.client,
		Pacer:      source.NewRatePacer(a.cfg.Source.PageDelay),
		Writer:     blob.NewWriter(a.log, a.sink, a.cfg.Domain, a.cfg.SourceLabel, time.Now),
		KV:         a.kv,
		Watermarks: a.watermarks,
		Publisher:  a.publisher,
	}, ingest.Options{
		Column:           a.cfg.Source.TimestampColumn,
		PageSize:         a.cfg.Source.PageSize(),
		BackfillStart:    a.cfg.Backfill.Start,
		BackfillEnd:      a.cfg.Backfill.End,
		BackfillStartKey: a.cfg.State.BackfillStartKey,
		BackfillEndKey:   a.cfg.State.BackfillEndKey,
		ModeKey:          a.cfg.State.ModeKey,
	})
}

func (a *application) run(ctx context.Context, runID string) (*ingest.Result, error) {
	return a.newJob().Run(ctx, runID)
}

func (a *application) Close() error {
	return errors.Join(a.sink.Close(), a.kv.Close())
}

// isPermanent reports failures that a retry cannot fix
func isPermanent(err error) bool {
	return errors.Is(err, config.ErrInvalidConfig) ||
		errors.Is(err, window.ErrInvalidBound) ||
		errors.Is(err, window.ErrBoundsOrder)
}
