package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/civicpulse/pkg/batch"
	"github.com/ethpandaops/civicpulse/pkg/blob"
	"github.com/ethpandaops/civicpulse/pkg/kvstore"
	"github.com/ethpandaops/civicpulse/pkg/notify"
	"github.com/ethpandaops/civicpulse/pkg/observability"
	"github.com/ethpandaops/civicpulse/pkg/source"
	"github.com/ethpandaops/civicpulse/pkg/watermark"
	"github.com/ethpandaops/civicpulse/pkg/window"
	"github.com/sirupsen/logrus"
)

// Options are the per-dataset settings resolved from configuration
type Options struct {
	Column   string
	PageSize int

	// BackfillStart and BackfillEnd come from the config file; the store keys override them
	BackfillStart    string
	BackfillEnd      string
	BackfillStartKey string
	BackfillEndKey   string

	// ModeKey receives the run mode tag when set
	ModeKey string
}

// Dependencies are the collaborators a job drives
type Dependencies struct {
	Planner    *window.Planner
	Client     source.ClientInterface
	Pacer      source.Pacer
	Writer     *blob.Writer
	KV         kvstore.Store
	Watermarks *watermark.Store
	// Publisher is optional
	Publisher notify.Publisher
}

// Result summarises a finished run
type Result struct {
	RunID   string
	State   State
	Mode    window.RunMode
	Window  window.QueryWindow
	Pages   int
	Records int
	Objects []string
	// SkippedTimestamps counts rows left out of the watermark
	SkippedTimestamps int
	// Watermark is set only when a new value was persisted
	Watermark *time.Time
	Duration  time.Duration
}

// Job is one ingest invocation. Pages are handled strictly in order.
type Job struct {
	log  logrus.FieldLogger
	deps Dependencies
	opts Options

	state State
}

// NewJob creates a job
func NewJob(log logrus.FieldLogger, deps Dependencies, opts Options) *Job {
	if deps.Pacer == nil {
		deps.Pacer = source.NoopPacer{}
	}

	return &Job{
		log:   log.WithField("component", "ingest"),
		deps:  deps,
		opts:  opts,
		state: StatePlanning,
	}
}

// State returns the current state
func (j *Job) State() State {
	return j.state
}

func (j *Job) transition(log logrus.FieldLogger, next State) {
	if j.state == next {
		return
	}

	log.WithFields(logrus.Fields{
		"from": j.state.String(),
		"to":   next.String(),
	}).Debug("State transition")

	j.state = next
}

// Run plans the window, walks every page and finalizes the watermark.
// On error the result is in StateFailed and the watermark is untouched.
func (j *Job) Run(ctx context.Context, runID string) (*Result, error) {
	started := time.Now()
	log := j.log.WithField("run_id", runID)

	res := &Result{RunID: runID}

	j.state = StatePlanning

	w, err := j.plan(ctx, log)
	if err != nil {
		return j.fail(log, res, started, fmt.Errorf("planning failed: %w", err))
	}

	res.Window = w
	res.Mode = w.Mode
	log = log.WithFields(logrus.Fields{
		"mode":   w.Mode.String(),
		"window": w.Label,
	})

	log.WithFields(logrus.Fields{
		"predicate": w.Predicate,
		"since":     w.Since.Format(window.SocrataLayout),
	}).Info("Planned ingest window")

	tracker := watermark.NewTracker(w.Since)
	fetcher := source.NewFetcher(log, j.deps.Client, j.deps.Pacer, w.Predicate, j.opts.Column, j.opts.PageSize)

	for {
		j.transition(log, StateFetching)

		page, err := fetcher.Next(ctx)
		if err != nil {
			return j.fail(log, res, started, err)
		}

		if page == nil {
			break
		}

		j.transition(log, StateWriting)

		objectPath, err := j.writePage(ctx, log, page, w, tracker, res)
		if err != nil {
			return j.fail(log, res, started, err)
		}

		res.Objects = append(res.Objects, objectPath)
	}

	j.transition(log, StateFinalizing)

	wrote, err := watermark.Finalize(ctx, j.deps.Watermarks, tracker, w.Mode)
	if err != nil {
		return j.fail(log, res, started, err)
	}

	if wrote {
		v := tracker.Value()
		res.Watermark = &v
		observability.RecordWatermark(v.Unix())
	}

	j.transition(log, StateDone)

	res.State = StateDone
	res.Duration = time.Since(started)

	observability.RecordRun(w.Mode.String(), StateDone.String(), res.Duration.Seconds())

	log.WithFields(logrus.Fields{
		"pages":    res.Pages,
		"records":  res.Records,
		"duration": res.Duration.String(),
	}).Infof("Completed %s run", w.Mode)

	j.notify(ctx, log, res)

	return res, nil
}

func (j *Job) plan(ctx context.Context, log logrus.FieldLogger) (window.QueryWindow, error) {
	start, end, err := j.resolveBounds(ctx)
	if err != nil {
		return window.QueryWindow{}, err
	}

	if (start == "") != (end == "") {
		log.WithFields(logrus.Fields{
			"start": start,
			"end":   end,
		}).Warn("Only one backfill bound is set, running incrementally")
	}

	bounds, err := window.ParseBounds(start, end)
	if err != nil {
		return window.QueryWindow{}, err
	}

	var prior *time.Time
	if bounds == nil {
		prior, err = j.deps.Watermarks.Load(ctx)
		if err != nil {
			return window.QueryWindow{}, err
		}

		if prior == nil {
			log.Info("No watermark recorded, cold start")
		}
	}

	w := j.deps.Planner.Plan(bounds, prior)

	if j.opts.ModeKey != "" {
		if err := j.deps.KV.Set(ctx, j.opts.ModeKey, w.Mode.String()); err != nil {
			log.WithError(err).Warn("Failed to record run mode tag")
		}
	}

	return w, nil
}

// resolveBounds prefers bounds set in the variable store over the config file
func (j *Job) resolveBounds(ctx context.Context) (start, end string, err error) {
	start, end = j.opts.BackfillStart, j.opts.BackfillEnd

	if j.opts.BackfillStartKey == "" || j.opts.BackfillEndKey == "" {
		return start, end, nil
	}

	kvStart, okStart, err := j.deps.KV.Get(ctx, j.opts.BackfillStartKey)
	if err != nil {
		return "", "", err
	}

	kvEnd, okEnd, err := j.deps.KV.Get(ctx, j.opts.BackfillEndKey)
	if err != nil {
		return "", "", err
	}

	if okStart || okEnd {
		return strings.TrimSpace(kvStart), strings.TrimSpace(kvEnd), nil
	}

	return start, end, nil
}

func (j *Job) writePage(
	ctx context.Context,
	log logrus.FieldLogger,
	page *source.Page,
	w window.QueryWindow,
	tracker *watermark.Tracker,
	res *Result,
) (string, error) {
	b, err := batch.FromPage(page, j.opts.Column)
	if err != nil {
		return "", err
	}

	objectPath, err := j.deps.Writer.Write(ctx, b, w.Label)
	if err != nil {
		observability.RecordUpload("error")
		return "", err
	}

	observability.RecordUpload("success")

	if b.Skipped > 0 {
		log.WithFields(logrus.Fields{
			"page":    b.Index,
			"skipped": b.Skipped,
			"column":  j.opts.Column,
		}).Warn("Rows with missing or unparseable timestamps left out of watermark")
	}

	tracker.Observe(b)

	res.Pages++
	res.Records += b.Count
	res.SkippedTimestamps += b.Skipped

	observability.RecordPage(w.Mode.String(), b.Count, b.Skipped)

	return objectPath, nil
}

func (j *Job) fail(log logrus.FieldLogger, res *Result, started time.Time, err error) (*Result, error) {
	failedIn := j.state
	j.state = StateFailed

	res.State = StateFailed
	res.Duration = time.Since(started)

	observability.RecordRun(res.Mode.String(), StateFailed.String(), res.Duration.Seconds())

	log.WithError(err).WithFields(logrus.Fields{
		"state":   failedIn.String(),
		"pages":   res.Pages,
		"records": res.Records,
	}).Error("Ingest run failed, watermark not advanced")

	return res, err
}

func (j *Job) notify(ctx context.Context, log logrus.FieldLogger, res *Result) {
	if j.deps.Publisher == nil {
		return
	}

	event := notify.Event{
		Type:        notify.EventIngestCompleted,
		RunID:       res.RunID,
		Mode:        res.Mode.String(),
		WindowLabel: res.Window.Label,
		Pages:       res.Pages,
		Records:     res.Records,
		Watermark:   res.Watermark,
		CompletedAt: time.Now().UTC(),
	}

	if err := j.deps.Publisher.Publish(ctx, event); err != nil {
		log.WithError(err).Warn("Failed to publish completion event")
	}
}
