package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethpandaops/civicpulse/pkg/api"
	"github.com/ethpandaops/civicpulse/pkg/ingest"
	"github.com/ethpandaops/civicpulse/pkg/observability"
	"github.com/ethpandaops/civicpulse/pkg/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingest on the configured cron schedule",
	Long: `Registers the ingest task with the asynq scheduler and processes it one run
at a time under a Redis run lock. Optionally serves a status API.`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	observability.StartMetricsServer(logger, cfg.MetricsAddr)

	app, err := newApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close resources")
		}
	}()

	status := &runStatus{app: app}

	sched, err := scheduler.NewService(logger, &cfg.Schedule, &cfg.Redis, status.track, isPermanent)
	if err != nil {
		return err
	}
	status.sched = sched

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}

	var apiSvc api.Service
	if cfg.API.Enabled {
		apiSvc = api.NewService(&cfg.API, status, logger)
		if err := apiSvc.Start(ctx); err != nil {
			_ = sched.Stop()
			return err
		}
	}

	logger.WithField("cron", cfg.Schedule.Cron).Info("Scheduler running")

	<-ctx.Done()

	logger.Info("Shutting down")

	if apiSvc != nil {
		if err := apiSvc.Stop(); err != nil {
			logger.WithError(err).Warn("Failed to stop API")
		}
	}

	return sched.Stop()
}

// runStatus runs jobs for the scheduler and serves what it saw to the status API
type runStatus struct {
	app   *application
	sched scheduler.Service

	mu   sync.RWMutex
	last *ingest.Result
}

func (s *runStatus) track(ctx context.Context, runID string) error {
	res, err := s.app.run(ctx, runID)

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()

	return err
}

func (s *runStatus) Ready() bool {
	return s.sched != nil
}

type lastRun struct {
	RunID             string     `json:"run_id"`
	State             string     `json:"state"`
	Mode              string     `json:"mode"`
	Window            string     `json:"window"`
	Pages             int        `json:"pages"`
	Records           int        `json:"records"`
	SkippedTimestamps int        `json:"skipped_timestamps"`
	Watermark         *time.Time `json:"watermark,omitempty"`
	Duration          string     `json:"duration"`
}

type statusSnapshot struct {
	Watermark *time.Time       `json:"watermark"`
	Mode      string           `json:"mode,omitempty"`
	Scheduler scheduler.Status `json:"scheduler"`
	LastRun   *lastRun         `json:"last_run,omitempty"`
}

func (s *runStatus) Snapshot(ctx context.Context) (any, error) {
	wm, err := s.app.watermarks.Load(ctx)
	if err != nil {
		return nil, err
	}

	snap := statusSnapshot{Watermark: wm}

	if key := s.app.cfg.State.ModeKey; key != "" {
		mode, _, err := s.app.kv.Get(ctx, key)
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{"key": key}).Debug("Failed to read mode tag")
		}
		snap.Mode = mode
	}

	if s.sched != nil {
		snap.Scheduler = s.sched.Status()
	}

	s.mu.RLock()
	res := s.last
	s.mu.RUnlock()

	if res != nil {
		snap.LastRun = &lastRun{
			RunID:             res.RunID,
			State:             res.State.String(),
			Mode:              res.Mode.String(),
			Window:            res.Window.Label,
			Pages:             res.Pages,
			Records:           res.Records,
			SkippedTimestamps: res.SkippedTimestamps,
			Watermark:         res.Watermark,
			Duration:          res.Duration.String(),
		}
	}

	return snap, nil
}
