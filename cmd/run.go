package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/civicpulse/pkg/observability"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingest invocation and exit",
	Long: `Runs a single backfill or incremental invocation. Exits 0 when every page
was written and the watermark finalized, 1 otherwise.`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := app.run(ctx, uuid.New().String())
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"mode":    res.Mode.String(),
		"window":  res.Window.Label,
		"pages":   res.Pages,
		"records": res.Records,
	}).Info("Run finished")

	return nil
}
