package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/civicpulse/pkg/blob"
	"github.com/ethpandaops/civicpulse/pkg/notify"
	"github.com/ethpandaops/civicpulse/pkg/redis"
	"github.com/ethpandaops/civicpulse/pkg/scheduler"
	"github.com/ethpandaops/civicpulse/pkg/source"
	"github.com/ethpandaops/civicpulse/pkg/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(body), 0o600))

	return file
}

const minimal = `
source:
  url: https://data.cityofnewyork.us/resource/erm2-nwe9.json
storage:
  azure:
    account: civicdata
redis:
  url: redis://localhost:6379/0
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logging)
	assert.Equal(t, 10000, cfg.Source.BatchSize)
	assert.Equal(t, "created_date", cfg.Source.TimestampColumn)
	assert.Equal(t, source.AuthAppToken, cfg.Source.AuthScheme)
	assert.Equal(t, 120*time.Second, cfg.Source.RequestTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Source.PageDelay)

	assert.Equal(t, blob.KindAzure, cfg.Storage.Kind)
	assert.Equal(t, "raw", cfg.Storage.Container)

	assert.Equal(t, "api/311", cfg.Domain)
	assert.Equal(t, "nyc", cfg.SourceLabel)
	assert.Equal(t, "civicpulse", cfg.Redis.Prefix)

	assert.Equal(t, "NYC311_WATERMARK", cfg.State.WatermarkKey)
	assert.Equal(t, "NYC311_MODE", cfg.State.ModeKey)
	assert.Equal(t, "BACKFILL_START", cfg.State.BackfillStartKey)
	assert.Equal(t, "BACKFILL_END", cfg.State.BackfillEndKey)

	assert.Equal(t, "0 * * * *", cfg.Schedule.Cron)
	assert.Equal(t, 2, cfg.Schedule.MaxRetry)
	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, "civicpulse.ingest", cfg.Notify.Queue)
	assert.False(t, cfg.Notify.Enabled())
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("CIVICPULSE_TOKEN", "secret-token")
	t.Setenv("CIVICPULSE_CONN", "UseDevelopmentStorage=true")

	cfg, err := Load(writeConfig(t, `
source:
  url: https://data.cityofnewyork.us/resource/erm2-nwe9.json
  token: ${CIVICPULSE_TOKEN}
  pageDelay: 10ms
storage:
  azure:
    connectionString: ${CIVICPULSE_CONN}
redis:
  url: redis://localhost:6379/0
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "secret-token", cfg.Source.Token)
	assert.Equal(t, "UseDevelopmentStorage=true", cfg.Storage.Azure.ConnectionString)
	assert.Equal(t, source.MinPageDelay, cfg.Source.PageDelay)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "source: [unclosed"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()

		cfg, err := Load(writeConfig(t, minimal))
		require.NoError(t, err)

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:    "missing source url",
			mutate:  func(c *Config) { c.Source.URL = "" },
			wantErr: source.ErrURLRequired,
		},
		{
			name:    "non-positive batch size",
			mutate:  func(c *Config) { c.Source.BatchSize = 0 },
			wantErr: source.ErrInvalidBatchSize,
		},
		{
			name:    "azure without credentials",
			mutate:  func(c *Config) { c.Storage.Azure.Account = "" },
			wantErr: blob.ErrAzureAccountRequired,
		},
		{
			name: "s3 without endpoint",
			mutate: func(c *Config) {
				c.Storage.Kind = blob.KindS3
			},
			wantErr: blob.ErrS3EndpointRequired,
		},
		{
			name:    "missing redis url",
			mutate:  func(c *Config) { c.Redis.URL = "" },
			wantErr: redis.ErrURLRequired,
		},
		{
			name:    "empty domain",
			mutate:  func(c *Config) { c.Domain = "" },
			wantErr: ErrDomainRequired,
		},
		{
			name:    "empty source label",
			mutate:  func(c *Config) { c.SourceLabel = "" },
			wantErr: ErrSourceLabelRequired,
		},
		{
			name:    "empty watermark key",
			mutate:  func(c *Config) { c.State.WatermarkKey = "" },
			wantErr: ErrWatermarkKeyRequired,
		},
		{
			name: "malformed backfill bound",
			mutate: func(c *Config) {
				c.Backfill.Start = "last tuesday"
				c.Backfill.End = "2024-01-02"
			},
			wantErr: window.ErrInvalidBound,
		},
		{
			name: "backfill end before start",
			mutate: func(c *Config) {
				c.Backfill.Start = "2024-01-02"
				c.Backfill.End = "2024-01-01"
			},
			wantErr: window.ErrBoundsOrder,
		},
		{
			name:    "bad cron",
			mutate:  func(c *Config) { c.Schedule.Cron = "every hour" },
			wantErr: scheduler.ErrInvalidCron,
		},
		{
			name:    "bad notify url",
			mutate:  func(c *Config) { c.Notify.AMQPURL = "http://broker" },
			wantErr: notify.ErrInvalidAMQPURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
