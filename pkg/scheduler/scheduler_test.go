package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	r "github.com/ethpandaops/civicpulse/pkg/redis"
)

func validConfig() *Config {
	return &Config{
		Cron:        "0 * * * *",
		MaxRetry:    2,
		TaskTimeout: time.Hour,
		LockTTL:     30 * time.Second,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(_ *Config) {}},
		{name: "descriptor", mutate: func(c *Config) { c.Cron = "@hourly" }},
		{name: "every", mutate: func(c *Config) { c.Cron = "@every 15m" }},
		{name: "empty cron", mutate: func(c *Config) { c.Cron = "" }, wantErr: ErrCronRequired},
		{name: "negative retry", mutate: func(c *Config) { c.MaxRetry = -1 }, wantErr: ErrInvalidMaxRetry},
		{name: "zero ttl", mutate: func(c *Config) { c.LockTTL = 0 }, wantErr: ErrInvalidLockTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	bad := validConfig()
	bad.Cron = "every hour please"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidCron)
}

func TestRunLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	log := logrus.New()
	ctx := context.Background()

	first := NewRunLock(log, client, "cp:lock:ingest", 10*time.Second)
	second := NewRunLock(log, client, "cp:lock:ingest", 10*time.Second)

	require.NoError(t, first.Acquire(ctx))
	assert.ErrorIs(t, second.Acquire(ctx), ErrLockHeld)

	// A non-owner release leaves the lock in place
	require.NoError(t, second.Release(ctx))
	assert.True(t, mr.Exists("cp:lock:ingest"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("cp:lock:ingest"))

	require.NoError(t, second.Acquire(ctx))
	require.NoError(t, second.Release(ctx))
}

func TestRunLock_ExpiresWhenOwnerDies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", "someone-else", 5*time.Second).Err())

	lock := NewRunLock(logrus.New(), client, "k", 5*time.Second)
	assert.ErrorIs(t, lock.Acquire(ctx), ErrLockHeld)

	mr.FastForward(6 * time.Second)

	require.NoError(t, lock.Acquire(ctx))
	require.NoError(t, lock.Release(ctx))
}

func TestRunLock_ExtendOnlyWhileOwned(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	lock := NewRunLock(logrus.New(), client, "k", 30*time.Second)

	require.NoError(t, lock.Acquire(ctx))
	defer func() { _ = lock.Release(ctx) }()

	mr.FastForward(20 * time.Second)

	owned, err := lock.extend(ctx)
	require.NoError(t, err)
	assert.True(t, owned)
	assert.Equal(t, 30*time.Second, mr.TTL("k"))

	// Lease expired and another instance took over
	mr.FastForward(31 * time.Second)
	require.NoError(t, client.Set(ctx, "k", "someone-else", 5*time.Second).Err())

	owned, err = lock.extend(ctx)
	require.NoError(t, err)
	assert.False(t, owned)
	assert.Equal(t, 5*time.Second, mr.TTL("k"))

	val, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func newTestService(t *testing.T, run RunFunc, permanent PermanentChecker) (*miniredis.Miniredis, *service) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisCfg := &r.Config{URL: "redis://" + mr.Addr(), Prefix: "cp"}

	svc, err := NewService(logrus.New(), validConfig(), redisCfg, run, permanent)
	require.NoError(t, err)

	s, ok := svc.(*service)
	require.True(t, ok)

	t.Cleanup(func() { _ = s.redis.Close() })

	return mr, s
}

func TestHandleIngest_RunsUnderLock(t *testing.T) {
	var sawLock bool
	var mr *miniredis.Miniredis

	mr, s := newTestService(t, func(_ context.Context, runID string) error {
		assert.NotEmpty(t, runID)
		sawLock = mr.Exists("cp:lock:ingest")
		return nil
	}, nil)

	require.NoError(t, s.HandleIngest(context.Background(), asynq.NewTask(TaskTypeIngest, nil)))

	assert.True(t, sawLock)
	assert.False(t, mr.Exists("cp:lock:ingest"))

	st := s.Status()
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 0, st.Failures)
	assert.False(t, st.Running)
	assert.Empty(t, st.Error)
}

func TestHandleIngest_SkipsWhenLocked(t *testing.T) {
	called := false
	mr, s := newTestService(t, func(context.Context, string) error {
		called = true
		return nil
	}, nil)

	require.NoError(t, mr.Set("cp:lock:ingest", "other"))

	err := s.HandleIngest(context.Background(), asynq.NewTask(TaskTypeIngest, nil))
	require.ErrorIs(t, err, ErrLockHeld)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.False(t, called)
}

func TestHandleIngest_Failures(t *testing.T) {
	errTransient := errors.New("source down")
	errPermanent := errors.New("bad config")

	isPermanent := func(err error) bool { return errors.Is(err, errPermanent) }

	t.Run("transient is retried", func(t *testing.T) {
		_, s := newTestService(t, func(context.Context, string) error { return errTransient }, isPermanent)

		err := s.HandleIngest(context.Background(), asynq.NewTask(TaskTypeIngest, nil))
		require.ErrorIs(t, err, errTransient)
		assert.NotErrorIs(t, err, asynq.SkipRetry)

		st := s.Status()
		assert.Equal(t, 1, st.Failures)
		assert.Equal(t, "source down", st.Error)
	})

	t.Run("permanent skips retry", func(t *testing.T) {
		_, s := newTestService(t, func(context.Context, string) error { return errPermanent }, isPermanent)

		err := s.HandleIngest(context.Background(), asynq.NewTask(TaskTypeIngest, nil))
		require.ErrorIs(t, err, errPermanent)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}
