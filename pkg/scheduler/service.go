package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	r "github.com/ethpandaops/civicpulse/pkg/redis"
)

const (
	// TaskTypeIngest is the asynq task type for one ingest invocation
	TaskTypeIngest = "civicpulse:ingest"
	// QueueName is the asynq queue scheduled runs are enqueued on
	QueueName = "ingest"

	lockKey = "lock:ingest"
)

// RunFunc executes one ingest invocation
type RunFunc func(ctx context.Context, runID string) error

// PermanentChecker reports errors that retrying cannot fix
type PermanentChecker func(err error) bool

// Status describes the most recent scheduled run
type Status struct {
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
	Runs       int       `json:"runs"`
	Failures   int       `json:"failures"`
	Running    bool      `json:"running"`
}

// Service defines the public interface for the scheduler
type Service interface {
	// Start registers the cron entry and begins processing
	Start(ctx context.Context) error
	// Stop gracefully shuts down the scheduler
	Stop() error
	// Status returns the last run status
	Status() Status
}

type service struct {
	log       logrus.FieldLogger
	cfg       *Config
	redisCfg  *r.Config
	redis     *redis.Client
	run       RunFunc
	permanent PermanentChecker

	scheduler *asynq.Scheduler
	server    *asynq.Server

	mu     sync.RWMutex
	status Status
}

// NewService creates a new scheduler service
func NewService(log logrus.FieldLogger, cfg *Config, redisCfg *r.Config, run RunFunc, permanent PermanentChecker) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	redisOpt, err := redisCfg.Options()
	if err != nil {
		return nil, err
	}

	if permanent == nil {
		permanent = func(error) bool { return false }
	}

	asynqRedis := r.NewAsynqRedisOptions(redisOpt)

	scheduler := asynq.NewScheduler(asynqRedis, &asynq.SchedulerOpts{
		Location: time.UTC,
		LogLevel: asynq.WarnLevel,
	})

	// One run at a time per process; the run lock covers other processes
	server := asynq.NewServer(asynqRedis, asynq.Config{
		Queues: map[string]int{
			redisCfg.PrefixQueue(QueueName): 1,
		},
		Concurrency:     1,
		ShutdownTimeout: cfg.ShutdownTimeout,
		LogLevel:        asynq.WarnLevel,
	})

	return &service{
		log:       log.WithField("service", "scheduler"),
		cfg:       cfg,
		redisCfg:  redisCfg,
		redis:     redis.NewClient(redisOpt),
		run:       run,
		permanent: permanent,
		scheduler: scheduler,
		server:    server,
	}, nil
}

func (s *service) Start(_ context.Context) error {
	task := asynq.NewTask(TaskTypeIngest, nil)

	entryID, err := s.scheduler.Register(s.cfg.Cron, task,
		asynq.Queue(s.redisCfg.PrefixQueue(QueueName)),
		asynq.MaxRetry(s.cfg.MaxRetry),
		asynq.Timeout(s.cfg.TaskTimeout),
		asynq.Unique(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("failed to register %s with schedule %s: %w", TaskTypeIngest, s.cfg.Cron, err)
	}

	s.log.WithFields(logrus.Fields{
		"task_type": TaskTypeIngest,
		"schedule":  s.cfg.Cron,
		"entry_id":  entryID,
	}).Info("Registered scheduled ingest")

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeIngest, s.HandleIngest)

	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("failed to start task server: %w", err)
	}

	if err := s.scheduler.Start(); err != nil {
		s.server.Shutdown()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// HandleIngest runs one invocation under the run lock
func (s *service) HandleIngest(ctx context.Context, _ *asynq.Task) error {
	runID := uuid.New().String()
	log := s.log.WithField("run_id", runID)

	lock := NewRunLock(s.log, s.redis, s.redisCfg.PrefixKey(lockKey), s.cfg.LockTTL)
	if err := lock.Acquire(ctx); err != nil {
		if errors.Is(err, ErrLockHeld) {
			log.Warn("Skipping scheduled run, previous run still active")
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := lock.Release(releaseCtx); err != nil {
			log.WithError(err).Warn("Failed to release run lock")
		}
	}()

	s.begin(runID)

	err := s.run(ctx, runID)

	s.finish(err)

	if err != nil {
		log.WithError(err).Error("Scheduled ingest failed")

		if s.permanent(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		return err
	}

	return nil
}

func (s *service) begin(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.RunID = runID
	s.status.StartedAt = time.Now().UTC()
	s.status.FinishedAt = time.Time{}
	s.status.Error = ""
	s.status.Running = true
}

func (s *service) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Running = false
	s.status.FinishedAt = time.Now().UTC()
	s.status.Runs++

	if err != nil {
		s.status.Failures++
		s.status.Error = err.Error()
	}
}

func (s *service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

func (s *service) Stop() error {
	s.log.Info("Stopping scheduler")

	s.scheduler.Shutdown()
	s.server.Shutdown()

	if err := s.redis.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close Redis client")
	}

	return nil
}

// Verify interface compliance at compile time
var _ Service = (*service)(nil)
