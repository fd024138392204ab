package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	// ErrLockHeld is returned when another invocation owns the run lock
	ErrLockHeld = errors.New("another ingest run holds the lock")
)

// releaseScript deletes the key only while we still own it
//
//nolint:gochecknoglobals // Compiled once
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only while we still own it
//
//nolint:gochecknoglobals // Compiled once
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RunLock keeps ingest invocations for one dataset from overlapping.
// The lease is renewed in the background until Release.
type RunLock struct {
	log   logrus.FieldLogger
	redis *redis.Client
	key   string
	ttl   time.Duration
	token string

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRunLock creates a lock on key with the given lease
func NewRunLock(log logrus.FieldLogger, client *redis.Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{
		log:   log.WithField("component", "run_lock"),
		redis: client,
		key:   key,
		ttl:   ttl,
		token: uuid.New().String(),
	}
}

// Acquire takes the lock or returns ErrLockHeld
func (l *RunLock) Acquire(ctx context.Context) error {
	ok, err := l.redis.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}

	if !ok {
		owner, _ := l.redis.Get(ctx, l.key).Result()
		l.log.WithField("owner", owner).Warn("Run lock is held by another instance")

		return ErrLockHeld
	}

	l.mu.Lock()
	l.stop = make(chan struct{})
	l.mu.Unlock()

	l.wg.Add(1)
	go l.renew()

	l.log.WithFields(logrus.Fields{
		"key":   l.key,
		"token": l.token,
		"ttl":   l.ttl,
	}).Debug("Acquired run lock")

	return nil
}

func (l *RunLock) renew() {
	defer l.wg.Done()

	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			owned, err := l.extend(ctx)
			cancel()

			if err != nil {
				l.log.WithError(err).Warn("Failed to renew run lock")
			} else if !owned {
				l.log.WithField("key", l.key).Warn("Run lock lost before renewal")
			}
		}
	}
}

// extend resets the lease to ttl and reports whether the lock was still ours
func (l *RunLock) extend(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.redis, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to renew run lock: %w", err)
	}

	return n == 1, nil
}

// Release stops renewal and deletes the key if we still own it
func (l *RunLock) Release(ctx context.Context) error {
	l.mu.Lock()
	if l.stop != nil {
		close(l.stop)
		l.stop = nil
	}
	l.mu.Unlock()

	l.wg.Wait()

	if err := releaseScript.Run(ctx, l.redis, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}

	l.log.WithField("key", l.key).Debug("Released run lock")

	return nil
}
