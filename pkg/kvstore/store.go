// Package kvstore is the variable store holding run state between invocations
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Store is a minimal string key-value capability
type Store interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes the value with no expiry
	Set(ctx context.Context, key, value string) error
	// Close releases resources held by the store
	Close() error
}

// Prefixer namespaces keys
type Prefixer interface {
	PrefixKey(key string) string
}

type redisStore struct {
	log    logrus.FieldLogger
	redis  *redis.Client
	prefix Prefixer
}

// NewRedisStore creates a Redis-backed store. prefix may be nil.
func NewRedisStore(log logrus.FieldLogger, client *redis.Client, prefix Prefixer) Store {
	return &redisStore{
		log:    log.WithField("component", "kvstore"),
		redis:  client,
		prefix: prefix,
	}
}

func (r *redisStore) key(key string) string {
	if r.prefix == nil {
		return key
	}

	return r.prefix.PrefixKey(key)
}

func (r *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.redis.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.WithField("key", key).Debug("Key not set")
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return val, true, nil
}

func (r *redisStore) Set(ctx context.Context, key, value string) error {
	if err := r.redis.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	r.log.WithFields(logrus.Fields{
		"key":   key,
		"value": value,
	}).Debug("Stored value")

	return nil
}

func (r *redisStore) Close() error {
	if r.redis != nil {
		return r.redis.Close()
	}

	return nil
}

// Verify interface compliance at compile time
var _ Store = (*redisStore)(nil)
