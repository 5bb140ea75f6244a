package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
)

var (
	// ErrLockNotAcquired is returned when the lock stays held past the retry budget.
	ErrLockNotAcquired = apperrors.New(apperrors.ErrCodeConflict, "failed to acquire lock")
	// ErrLockNotHeld is returned when unlocking a lock this owner does not hold.
	ErrLockNotHeld = apperrors.New(apperrors.ErrCodeConflict, "lock not held by this owner")
)

// SchedulerCycleLock names the lock that keeps scheduler cycles from running
// concurrently across worker replicas.
const SchedulerCycleLock = "prediction:cycle"

// DistributedLock is a TTL-guarded mutual exclusion primitive.
type DistributedLock interface {
	Lock(ctx context.Context) error
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
}

// LockFactory hands out named locks.
type LockFactory interface {
	NewMutex(name string, opts ...LockOption) DistributedLock
}

// LockOption customizes a lock.
type LockOption func(*lockConfig)

// WithLockTTL sets the hold TTL.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

// WithRetryDelay sets the spin delay between acquisition attempts.
func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

// WithRetryCount sets the acquisition attempt budget.
func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

type lockConfig struct {
	ttl        time.Duration
	retryDelay time.Duration
	retryCount int
}

type lockFactory struct {
	client *Client
	logger logging.Logger
}

// NewLockFactory builds the Redis-backed lock factory.
func NewLockFactory(client *Client, log logging.Logger) LockFactory {
	return &lockFactory{client: client, logger: log}
}

func (f *lockFactory) NewMutex(name string, opts ...LockOption) DistributedLock {
	cfg := lockConfig{
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
		retryCount: 30,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &mutex{
		client: f.client,
		key:    "cromkt:lock:" + name,
		value:  uuid.New().String(),
		config: cfg,
		logger: f.logger,
	}
}

// mutex is a single-holder lock.  The random value ties release and extension
// to the acquiring instance.
type mutex struct {
	client *Client
	key    string
	value  string
	config lockConfig
	logger logging.Logger
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (m *mutex) Lock(ctx context.Context) error {
	for i := 0; i < m.config.retryCount; i++ {
		ok, err := m.client.Underlying().SetNX(ctx, m.key, m.value, m.config.ttl).Result()
		if err != nil && err != redis.Nil {
			return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to set lock key")
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

func (m *mutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := m.client.Underlying().SetNX(ctx, m.key, m.value, m.config.ttl).Result()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to set lock key")
	}
	return ok, nil
}

func (m *mutex) Unlock(ctx context.Context) error {
	res, err := unlockScript.Run(ctx, m.client.Underlying(), []string{m.key}, m.value).Result()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to release lock")
	}
	if res.(int64) == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (m *mutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, m.client.Underlying(), []string{m.key}, m.value, ttl.Milliseconds()).Result()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeDatabaseError, "failed to extend lock")
	}
	return res.(int64) == 1, nil
}
