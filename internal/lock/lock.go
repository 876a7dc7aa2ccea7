package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"natrip-payments/internal/config"
)

// Locker serializes work on one key. The returned release must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// New returns a redis backed locker when REDIS_ADDR is configured and an
// in-process one otherwise.
func New(cfg *config.Config, log logrus.FieldLogger) (Locker, func() error) {
	if cfg.RedisAddr == "" {
		return NewLocal(), func() error { return nil }
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	log.WithField("addr", cfg.RedisAddr).Info("using redis order locks")
	return NewRedis(rdb, cfg.LockExpiry, log), rdb.Close
}

type entry struct {
	mu   sync.Mutex
	refs int
}

type local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewLocal returns a keyed mutex. Entries are dropped once nobody holds or
// waits on them.
func NewLocal() Locker {
	return &local{locks: make(map[string]*entry)}
}

func (l *local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// the goroutine still takes the lock; hand it straight back
		go func() {
			<-acquired
			l.unlock(key, e)
		}()
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { l.unlock(key, e) }) }, nil
}

func (l *local) unlock(key string, e *entry) {
	e.mu.Unlock()
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

type redisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	log    logrus.FieldLogger
}

func NewRedis(rdb *redis.Client, expiry time.Duration, log logrus.FieldLogger) Locker {
	pool := goredis.NewPool(rdb)
	return &redisLocker{rs: redsync.New(pool), expiry: expiry, log: log}
}

func (r *redisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	mutex := r.rs.NewMutex(
		"payment_order_lock:"+key,
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(64),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
				r.log.WithError(err).WithField("key", key).Warn("failed to release order lock")
			}
		})
	}, nil
}
