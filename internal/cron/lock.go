package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	internalRedis "booking/internal/redis"
)

// defaultCycleLockTTL stays under the one minute scheduler interval so a
// crashed instance costs at most one skipped sweep.
const defaultCycleLockTTL = 55 * time.Second

// CycleLock keeps two server instances from sweeping bookings at once.
type CycleLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SharedCycleLock holds one Redis key for the length of a scheduler cycle.
type SharedCycleLock struct {
	locker internalRedis.KeyLocker
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// NewSharedCycleLock builds the cross-instance lock for the scheduler.
func NewSharedCycleLock(locker internalRedis.KeyLocker, key string, ttl time.Duration) (*SharedCycleLock, error) {
	if locker == nil {
		return nil, errors.New("cycle lock needs a key locker")
	}
	if key == "" {
		return nil, errors.New("cycle lock key is empty")
	}
	if ttl <= 0 {
		ttl = defaultCycleLockTTL
	}
	return &SharedCycleLock{locker: locker, key: key, ttl: ttl}, nil
}

// Acquire reports whether this instance now runs the cycle.
func (l *SharedCycleLock) Acquire(ctx context.Context) (bool, error) {
	token, ok, err := l.locker.AcquireLock(ctx, l.key, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cycle lock %s: %w", l.key, err)
	}
	if ok {
		l.mu.Lock()
		l.token = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release drops the key if the token taken by Acquire still holds it. A key
// that expired and was taken by another instance is left alone.
func (l *SharedCycleLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == "" {
		return nil
	}
	if err := l.locker.ReleaseLock(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("release cycle lock %s: %w", l.key, err)
	}
	l.token = ""
	return nil
}
