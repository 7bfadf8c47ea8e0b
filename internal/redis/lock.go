package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const referenceLockPrefix = "lock:payment-ref:"

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireReferenceLock attempts to lock a payment gateway reference.
// Returns the owner token and true if the lock was acquired.
func (s *LockStore) AcquireReferenceLock(ctx context.Context, reference string, ttl time.Duration) (string, bool, error) {
	return s.AcquireLock(ctx, referenceLockPrefix+reference, ttl)
}

// ReleaseReferenceLock releases the reference lock if token still owns it.
func (s *LockStore) ReleaseReferenceLock(ctx context.Context, reference, token string) error {
	return s.ReleaseLock(ctx, referenceLockPrefix+reference, token)
}

// AcquireLock sets key to a fresh token if it is free.
func (s *LockStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

// ReleaseLock deletes key in one round trip if token still owns it.
func (s *LockStore) ReleaseLock(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	return releaseScript.Run(ctx, s.client, []string{key}, token).Err()
}
