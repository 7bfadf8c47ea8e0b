package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "idempotency:"

// IdempotencyStore keeps replayable responses for Idempotency-Key requests.
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Load returns the stored record for key. A missing key yields redis.Nil.
func (s *IdempotencyStore) Load(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, idempotencyPrefix+key).Result()
}

// Reserve stores marker under key only if nothing is stored yet.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, marker string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, idempotencyPrefix+key, marker, ttl).Result()
}

// Save overwrites key with the final record.
func (s *IdempotencyStore) Save(ctx context.Context, key, record string, ttl time.Duration) error {
	return s.client.Set(ctx, idempotencyPrefix+key, record, ttl).Err()
}

// Discard drops a reservation so the client can retry.
func (s *IdempotencyStore) Discard(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyPrefix+key).Err()
}
