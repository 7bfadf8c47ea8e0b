package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPaymentStatusTTL bounds how stale a cached snapshot can be when an
// invalidation is missed.
const DefaultPaymentStatusTTL = 30 * time.Second

const paymentStatusPrefix = "cache:payment-status:"

// CachedPaymentStatus is the status snapshot served to polling clients.
type CachedPaymentStatus struct {
	ID               string    `json:"id"`
	GatewayReference string    `json:"gateway_reference"`
	AccountNumber    string    `json:"account_number,omitempty"`
	BookingNumber    string    `json:"booking_number,omitempty"`
	Method           string    `json:"method"`
	Amount           string    `json:"amount"`
	Status           string    `json:"status"`
	ExpiresAt        time.Time `json:"expires_at"`
	PaidAt           time.Time `json:"paid_at"`
}

// CacheStore handles payment status caching in Redis.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultPaymentStatusTTL
	}
	return &CacheStore{client: client, ttl: ttl}
}

// GetPaymentStatus retrieves a snapshot by intent id or gateway reference.
// A cache miss returns nil, nil.
func (s *CacheStore) GetPaymentStatus(ctx context.Context, key string) (*CachedPaymentStatus, error) {
	data, err := s.client.Get(ctx, paymentStatusPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var status CachedPaymentStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetPaymentStatus stores the snapshot under both its id and gateway reference.
func (s *CacheStore) SetPaymentStatus(ctx context.Context, status *CachedPaymentStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, paymentStatusPrefix+status.ID, data, s.ttl)
	pipe.Set(ctx, paymentStatusPrefix+status.GatewayReference, data, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidatePaymentStatus removes cached snapshots for the given keys.
func (s *CacheStore) InvalidatePaymentStatus(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			prefixed = append(prefixed, paymentStatusPrefix+key)
		}
	}
	if len(prefixed) == 0 {
		return nil
	}
	return s.client.Del(ctx, prefixed...).Err()
}
