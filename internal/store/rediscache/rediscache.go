package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix          = "eventledger:idempotency:"
	pendingMarker      = `{"pending":true}`
	DefaultResponseTTL = 24 * time.Hour
	DefaultPendingTTL  = 30 * time.Second
)

// ErrInFlight reports that a request with the same key is still being processed.
var ErrInFlight = errors.New("idempotent request in flight")

// CachedResponse is the replayable outcome of a POST request.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Pending    bool            `json:"pending,omitempty"`
}

// Cache stores responses keyed by caller scope and Idempotency-Key.
type Cache struct {
	client      redis.Cmdable
	responseTTL time.Duration
	pendingTTL  time.Duration
}

// New returns a Cache. Non-positive TTLs select the defaults.
func New(client redis.Cmdable, responseTTL time.Duration, pendingTTL time.Duration) *Cache {
	if responseTTL <= 0 {
		responseTTL = DefaultResponseTTL
	}
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	return &Cache{client: client, responseTTL: responseTTL, pendingTTL: pendingTTL}
}

// Key builds the redis key of an idempotency key within a scope (usually the user id).
func Key(scope string, idempotencyKey string) string {
	return keyPrefix + scope + ":" + idempotencyKey
}

// Get returns the cached response, or nil on a miss.
func (cache *Cache) Get(ctx context.Context, key string) (*CachedResponse, error) {
	raw, err := cache.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	var response CachedResponse
	if err := json.Unmarshal([]byte(raw), &response); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &response, nil
}

// Reserve marks key as in flight. It returns the stored response when the key was
// already completed and ErrInFlight when another request still holds it.
func (cache *Cache) Reserve(ctx context.Context, key string) (*CachedResponse, error) {
	reserved, err := cache.client.SetNX(ctx, key, pendingMarker, cache.pendingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, nil
	}
	existing, err := cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.Pending {
		return nil, ErrInFlight
	}
	return existing, nil
}

// Save stores the final response for the response TTL.
func (cache *Cache) Save(ctx context.Context, key string, response CachedResponse) error {
	response.Pending = false
	encoded, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}
	if err := cache.client.Set(ctx, key, string(encoded), cache.responseTTL).Err(); err != nil {
		return fmt.Errorf("save idempotency key: %w", err)
	}
	return nil
}

// Release drops a reservation so the request can be retried.
func (cache *Cache) Release(ctx context.Context, key string) error {
	if err := cache.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
