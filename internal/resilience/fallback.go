package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ourcaldo/indexnow-mono-sub007/pkg/sentinel"
)

// Source tags where a result came from so callers can always distinguish
// "fallback served" from "primary succeeded".
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Result wraps an operation outcome with its provenance.
type Result struct {
	Source Source
	Value  any
}

// Fallback executes a secondary strategy when the primary operation exhausts
// retries or the breaker is open. Err is the terminal primary error; the
// fallback may consult it or ignore it.
type Fallback interface {
	Execute(ctx context.Context, key string, primaryErr error) (any, error)
}

// StaticFallback serves a fixed default value.
type StaticFallback struct {
	Value any
}

func (f StaticFallback) Execute(context.Context, string, error) (any, error) {
	return f.Value, nil
}

// FallbackFunc adapts a plain function to the Fallback interface.
type FallbackFunc func(ctx context.Context, key string, primaryErr error) (any, error)

func (f FallbackFunc) Execute(ctx context.Context, key string, primaryErr error) (any, error) {
	return f(ctx, key, primaryErr)
}

const cacheKeyPrefix = "secureops:lkg:"

// CacheFallback serves the last known good value recorded for a key from
// Redis. The executor stores primary successes through Remember so a later
// outage can be bridged with slightly stale data.
type CacheFallback struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheFallback constructs a Redis-backed last-known-good cache.
func NewCacheFallback(client *redis.Client, ttl time.Duration) *CacheFallback {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CacheFallback{client: client, ttl: ttl}
}

// Remember stores a successful primary value for later fallback use.
// Best effort: a cache write failure never fails the operation.
func (f *CacheFallback) Remember(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal fallback value: %w", err)
	}
	return f.client.Set(ctx, cacheKeyPrefix+key, payload, f.ttl).Err()
}

// Execute returns the cached last-known-good value for key, or
// sentinel.ErrNotFound when nothing usable is cached.
func (f *CacheFallback) Execute(ctx context.Context, key string, _ error) (any, error) {
	raw, err := f.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fallback cache read: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("unmarshal fallback value: %w", err)
	}
	return value, nil
}
