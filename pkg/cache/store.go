package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss signals that a key is absent from the cache.
var ErrMiss = errors.New("cache: miss")

// Store is a thin JSON codec over a Redis client. A nil Store is a
// no-op cache so services can run without Redis wired in.
type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client, prefix string) *Store {
	if client == nil {
		return nil
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Get unmarshals the cached value into dest. Returns ErrMiss when absent.
func (s *Store) Get(ctx context.Context, k string, dest any) error {
	if s == nil {
		return ErrMiss
	}

	raw, err := s.client.Get(ctx, s.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, dest)
}

// Set stores value as JSON under k with the given TTL.
func (s *Store) Set(ctx context.Context, k string, value any, ttl time.Duration) error {
	if s == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, s.key(k), raw, ttl).Err()
}

// Invalidate drops the given keys.
func (s *Store) Invalidate(ctx context.Context, keys ...string) error {
	if s == nil || len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}

	return s.client.Del(ctx, full...).Err()
}
