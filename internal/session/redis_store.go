// Package session provides a Redis-backed surface-state store for deployments
// where several renderer processes share one surface. It persists the same
// per-surface fingerprint the SQLite store does, so either backend can sit
// behind the reconciliation controller.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a saved fingerprint survives without a refresh.
// Expiry is safe: a missing fingerprint only forces the next pass to rebuild.
const DefaultTTL = 24 * time.Hour

// RedisStore stores per-surface fingerprints in Redis under
// "surface:<id>:fp", each write refreshing the TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithTTL overrides the fingerprint expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// New connects to Redis at the given URL and verifies the connection.
func New(redisURL string, opts ...Option) (*RedisStore, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(parsed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(surfaceID string) string {
	return "surface:" + surfaceID + ":fp"
}

// LoadFingerprint returns the fingerprint for a surface, or "" when none is
// stored. Absence (never saved, expired, evicted) is not an error; an empty
// fingerprint never matches a computed one, so the next pass rebuilds.
func (s *RedisStore) LoadFingerprint(ctx context.Context, surfaceID string) (string, error) {
	fp, err := s.client.Get(ctx, s.key(surfaceID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load fingerprint: %w", err)
	}
	return fp, nil
}

// SaveFingerprint stores the fingerprint for a surface and resets its TTL.
func (s *RedisStore) SaveFingerprint(ctx context.Context, surfaceID, fingerprint string) error {
	if err := s.client.Set(ctx, s.key(surfaceID), fingerprint, s.ttl).Err(); err != nil {
		return fmt.Errorf("save fingerprint: %w", err)
	}
	return nil
}

// DeleteFingerprint forgets a surface. Deleting an unknown surface is a no-op.
func (s *RedisStore) DeleteFingerprint(ctx context.Context, surfaceID string) error {
	if err := s.client.Del(ctx, s.key(surfaceID)).Err(); err != nil {
		return fmt.Errorf("delete fingerprint: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
