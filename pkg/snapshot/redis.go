package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStoreConfig holds the configuration for the Redis-backed store.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces this store's keys within the Redis keyspace.
	KeyPrefix string
	// TTL is the client-side freshness window. Defaults to DefaultTTL.
	// Redis entries are additionally expired server-side at twice this
	// value purely as garbage collection; validity is always judged
	// lazily by the client against the stored timestamp.
	TTL time.Duration
}

// RedisStore is a Store backed by Redis, for clients that want a warm
// snapshot cache shared across process restarts. Entries are stored as
// JSON alongside their fetch timestamp; TTL validity remains a lazy,
// client-side check so the contract matches MemoryStore exactly.
type RedisStore[T any] struct {
	client    *redis.Client
	logger    zerolog.Logger
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

// NewRedisStore creates and connects a new RedisStore. It pings the Redis
// server to ensure connectivity before returning.
func NewRedisStore[T any](ctx context.Context, cfg RedisStoreConfig, logger zerolog.Logger) (*RedisStore[T], error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "stocksync:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisStore[T]{
		client:    rdb,
		logger:    logger.With().Str("component", "RedisStore").Logger(),
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		now:       time.Now,
	}, nil
}

func (s *RedisStore[T]) redisKey(key Key) string {
	return s.keyPrefix + key.String()
}

// Get retrieves the entry for a key, or ErrNotFound.
func (s *RedisStore[T]) Get(ctx context.Context, key Key) (Entry[T], error) {
	var zero Entry[T]
	stringKey := s.redisKey(key)

	raw, err := s.client.Get(ctx, stringKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrNotFound
		}
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Unexpected Redis error during get.")
		return zero, fmt.Errorf("redis get for %s: %w", stringKey, err)
	}

	var entry Entry[T]
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal cached entry.")
		return zero, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return entry, nil
}

// IsValid reports whether the entry's age is strictly inside the TTL window.
func (s *RedisStore[T]) IsValid(entry Entry[T]) bool {
	return s.now().Sub(entry.Timestamp) < s.ttl
}

// Set overwrites the entry for a key, stamping the current time.
func (s *RedisStore[T]) Set(ctx context.Context, key Key, data T) error {
	stringKey := s.redisKey(key)
	entry := Entry[T]{Data: data, Timestamp: s.now()}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to marshal entry for caching.")
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if err := s.client.Set(ctx, stringKey, jsonData, 2*s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to set entry in Redis.")
		return fmt.Errorf("redis set for %s: %w", stringKey, err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Stored snapshot in Redis.")
	return nil
}

// Invalidate removes every entry belonging to the given scope using a
// prefix scan, so all resource types for the scope are cleared together.
func (s *RedisStore[T]) Invalidate(ctx context.Context, scopeID string) error {
	pattern := s.keyPrefix + scopeID + ":*"
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan for scope %s: %w", scopeID, err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del for scope %s: %w", scopeID, err)
	}
	s.logger.Debug().Str("scope_id", scopeID).Int("keys", len(keys)).Msg("Invalidated scope entries.")
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore[T]) Close() error {
	if s.client != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.client.Close()
	}
	return nil
}
