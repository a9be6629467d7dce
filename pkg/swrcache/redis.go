package swrcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// RedisStore is a Store backed by Redis, for deployments where the cache is
// shared across processes. Entries are stored as JSON; version checks run
// inside WATCH transactions so concurrent writers keep CAS semantics.
type RedisStore struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
}

// NewRedisStore creates and connects a RedisStore. It pings the Redis server
// to ensure connectivity before returning.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
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

	return &RedisStore{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		ttl:         cfg.CacheTTL,
	}, nil
}

// Read returns the current entry for key. A redis.Nil error is a normal
// cache miss; any other error is a genuine problem.
func (s *RedisStore) Read(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Unexpected Redis error during read.")
		return Entry{}, false, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal cached entry: %w", err)
	}
	return entry, true, nil
}

// Write stores value under key inside a WATCH transaction so the version
// increment is not lost to a concurrent writer.
func (s *RedisStore) Write(ctx context.Context, key string, value any) (Entry, error) {
	var written Entry
	err := s.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.entryFromTx(ctx, tx, key)
		if err != nil {
			return err
		}
		written = Entry{Value: value, Version: current.Version + 1}
		return s.setInTx(ctx, tx, key, written)
	}, key)
	if err != nil {
		return Entry{}, fmt.Errorf("redis write for %q: %w", key, err)
	}
	return written, nil
}

// CompareAndSwap replaces the value only if the current version matches.
func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, expect int64, value any) (bool, error) {
	swapped := false
	err := s.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.entryFromTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Version == 0 || current.Version != expect {
			return nil
		}
		swapped = true
		return s.setInTx(ctx, tx, key, Entry{Value: value, Version: current.Version + 1})
	}, key)
	if err != nil {
		return false, fmt.Errorf("redis compare-and-swap for %q: %w", key, err)
	}
	return swapped, nil
}

// CompareAndDelete removes the entry only if the current version matches.
func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, expect int64) (bool, error) {
	deleted := false
	err := s.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.entryFromTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Version == 0 || current.Version != expect {
			return nil
		}
		deleted = true
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return false, fmt.Errorf("redis compare-and-delete for %q: %w", key, err)
	}
	return deleted, nil
}

// Invalidate marks the entry stale without bumping its version.
func (s *RedisStore) Invalidate(ctx context.Context, key string) error {
	err := s.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.entryFromTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if current.Version == 0 {
			return nil // Missing key, nothing to mark.
		}
		current.Stale = true
		return s.setInTx(ctx, tx, key, current)
	}, key)
	if err != nil {
		return fmt.Errorf("redis invalidate for %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.redisClient.Close()
}

func (s *RedisStore) entryFromTx(ctx context.Context, tx *redis.Tx, key string) (Entry, error) {
	raw, err := tx.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, nil
	}
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal cached entry: %w", err)
	}
	return entry, nil
}

func (s *RedisStore) setInTx(ctx context.Context, tx *redis.Tx, key string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, s.ttl)
		return nil
	})
	return err
}
