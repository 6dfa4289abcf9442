// Package redis provides the networked cache backend, speaking to any
// Redis-compatible server. It satisfies the same contract as cache/memory;
// callers cannot distinguish the two except by latency.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix namespaces all keys owned by this store
	DefaultKeyPrefix = "sg:"

	// DefaultOpTimeout bounds every backend operation so a slow server
	// degrades to a miss instead of stalling the caller
	DefaultOpTimeout = 500 * time.Millisecond

	// connectVerifyTimeout is the timeout for initial connection verification
	connectVerifyTimeout = 2 * time.Second

	// scanBatchSize is the number of keys fetched per SCAN iteration
	scanBatchSize = 100
)

// Config holds configuration for the networked cache backend.
type Config struct {
	// Address is the server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "sg:")
	KeyPrefix string

	// DefaultTTL applies to Set calls with a zero TTL. Zero disables
	// default expiration.
	DefaultTTL time.Duration

	// OpTimeout bounds each backend operation (default 500ms)
	OpTimeout time.Duration

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is the Redis-backed cache implementation.
type Store struct {
	client     *goredis.Client
	prefix     string
	defaultTTL time.Duration
	opTimeout  time.Duration
	logger     *slog.Logger
}

// New creates a networked cache backend and verifies the connection.
// Returns an error if the server is unreachable, so the caller can fail
// over to the in-process backend.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectVerifyTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to Redis cache",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:     client,
		prefix:     prefix,
		defaultTTL: cfg.DefaultTTL,
		opTimeout:  opTimeout,
		logger:     logger,
	}, nil
}

// Get returns the value for key, or ok=false on absence, expiry, or any
// backend error. Errors are logged and degrade to a miss.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logger.Debug("Redis get failed, treating as miss", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

// Set stores value under key. A zero ttl applies the configured default TTL;
// a negative ttl stores the entry without expiration.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	expiration := ttl
	switch {
	case ttl == 0:
		expiration = s.defaultTTL
	case ttl < 0:
		expiration = 0
	}

	if err := s.client.Set(ctx, s.prefix+key, value, expiration).Err(); err != nil {
		s.logger.Debug("Redis set failed", "key", key, "error", err)
		return false
	}
	return true
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) bool {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	removed, err := s.client.Del(ctx, s.prefix+key).Result()
	if err != nil {
		s.logger.Debug("Redis delete failed", "key", key, "error", err)
		return false
	}
	return removed > 0
}

// Clear removes every key owned by this store. Only keys under the
// configured prefix are touched, never the whole database.
func (s *Store) Clear(ctx context.Context) bool {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatchSize).Result()
		if err != nil {
			s.logger.Debug("Redis clear scan failed", "error", err)
			return false
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				s.logger.Debug("Redis clear delete failed", "error", err)
				return false
			}
		}
		cursor = next
		if cursor == 0 {
			return true
		}
	}
}

// Exists reports whether key is present. Backend errors degrade to false.
func (s *Store) Exists(ctx context.Context, key string) bool {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		s.logger.Debug("Redis exists failed, treating as miss", "key", key, "error", err)
		return false
	}
	return n > 0
}

// Keys returns all keys matching the glob pattern, with the store prefix
// stripped. Backend errors return an empty slice.
func (s *Store) Keys(ctx context.Context, pattern string) []string {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+pattern, scanBatchSize).Result()
		if err != nil {
			s.logger.Debug("Redis keys scan failed", "error", err)
			return nil
		}
		for _, k := range batch {
			keys = append(keys, k[len(s.prefix):])
		}
		cursor = next
		if cursor == 0 {
			return keys
		}
	}
}

// Stop closes the client connection.
func (s *Store) Stop() {
	s.client.Close()
	s.logger.Info("Redis cache connection closed")
}

// opContext bounds an operation with the configured timeout so a slow or
// unreachable server never stalls session validation.
func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
