package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/helix-chat/sessionguard/cache/memory"
	"github.com/helix-chat/sessionguard/cache/redis"
)

// Backend identifiers accepted in Config.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// NoExpiry is passed as the TTL to Set when an entry must never expire,
// overriding the configured default TTL.
const NoExpiry = time.Duration(-1)

// Store is the cache contract shared by all backends.
//
// The cache is an optimization, never a source of truth: backend failures on
// reads degrade to a miss and failures on writes report false. No method
// returns an error.
type Store interface {
	// Get returns the value for key, or ok=false when the key is absent,
	// expired, or the backend failed.
	Get(ctx context.Context, key string) (value string, ok bool)

	// Set stores value under key. A zero ttl applies the configured default
	// TTL; NoExpiry disables expiration for this entry.
	Set(ctx context.Context, key, value string, ttl time.Duration) bool

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) bool

	// Clear removes every entry owned by this store.
	Clear(ctx context.Context) bool

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) bool

	// Keys returns all keys matching the glob pattern ("*" matches all).
	Keys(ctx context.Context, pattern string) []string

	// Stop releases backend resources and halts background sweeps.
	Stop()
}

// Compile-time checks that both backends satisfy the contract
var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*redis.Store)(nil)
)

// Config selects and tunes the cache backend.
type Config struct {
	// Backend is "memory" (default) or "redis".
	Backend string

	// DefaultTTL applies to Set calls with a zero TTL. Zero means entries
	// never expire unless a per-call TTL is given.
	DefaultTTL time.Duration

	// MaxEntries bounds the memory backend. When an insert would exceed it,
	// the least recently accessed entry is evicted first. Default: 1000.
	MaxEntries int

	// SweepInterval is how often the memory backend purges expired entries
	// in the background. Default: 5 minutes.
	SweepInterval time.Duration

	// Redis configures the networked backend. Ignored unless Backend is
	// "redis".
	Redis redis.Config
}

// New builds the configured backend. When the redis backend is selected but
// unreachable, New logs a warning and falls back to the in-process backend
// instead of failing startup.
func New(cfg Config, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Backend == BackendRedis {
		rcfg := cfg.Redis
		rcfg.DefaultTTL = cfg.DefaultTTL
		if rcfg.Logger == nil {
			rcfg.Logger = logger
		}
		store, err := redis.New(rcfg)
		if err == nil {
			return store
		}
		logger.Warn("Redis cache unreachable, falling back to in-memory cache",
			"address", cfg.Redis.Address,
			"error", err)
	}

	return memory.New(memory.Config{
		MaxEntries:    cfg.MaxEntries,
		DefaultTTL:    cfg.DefaultTTL,
		SweepInterval: cfg.SweepInterval,
		Logger:        logger,
	})
}
