// Package cache defines the key-value cache contract shared by the session
// security subsystem and provides backend selection with failover.
//
// Two backends satisfy the same Store interface:
//   - cache/memory: bounded in-process store with true LRU eviction
//   - cache/redis: networked store backed by a Redis-compatible server
//
// Callers cannot distinguish backends by behavior, only by latency. Backend
// errors are never surfaced: reads degrade to a cache miss and writes report
// false, because the cache is an optimization rather than a source of truth.
//
// Example usage:
//
//	store := cache.New(cache.Config{
//		Backend:    cache.BackendRedis,
//		DefaultTTL: 10 * time.Minute,
//		Redis:      redis.Config{Address: "localhost:6379"},
//	}, logger)
//	defer store.Stop()
package cache
