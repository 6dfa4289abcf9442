// Package memory provides the in-process cache backend.
//
// Entries carry an optional TTL and the store is bounded: when an insert
// would exceed the configured maximum entry count, the least recently
// accessed entry is evicted first. Every Get refreshes recency, not just Set,
// so eviction order reflects true access patterns. Expired entries are purged
// lazily on access and eagerly by a background sweep.
package memory

import (
	"container/list"
	"context"
	"log/slog"
	"path"
	"sync"
	"time"
)

const (
	// DefaultMaxEntries bounds the store when no limit is configured
	DefaultMaxEntries = 1000

	// DefaultSweepInterval is how often expired entries are purged eagerly
	DefaultSweepInterval = 5 * time.Minute
)

// entry is a cached value with its expiry metadata.
// A zero expiresAt means the entry never expires.
type entry struct {
	key       string
	value     string
	createdAt time.Time
	expiresAt time.Time
}

// Config tunes the in-process backend.
type Config struct {
	// MaxEntries is the maximum number of entries held at once.
	// Default: DefaultMaxEntries.
	MaxEntries int

	// DefaultTTL applies to Set calls with a zero TTL. Zero disables
	// default expiration.
	DefaultTTL time.Duration

	// SweepInterval is how often the background sweep runs.
	// Default: DefaultSweepInterval. Negative disables the sweep loop.
	SweepInterval time.Duration

	// Logger is the optional structured logger (default: slog.Default()).
	Logger *slog.Logger

	// Now is the time source, injectable for tests. Default: time.Now.
	Now func() time.Time
}

// Store is the bounded LRU cache backend.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*list.Element // key -> element holding *entry
	lruList    *list.List               // front = most recently accessed
	maxEntries int
	defaultTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once

	// Statistics, guarded by mu
	hits      int64
	misses    int64
	evictions int64
}

// New creates an in-process cache backend and starts its background sweep.
func New(cfg Config) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Store{
		entries:       make(map[string]*list.Element),
		lruList:       list.New(),
		maxEntries:    cfg.MaxEntries,
		defaultTTL:    cfg.DefaultTTL,
		sweepInterval: cfg.SweepInterval,
		logger:        cfg.Logger,
		now:           cfg.Now,
		stopSweep:     make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go s.sweepLoop()
	}

	return s
}

// Get returns the value for key. Expired entries are purged on access and
// reported as a miss. A hit refreshes the entry's recency.
func (s *Store) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.entries[key]
	if !exists {
		s.misses++
		return "", false
	}

	e := elem.Value.(*entry)
	if s.expired(e) {
		s.removeElement(elem)
		s.misses++
		return "", false
	}

	s.lruList.MoveToFront(elem)
	s.hits++
	return e.value, true
}

// Set stores value under key. A zero ttl applies the configured default TTL;
// a negative ttl disables expiration for this entry.
func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) bool {
	now := s.now()

	var expiresAt time.Time
	switch {
	case ttl > 0:
		expiresAt = now.Add(ttl)
	case ttl == 0 && s.defaultTTL > 0:
		expiresAt = now.Add(s.defaultTTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.entries[key]; exists {
		e := elem.Value.(*entry)
		e.value = value
		e.createdAt = now
		e.expiresAt = expiresAt
		s.lruList.MoveToFront(elem)
		return true
	}

	if s.lruList.Len() >= s.maxEntries {
		s.evictLRU()
	}

	elem := s.lruList.PushFront(&entry{
		key:       key,
		value:     value,
		createdAt: now,
		expiresAt: expiresAt,
	})
	s.entries[key] = elem
	return true
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.entries[key]
	if !exists {
		return false
	}
	s.removeElement(elem)
	return true
}

// Clear removes every entry.
func (s *Store) Clear(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*list.Element)
	s.lruList.Init()
	return true
}

// Exists reports whether key is present and unexpired.
// Unlike Get, it does not refresh recency.
func (s *Store) Exists(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.entries[key]
	if !exists {
		return false
	}
	if s.expired(elem.Value.(*entry)) {
		s.removeElement(elem)
		return false
	}
	return true
}

// Keys returns all unexpired keys matching the glob pattern.
// "*" matches everything; other patterns follow path.Match syntax.
func (s *Store) Keys(_ context.Context, pattern string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key, elem := range s.entries {
		if s.expired(elem.Value.(*entry)) {
			continue
		}
		if pattern == "*" {
			keys = append(keys, key)
			continue
		}
		if matched, err := path.Match(pattern, key); err == nil && matched {
			keys = append(keys, key)
		}
	}
	return keys
}

// Stop halts the background sweep. The store remains usable afterwards.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopSweep)
	})
}

// Stats holds cache statistics for monitoring.
type Stats struct {
	Entries    int
	MaxEntries int
	Hits       int64
	Misses     int64
	Evictions  int64
}

// GetStats returns current cache statistics.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Entries:    len(s.entries),
		MaxEntries: s.maxEntries,
		Hits:       s.hits,
		Misses:     s.misses,
		Evictions:  s.evictions,
	}
}

// expired reports whether e's expiry has passed. Must be called with mu held.
func (s *Store) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

// removeElement drops an entry from both the map and the LRU list.
// Must be called with mu held.
func (s *Store) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(s.entries, e.key)
	s.lruList.Remove(elem)
}

// evictLRU removes the least recently accessed entry.
// Must be called with mu held.
func (s *Store) evictLRU() {
	elem := s.lruList.Back()
	if elem == nil {
		return
	}
	e := elem.Value.(*entry)
	s.removeElement(elem)
	s.evictions++

	s.logger.Debug("Cache LRU eviction",
		"key", e.key,
		"total_evictions", s.evictions,
		"current_entries", len(s.entries))
}

// sweepLoop periodically purges expired entries.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopSweep:
			return
		}
	}
}

// sweepExpired removes every entry whose expiry has passed.
func (s *Store) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	var next *list.Element
	for elem := s.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		if s.expired(elem.Value.(*entry)) {
			s.removeElement(elem)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Cache sweep completed",
			"removed", removed,
			"remaining", len(s.entries))
	}
}
