package security

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// windowRetention is how long request instants are kept before cleanup
	// removes them regardless of any active window
	windowRetention = time.Hour

	// DefaultCleanupInterval throttles cleanup passes
	DefaultCleanupInterval = 5 * time.Minute
)

// Policy bundles the limits applied to one endpoint class. Distinct endpoint
// classes use distinct policies: login attempts allow far fewer requests per
// window than session-validation polling.
type Policy struct {
	// MaxRequests is the number of requests allowed per Window
	MaxRequests int

	// Window is the sliding-window length
	Window time.Duration

	// MaxFailures is the failure count that triggers a block
	MaxFailures int

	// BlockDuration is how long an identifier stays blocked
	BlockDuration time.Duration
}

// blockRecord tracks failures and an active block for one identifier.
type blockRecord struct {
	failureCount int
	blockedUntil time.Time // zero when never blocked
	lastFailure  time.Time
}

// RateLimiter throttles abusive clients per identifier (typically "ip:<addr>"
// or "user:<name>") using an exact sliding window plus a temporary block
// list. Unlike fixed time buckets, the sliding window recounts the trailing
// interval on every check, so no more than MaxRequests are ever accepted
// within any rolling window.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	blocks  map[string]*blockRecord
	logger  *slog.Logger
	now     func() time.Time

	cleanupGate     rate.Sometimes
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	// Statistics, guarded by mu
	totalRejected int64
	totalBlocks   int64
	totalCleanups int64
}

// RateLimiterConfig tunes the limiter.
type RateLimiterConfig struct {
	// CleanupInterval throttles cleanup passes (default 5 minutes)
	CleanupInterval time.Duration

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// Now is the time source, injectable for tests (default: time.Now)
	Now func() time.Time
}

// NewRateLimiter creates a rate limiter with default settings.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(RateLimiterConfig{Logger: logger})
}

// NewRateLimiterWithConfig creates a rate limiter and starts its background
// cleanup loop.
func NewRateLimiterWithConfig(cfg RateLimiterConfig) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	rl := &RateLimiter{
		windows:         make(map[string][]time.Time),
		blocks:          make(map[string]*blockRecord),
		logger:          cfg.Logger,
		now:             cfg.Now,
		cleanupGate:     rate.Sometimes{Interval: cfg.CleanupInterval},
		cleanupInterval: cfg.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow applies the full check ordering for one request: an active block is
// rejected before the sliding window runs, so blocked clients never consume
// window capacity. Returns false when the request must be rejected.
func (rl *RateLimiter) Allow(identifier string, p Policy) bool {
	if rl.IsBlocked(identifier) {
		return false
	}
	return !rl.IsRateLimited(identifier, p.MaxRequests, p.Window)
}

// IsRateLimited checks identifier against an exact sliding window: instants
// older than the window are dropped, and the request is rejected iff the
// remaining count has reached maxRequests. Accepted requests record their
// instant; rejected requests do not.
func (rl *RateLimiter) IsRateLimited(identifier string, maxRequests int, window time.Duration) bool {
	now := rl.now()
	cutoff := now.Add(-window)

	rl.mu.Lock()
	instants := rl.windows[identifier]

	// The slice is time-ordered, so find the first instant still inside
	// the trailing window and drop everything before it.
	keep := 0
	for keep < len(instants) && !instants[keep].After(cutoff) {
		keep++
	}
	instants = instants[keep:]

	limited := len(instants) >= maxRequests
	if limited {
		rl.totalRejected++
	} else {
		instants = append(instants, now)
	}

	if len(instants) == 0 {
		delete(rl.windows, identifier)
	} else {
		rl.windows[identifier] = instants
	}
	rl.mu.Unlock()

	if limited {
		rl.logger.Debug("Rate limit exceeded",
			"identifier", identifier,
			"max_requests", maxRequests,
			"window", window)
	}

	rl.Cleanup()
	return limited
}

// IsBlocked reports whether identifier has an active block.
func (rl *RateLimiter) IsBlocked(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, exists := rl.blocks[identifier]
	return exists && rec.blockedUntil.After(rl.now())
}

// RecordFailure increments the failure counter for identifier. Once the
// counter reaches maxFailures the identifier is blocked for blockDuration
// and the counter resets, so a fresh count starts after the block lapses.
func (rl *RateLimiter) RecordFailure(identifier string, maxFailures int, blockDuration time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	rec, exists := rl.blocks[identifier]
	if !exists {
		rec = &blockRecord{}
		rl.blocks[identifier] = rec
	}
	rec.failureCount++
	rec.lastFailure = now

	blocked := rec.failureCount >= maxFailures
	if blocked {
		rec.blockedUntil = now.Add(blockDuration)
		rec.failureCount = 0
		rl.totalBlocks++
	}
	rl.mu.Unlock()

	if blocked {
		rl.logger.Warn("Identifier blocked after repeated failures",
			"identifier", identifier,
			"max_failures", maxFailures,
			"blocked_for", blockDuration)
	}
}

// Cleanup removes window entries older than the retention horizon and block
// records whose block has lapsed. Throttled to run at most once per
// configured interval, so calling it on every check is cheap.
func (rl *RateLimiter) Cleanup() {
	rl.cleanupGate.Do(rl.cleanupNow)
}

func (rl *RateLimiter) cleanupNow() {
	now := rl.now()
	cutoff := now.Add(-windowRetention)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removedWindows := 0
	for identifier, instants := range rl.windows {
		keep := 0
		for keep < len(instants) && !instants[keep].After(cutoff) {
			keep++
		}
		if keep == 0 {
			continue
		}
		if keep == len(instants) {
			delete(rl.windows, identifier)
			removedWindows++
		} else {
			rl.windows[identifier] = instants[keep:]
		}
	}

	removedBlocks := 0
	for identifier, rec := range rl.blocks {
		lapsed := rec.blockedUntil.IsZero() || !rec.blockedUntil.After(now)
		stale := rec.lastFailure.Before(cutoff)
		if lapsed && (rec.failureCount == 0 || stale) {
			delete(rl.blocks, identifier)
			removedBlocks++
		}
	}

	rl.totalCleanups++
	if removedWindows > 0 || removedBlocks > 0 {
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed_windows", removedWindows,
			"removed_blocks", removedBlocks,
			"remaining_windows", len(rl.windows),
			"remaining_blocks", len(rl.blocks))
	}
}

// cleanupLoop periodically reclaims idle state so identifiers that stop
// sending traffic do not leak memory.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupNow()
		case <-rl.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// RateLimiterStats holds limiter statistics for monitoring.
type RateLimiterStats struct {
	TrackedWindows int   // Identifiers with at least one recorded instant
	TrackedBlocks  int   // Identifiers with a block record
	TotalRejected  int64 // Requests rejected by the sliding window
	TotalBlocks    int64 // Blocks applied after repeated failures
	TotalCleanups  int64 // Cleanup passes completed
}

// GetStats returns current limiter statistics for monitoring and alerting.
func (rl *RateLimiter) GetStats() RateLimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return RateLimiterStats{
		TrackedWindows: len(rl.windows),
		TrackedBlocks:  len(rl.blocks),
		TotalRejected:  rl.totalRejected,
		TotalBlocks:    rl.totalBlocks,
		TotalCleanups:  rl.totalCleanups,
	}
}
