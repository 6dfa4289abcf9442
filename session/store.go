package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/helix-chat/sessionguard/instrumentation"
	"github.com/helix-chat/sessionguard/security"
)

const (
	// DefaultTTL is the session lifetime applied when none is configured.
	// Every successful validation renews it (sliding expiration).
	DefaultTTL = 30 * time.Minute

	// DefaultInactivityThreshold marks sessions with no activity for this
	// long as logically dead
	DefaultInactivityThreshold = 15 * time.Minute

	// DefaultMaxSessionsPerUser caps concurrent sessions per user
	DefaultMaxSessionsPerUser = 5

	// DefaultSweepInterval is how often the background sweep reclaims dead
	// sessions
	DefaultSweepInterval = 5 * time.Minute
)

// ErrTooManySessions is returned by Create when the user holds the session
// cap and every held session is still alive. Live sessions are never
// silently evicted to make room; dead ones (expired or inactive) are.
var ErrTooManySessions = errors.New("too many active sessions for user")

// Config tunes the session store.
type Config struct {
	// TTL is the session lifetime (default 30 minutes)
	TTL time.Duration

	// InactivityThreshold is the idle time after which a session is
	// logically dead (default 15 minutes)
	InactivityThreshold time.Duration

	// MaxSessionsPerUser caps concurrent sessions per user (default 5)
	MaxSessionsPerUser int

	// SweepInterval is how often dead sessions are reclaimed in the
	// background (default 5 minutes). Negative disables the sweep loop.
	SweepInterval time.Duration

	// PersistPath is the JSON file backing the store. Empty disables
	// persistence.
	PersistPath string

	// PersistDebounce coalesces writes: mutations mark the store dirty and
	// the file is written once per quiet interval instead of per mutation
	// (default 2 seconds)
	PersistDebounce time.Duration

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// Now is the time source, injectable for tests (default: time.Now)
	Now func() time.Time

	// Metrics holds optional metric instruments updated by store
	// operations (default: no-op instruments)
	Metrics *instrumentation.Metrics

	// Encryptor optionally encrypts the persistence file at rest
	// (default: disabled, plaintext JSON)
	Encryptor *security.Encryptor
}

// Store is the authoritative map of active sessions. Sessions are indexed
// first by username, then by session ID, so per-user operations (count,
// evict, force logout) cost O(sessions-for-user); a reverse index keeps
// validation O(1) and guarantees global ID uniqueness.
//
// A username key exists iff the user holds at least one session; empty
// buckets are removed immediately.
type Store struct {
	mu    sync.Mutex
	users map[string]map[string]*Session // username -> sessionID -> session
	owner map[string]string              // sessionID -> username

	ttl                 time.Duration
	inactivityThreshold time.Duration
	maxSessionsPerUser  int
	logger              *slog.Logger
	now                 func() time.Time
	metrics             *instrumentation.Metrics

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once

	// Persistence; empty path disables
	persistPath     string
	persistDebounce time.Duration
	encryptor       *security.Encryptor
	dirty           chan struct{}
	stopPersist     chan struct{}
	persistDone     chan struct{}
}

// New creates a session store, loads any persisted state, and starts the
// background sweep and persistence loops. A corrupt or missing persistence
// file is treated as empty state, never a startup failure.
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = DefaultInactivityThreshold
	}
	if cfg.MaxSessionsPerUser <= 0 {
		cfg.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.PersistDebounce <= 0 {
		cfg.PersistDebounce = defaultPersistDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = instrumentation.NewNop()
	}
	if cfg.Encryptor == nil {
		cfg.Encryptor, _ = security.NewEncryptor(nil)
	}

	s := &Store{
		users:               make(map[string]map[string]*Session),
		owner:               make(map[string]string),
		ttl:                 cfg.TTL,
		inactivityThreshold: cfg.InactivityThreshold,
		maxSessionsPerUser:  cfg.MaxSessionsPerUser,
		logger:              cfg.Logger,
		now:                 cfg.Now,
		metrics:             cfg.Metrics,
		sweepInterval:       cfg.SweepInterval,
		stopSweep:           make(chan struct{}),
		persistPath:         cfg.PersistPath,
		persistDebounce:     cfg.PersistDebounce,
		encryptor:           cfg.Encryptor,
		dirty:               make(chan struct{}, 1),
		stopPersist:         make(chan struct{}),
		persistDone:         make(chan struct{}),
	}

	loaded := 0
	if s.persistPath != "" {
		loaded = s.load()
		go s.persistLoop()
	} else {
		close(s.persistDone)
	}

	if s.sweepInterval > 0 {
		go s.sweepLoop()
	}

	s.logger.Info("Session store initialized",
		"loaded_sessions", loaded,
		"ttl", s.ttl,
		"inactivity_threshold", s.inactivityThreshold,
		"max_sessions_per_user", s.maxSessionsPerUser,
		"persistence", s.persistPath != "")

	return s
}

// Create starts a session for username. When the user already holds the cap,
// the single least-recently-active dead session (expired or inactive) is
// evicted to make room; if every held session is still alive, Create refuses
// with ErrTooManySessions.
func (s *Store) Create(username string, fp security.Fingerprint) (*Session, error) {
	now := s.now()

	s.mu.Lock()
	bucket := s.users[username]
	if len(bucket) >= s.maxSessionsPerUser {
		evicted := s.evictDeadLocked(username, bucket, now)
		if evicted == "" {
			s.mu.Unlock()
			s.metrics.SessionsRefused.Add(context.Background(), 1)
			return nil, ErrTooManySessions
		}
		s.logger.Info("Evicted dead session to make room",
			"username_hash", hashUser(username),
			"session_id", shortID(evicted))
	}

	id := newSessionID()
	for _, taken := s.owner[id]; taken; _, taken = s.owner[id] {
		id = newSessionID()
	}

	sess := &Session{
		ID:           id,
		Username:     username,
		CreatedAt:    now,
		ExpireTime:   now.Add(s.ttl),
		LastActivity: now,
		Fingerprint:  fp,
	}

	if s.users[username] == nil {
		s.users[username] = make(map[string]*Session)
	}
	s.users[username][id] = sess
	s.owner[id] = username
	s.mu.Unlock()

	s.markDirty()
	s.metrics.SessionsCreated.Add(context.Background(), 1)
	s.logger.Debug("Session created",
		"username_hash", hashUser(username),
		"session_id", shortID(id),
		"expire_time", sess.ExpireTime)

	copied := *sess
	return &copied, nil
}

// Validate checks a session and, when it is alive, renews it: the expiry
// slides to now+TTL and last activity is touched. Absent, expired, and
// inactive sessions all report the same invalid result. A supplied
// fingerprint is compared against the one captured at creation; a mismatch
// sets Hijacked without revoking the session.
func (s *Store) Validate(sessionID string, fp security.Fingerprint) Validation {
	now := s.now()

	s.mu.Lock()
	username, exists := s.owner[sessionID]
	if !exists {
		s.mu.Unlock()
		s.metrics.ValidationsRejected.Add(context.Background(), 1)
		return Validation{}
	}

	sess := s.users[username][sessionID]
	if sess.dead(s.inactivityThreshold, now) {
		s.removeLocked(sessionID, username)
		s.mu.Unlock()
		s.markDirty()
		s.metrics.ValidationsRejected.Add(context.Background(), 1)
		return Validation{}
	}

	sess.ExpireTime = now.Add(s.ttl)
	sess.LastActivity = now

	hijacked := !fp.IsZero() && !sess.Fingerprint.IsZero() && !sess.Fingerprint.Matches(fp)
	result := Validation{
		Valid:      true,
		Username:   username,
		ExpireTime: sess.ExpireTime,
		Hijacked:   hijacked,
	}
	s.mu.Unlock()

	s.markDirty()
	s.metrics.ValidationsTotal.Add(context.Background(), 1)
	if hijacked {
		s.metrics.HijacksFlagged.Add(context.Background(), 1)
		s.logger.Warn("Session fingerprint mismatch",
			"username_hash", hashUser(username),
			"session_id", shortID(sessionID),
			"observed_ip", fp.IP)
	}

	return result
}

// End removes one session. Idempotent: ending an already-gone session
// reports false.
func (s *Store) End(sessionID string) bool {
	s.mu.Lock()
	username, exists := s.owner[sessionID]
	if !exists {
		s.mu.Unlock()
		return false
	}
	s.removeLocked(sessionID, username)
	s.mu.Unlock()

	s.markDirty()
	s.metrics.SessionsEnded.Add(context.Background(), 1)
	s.logger.Debug("Session ended",
		"username_hash", hashUser(username),
		"session_id", shortID(sessionID))
	return true
}

// EndAllForUser removes every session held by username and returns how many
// were removed. Used by force logout and by credential changes, which must
// invalidate all prior sessions.
func (s *Store) EndAllForUser(username string) int {
	s.mu.Lock()
	bucket := s.users[username]
	count := len(bucket)
	for id := range bucket {
		delete(s.owner, id)
	}
	delete(s.users, username)
	s.mu.Unlock()

	if count > 0 {
		s.markDirty()
		s.metrics.SessionsEnded.Add(context.Background(), int64(count))
		s.logger.Info("Ended all sessions for user",
			"username_hash", hashUser(username),
			"count", count)
	}
	return count
}

// SweepExpired removes every session whose expiry has passed or whose last
// activity predates the inactivity threshold. This is the only path that
// reclaims sessions nobody is actively validating. Returns the number
// removed.
func (s *Store) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	removed := 0
	for username, bucket := range s.users {
		for id, sess := range bucket {
			if sess.dead(s.inactivityThreshold, now) {
				s.removeLocked(id, username)
				removed++
			}
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.markDirty()
		s.metrics.SessionsSwept.Add(context.Background(), int64(removed))
		s.logger.Info("Swept dead sessions", "removed", removed)
	}
	return removed
}

// CountActive returns the number of live sessions, sweeping dead ones first
// so the count never includes sessions that are already logically dead.
func (s *Store) CountActive() int {
	s.SweepExpired()

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owner)
}

// ListForUser returns a read-only view of username's live sessions.
func (s *Store) ListForUser(username string) []Info {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.users[username]
	infos := make([]Info, 0, len(bucket))
	for id, sess := range bucket {
		if sess.dead(s.inactivityThreshold, now) {
			continue
		}
		infos = append(infos, Info{
			SessionID:    id,
			CreatedAt:    sess.CreatedAt,
			ExpireTime:   sess.ExpireTime,
			LastActivity: sess.LastActivity,
			Fingerprint:  sess.Fingerprint,
		})
	}
	return infos
}

// ClearAll removes every session. Administrative nuke.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.users = make(map[string]map[string]*Session)
	s.owner = make(map[string]string)
	s.mu.Unlock()

	s.markDirty()
	s.logger.Warn("All sessions cleared")
}

// Stop halts the background loops and flushes any pending persistence write.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopSweep)
		if s.persistPath != "" {
			close(s.stopPersist)
		}
	})
	<-s.persistDone
}

// evictDeadLocked removes the least-recently-active dead session in bucket.
// A session counts as dead when it has expired or gone inactive; an expired
// session is reclaimable even while its last activity is recent. Returns the
// evicted session ID, or "" when every session is still alive. Must be
// called with mu held.
func (s *Store) evictDeadLocked(username string, bucket map[string]*Session, now time.Time) string {
	var victim *Session
	for _, sess := range bucket {
		if !sess.dead(s.inactivityThreshold, now) {
			continue
		}
		if victim == nil || sess.LastActivity.Before(victim.LastActivity) {
			victim = sess
		}
	}
	if victim == nil {
		return ""
	}
	s.removeLocked(victim.ID, username)
	s.metrics.SessionsEvicted.Add(context.Background(), 1)
	return victim.ID
}

// removeLocked drops a session from both indexes and removes the user
// bucket when it becomes empty. Must be called with mu held.
func (s *Store) removeLocked(sessionID, username string) {
	delete(s.owner, sessionID)
	bucket := s.users[username]
	delete(bucket, sessionID)
	if len(bucket) == 0 {
		delete(s.users, username)
	}
}

// sweepLoop periodically reclaims dead sessions.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepExpired()
		case <-s.stopSweep:
			return
		}
	}
}

// hashUser hashes a username for logging so audit trails never carry the
// raw principal.
func hashUser(username string) string {
	if username == "" {
		return "<empty>"
	}
	sum := sha256.Sum256([]byte(username))
	return hex.EncodeToString(sum[:])[:16]
}

// shortID truncates a session ID for logging without panicking.
func shortID(id string) string {
	const logLength = 8
	if len(id) <= logLength {
		return id
	}
	return id[:logLength]
}
