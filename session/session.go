package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/helix-chat/sessionguard/security"
)

// Session binds an opaque identifier to an authenticated principal for a
// bounded time. Instances handed out by the store are copies; only the store
// mutates session state.
type Session struct {
	ID           string
	Username     string
	CreatedAt    time.Time
	ExpireTime   time.Time
	LastActivity time.Time
	Fingerprint  security.Fingerprint
}

// expired reports whether the session's expiry has passed.
func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpireTime)
}

// inactive reports whether the session's last activity predates the
// inactivity threshold.
func (s *Session) inactive(threshold time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivity) > threshold
}

// dead reports whether the session is logically dead: expired or inactive.
// Dead sessions may still sit in the map until a sweep or access reclaims
// them.
func (s *Session) dead(inactivityThreshold time.Duration, now time.Time) bool {
	return s.expired(now) || s.inactive(inactivityThreshold, now)
}

// Validation is the result of validating a session.
type Validation struct {
	// Valid reports whether the session exists and is alive. The reason for
	// an invalid result (absent, expired, inactive) is deliberately not
	// exposed to avoid enumeration.
	Valid bool

	// Username is the owning principal. Set only when Valid.
	Username string

	// ExpireTime is the renewed expiry. Set only when Valid.
	ExpireTime time.Time

	// Hijacked reports a fingerprint mismatch on an otherwise valid
	// session. Advisory only: the session is not revoked.
	Hijacked bool
}

// Info is a read-only view of one session, returned by ListForUser.
type Info struct {
	SessionID    string               `json:"session_id"`
	CreatedAt    time.Time            `json:"created_at"`
	ExpireTime   time.Time            `json:"expire_time"`
	LastActivity time.Time            `json:"last_activity"`
	Fingerprint  security.Fingerprint `json:"fingerprint"`
}

// newSessionID returns a fresh opaque session identifier: 128 random bits
// rendered as a UUID string. IDs are never reused.
func newSessionID() string {
	return uuid.NewString()
}
