package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Username  string
	SessionID string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"username_hash", hashForLogging(event.Username),
		"session_id", safeTruncateID(event.SessionID),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLogin logs a successful login and the session it created
func (a *Auditor) LogLogin(username, sessionID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "login",
		Username:  username,
		SessionID: sessionID,
		IPAddress: ipAddress,
	})
}

// LogLoginFailure logs a failed login attempt
func (a *Auditor) LogLoginFailure(username, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      "login_failure",
		Username:  username,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogSessionEnded logs an explicit logout
func (a *Auditor) LogSessionEnded(username, sessionID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "session_ended",
		Username:  username,
		SessionID: sessionID,
		IPAddress: ipAddress,
	})
}

// LogSessionEvicted logs a capacity-based session eviction
func (a *Auditor) LogSessionEvicted(username, sessionID string) {
	a.LogEvent(Event{
		Type:      "session_evicted",
		Username:  username,
		SessionID: sessionID,
	})
}

// LogHijackSuspected logs a fingerprint mismatch on an otherwise valid
// session. The signal is advisory; the session stays alive.
func (a *Auditor) LogHijackSuspected(username, sessionID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "hijack_suspected",
		Username:  username,
		SessionID: sessionID,
		IPAddress: ipAddress,
	})
}

// LogForceLogout logs the termination of all sessions for a user
func (a *Auditor) LogForceLogout(username string, ended int, reason string) {
	a.LogEvent(Event{
		Type:     "force_logout",
		Username: username,
		Details: map[string]any{
			"sessions_ended": ended,
			"reason":         reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, username string) {
	a.LogEvent(Event{
		Type:      "rate_limit_exceeded",
		Username:  username,
		IPAddress: ipAddress,
	})
}

// LogIdentifierBlocked logs a block applied after repeated failures
func (a *Auditor) LogIdentifierBlocked(identifier string, blockedFor time.Duration) {
	a.LogEvent(Event{
		Type: "identifier_blocked",
		Details: map[string]any{
			"identifier":  identifier,
			"blocked_for": blockedFor.String(),
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}

// safeTruncateID shortens an identifier for logging without panicking.
// Eight characters is enough uniqueness for debugging while keeping full
// session IDs out of logs.
func safeTruncateID(id string) string {
	const logLength = 8
	if len(id) <= logLength {
		return id
	}
	return id[:logLength]
}
