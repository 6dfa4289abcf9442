// Package security provides the request-level protections of the session
// subsystem: per-identifier rate limiting with a temporary block list,
// client fingerprinting for hijack detection, and audit logging.
//
// # Rate Limiting
//
// The RateLimiter keeps an exact sliding window of request instants per
// identifier. On every check, instants older than the trailing window are
// dropped and the request is rejected once the remaining count reaches the
// policy's maximum, so bursts at window boundaries cannot slip through the
// way they do with fixed buckets. A separate block list rejects identifiers
// that accumulated too many failures before the window check runs.
//
// Example usage:
//
//	limiter := security.NewRateLimiter(logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow("ip:"+clientIP, loginPolicy) {
//	    // Rejected: blocked or over the sliding window
//	    return
//	}
//
// # Fingerprints
//
// A Fingerprint captures source IP, user agent, and coarse device/browser
// classes. Matches applies a tolerant comparison; a mismatch is an advisory
// hijack signal only and never revokes the session by itself.
//
// # Audit
//
// The Auditor emits structured security events over slog with usernames
// hashed and session IDs truncated, so audit trails stay useful without
// leaking credentials or full identifiers into logs.
package security
