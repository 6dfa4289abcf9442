package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// Never put actual credentials or raw session IDs in traces. Traces are
// persisted, replicated, and readable by wider audiences than the service
// itself. Only metadata belongs here: hashed identifiers, outcomes,
// durations, and counts.
const (
	// Session attributes
	AttrUserHash      = "session.user_hash"     // Hashed username (non-reversible)
	AttrSessionPrefix = "session.id_prefix"     // First characters of the session ID
	AttrSessionCount  = "session.count"         // Sessions affected by an operation
	AttrValidationOK  = "session.validation_ok" // Whether validation succeeded
	AttrHijackFlag    = "session.hijack_flag"   // Whether a fingerprint mismatch was flagged

	// Security attributes
	AttrClientIP       = "security.client_ip"
	AttrRateLimited    = "security.rate_limited"
	AttrAuditEventType = "security.audit.event_type"

	// Cache attributes
	AttrCacheBackend = "cache.backend"
	AttrCacheHit     = "cache.hit"

	// Error attributes
	AttrErrorCode = "error.code"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddSessionAttributes adds session operation attributes to a span (nil-safe)
func AddSessionAttributes(span trace.Span, userHash, sessionPrefix string) {
	if userHash != "" {
		SetSpanAttributes(span, attribute.String(AttrUserHash, userHash))
	}
	if sessionPrefix != "" {
		SetSpanAttributes(span, attribute.String(AttrSessionPrefix, sessionPrefix))
	}
}

// AddValidationAttributes adds validation outcome attributes to a span (nil-safe)
func AddValidationAttributes(span trace.Span, valid, hijacked bool) {
	SetSpanAttributes(span,
		attribute.Bool(AttrValidationOK, valid),
		attribute.Bool(AttrHijackFlag, hijacked),
	)
}

// AddSecurityAttributes adds security attributes to a span (nil-safe)
//
// Client IP addresses may be PII; callers decide whether their deployment
// permits recording them.
func AddSecurityAttributes(span trace.Span, clientIP string) {
	if clientIP != "" {
		SetSpanAttributes(span, attribute.String(AttrClientIP, clientIP))
	}
}
