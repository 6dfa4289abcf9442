package instrumentation

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds all metric instruments for the session security subsystem
type Metrics struct {
	// Session lifecycle
	SessionsCreated metric.Int64Counter
	SessionsEnded   metric.Int64Counter
	SessionsEvicted metric.Int64Counter
	SessionsRefused metric.Int64Counter
	SessionsSwept   metric.Int64Counter
	ActiveSessions  metric.Int64ObservableGauge

	// Validation
	ValidationsTotal    metric.Int64Counter
	ValidationsRejected metric.Int64Counter
	HijacksFlagged      metric.Int64Counter

	// Facade
	LoginsTotal   metric.Int64Counter
	LoginFailures metric.Int64Counter
	LoginDuration metric.Float64Histogram

	// Rate limiting
	RateLimitRejected metric.Int64Counter

	// Cache
	CacheHits    metric.Int64Counter
	CacheMisses  metric.Int64Counter
	CacheEntries metric.Int64ObservableGauge

	// Persistence
	PersistFlushes metric.Int64Counter
	PersistErrors  metric.Int64Counter
}

// NewNop returns a metrics holder backed by no-op instruments. Safe to
// record against with zero overhead; used when instrumentation is not wired.
func NewNop() *Metrics {
	m, _ := newMetrics(noop.NewMeterProvider().Meter("sessionguard"))
	return m
}

// newMetrics creates and registers all metric instruments
func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.SessionsCreated, "sessionguard.sessions.created", "Sessions created by successful logins", "{session}"},
		{&m.SessionsEnded, "sessionguard.sessions.ended", "Sessions ended explicitly", "{session}"},
		{&m.SessionsEvicted, "sessionguard.sessions.evicted", "Inactive sessions evicted to enforce the per-user cap", "{session}"},
		{&m.SessionsRefused, "sessionguard.sessions.refused", "Session creations refused at the per-user cap", "{session}"},
		{&m.SessionsSwept, "sessionguard.sessions.swept", "Dead sessions reclaimed by the background sweep", "{session}"},
		{&m.ValidationsTotal, "sessionguard.validations.total", "Successful session validations", "{validation}"},
		{&m.ValidationsRejected, "sessionguard.validations.rejected", "Validations of absent, expired, or inactive sessions", "{validation}"},
		{&m.HijacksFlagged, "sessionguard.hijacks.flagged", "Fingerprint mismatches flagged on valid sessions", "{event}"},
		{&m.LoginsTotal, "sessionguard.logins.total", "Successful logins", "{login}"},
		{&m.LoginFailures, "sessionguard.logins.failures", "Failed login attempts", "{login}"},
		{&m.RateLimitRejected, "sessionguard.ratelimit.rejected", "Requests rejected by rate limiting or blocks", "{request}"},
		{&m.CacheHits, "sessionguard.cache.hits", "Cache hits on user record lookups", "{lookup}"},
		{&m.CacheMisses, "sessionguard.cache.misses", "Cache misses on user record lookups", "{lookup}"},
		{&m.PersistFlushes, "sessionguard.persist.flushes", "Session store persistence flushes", "{flush}"},
		{&m.PersistErrors, "sessionguard.persist.errors", "Session store persistence failures", "{error}"},
	}

	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(
			c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.LoginDuration, err = meter.Float64Histogram(
		"sessionguard.login.duration",
		metric.WithDescription("Login processing duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create login.duration histogram: %w", err)
	}

	m.ActiveSessions, err = meter.Int64ObservableGauge(
		"sessionguard.sessions.active",
		metric.WithDescription("Current number of live sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions.active gauge: %w", err)
	}

	m.CacheEntries, err = meter.Int64ObservableGauge(
		"sessionguard.cache.entries",
		metric.WithDescription("Current number of cache entries"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache.entries gauge: %w", err)
	}

	return m, nil
}
