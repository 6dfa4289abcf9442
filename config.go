package sessionguard

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/helix-chat/sessionguard/cache"
	"github.com/helix-chat/sessionguard/guard"
	"github.com/helix-chat/sessionguard/instrumentation"
	"github.com/helix-chat/sessionguard/security"
)

// Config holds the subsystem configuration
// Structured using composition so each component's knobs live together
type Config struct {
	// Session tunes the session store
	Session SessionConfig

	// RateLimit tunes request throttling
	RateLimit RateLimitConfig

	// Cache selects and tunes the cache backend
	Cache cache.Config

	// Security holds audit and hijack-detection settings
	Security SecurityConfig

	// Instrumentation configures OpenTelemetry metrics and tracing
	Instrumentation instrumentation.Config

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	// TTL is the session lifetime, renewed on every successful validation.
	// Default: 30 minutes.
	TTL time.Duration

	// InactivityThreshold is the idle time after which a session is dead
	// even before its TTL lapses. Default: 15 minutes.
	InactivityThreshold time.Duration

	// MaxSessionsPerUser caps concurrent sessions per user. Default: 5.
	MaxSessionsPerUser int

	// SweepInterval is how often dead sessions are reclaimed. Default: 5
	// minutes. Negative disables the background sweep.
	SweepInterval time.Duration

	// PersistPath is the JSON file backing the store across restarts.
	// Empty disables persistence.
	PersistPath string

	// PersistDebounce coalesces persistence writes. Default: 2 seconds.
	PersistDebounce time.Duration

	// EncryptionKey is the AES-256 key (32 bytes) for encrypting the
	// persistence file at rest. Nil persists plaintext JSON. Generate
	// with security.GenerateKey.
	EncryptionKey []byte
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Login is the policy applied per client IP to login attempts.
	Login security.Policy

	// Validation is the policy applied per client IP to validate and
	// refresh calls.
	Validation security.Policy

	// CleanupInterval throttles removal of stale window and block state.
	// Default: 5 minutes.
	CleanupInterval time.Duration

	// Disabled turns off throttling entirely. Only for tests and trusted
	// internal deployments.
	Disabled bool
}

// SecurityConfig holds audit settings
type SecurityConfig struct {
	// EnableAuditLogging enables security audit logging.
	// Logs logins, session events, and violations (sensitive data hashed).
	EnableAuditLogging bool
}

// applyDefaults fills zero-valued fields in place.
func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.RateLimit.Login.MaxRequests == 0 {
		c.RateLimit.Login = guard.DefaultLoginPolicy
	}
	if c.RateLimit.Validation.MaxRequests == 0 {
		c.RateLimit.Validation = guard.DefaultValidationPolicy
	}
	// Session and cache defaults are applied by their own constructors.
}

// FromEnv builds a Config from SESSIONGUARD_* environment variables. Unset
// variables keep their zero value and fall through to component defaults.
func FromEnv() *Config {
	cfg := &Config{
		Session: SessionConfig{
			TTL:                 envDuration("SESSIONGUARD_SESSION_TTL"),
			InactivityThreshold: envDuration("SESSIONGUARD_INACTIVITY_THRESHOLD"),
			MaxSessionsPerUser:  envInt("SESSIONGUARD_MAX_SESSIONS_PER_USER"),
			SweepInterval:       envDuration("SESSIONGUARD_SWEEP_INTERVAL"),
			PersistPath:         os.Getenv("SESSIONGUARD_PERSIST_PATH"),
			PersistDebounce:     envDuration("SESSIONGUARD_PERSIST_DEBOUNCE"),
		},
		RateLimit: RateLimitConfig{
			Login: security.Policy{
				MaxRequests:   envInt("SESSIONGUARD_LOGIN_MAX_REQUESTS"),
				Window:        envDuration("SESSIONGUARD_LOGIN_WINDOW"),
				MaxFailures:   envInt("SESSIONGUARD_LOGIN_MAX_FAILURES"),
				BlockDuration: envDuration("SESSIONGUARD_LOGIN_BLOCK_DURATION"),
			},
			Validation: security.Policy{
				MaxRequests:   envInt("SESSIONGUARD_VALIDATION_MAX_REQUESTS"),
				Window:        envDuration("SESSIONGUARD_VALIDATION_WINDOW"),
				MaxFailures:   envInt("SESSIONGUARD_VALIDATION_MAX_FAILURES"),
				BlockDuration: envDuration("SESSIONGUARD_VALIDATION_BLOCK_DURATION"),
			},
			CleanupInterval: envDuration("SESSIONGUARD_RATELIMIT_CLEANUP_INTERVAL"),
			Disabled:        envBool("SESSIONGUARD_RATELIMIT_DISABLED"),
		},
		Cache: cache.Config{
			Backend:       os.Getenv("SESSIONGUARD_CACHE_BACKEND"),
			DefaultTTL:    envDuration("SESSIONGUARD_CACHE_DEFAULT_TTL"),
			MaxEntries:    envInt("SESSIONGUARD_CACHE_MAX_ENTRIES"),
			SweepInterval: envDuration("SESSIONGUARD_CACHE_SWEEP_INTERVAL"),
		},
		Security: SecurityConfig{
			EnableAuditLogging: envBool("SESSIONGUARD_AUDIT_ENABLED"),
		},
		Instrumentation: instrumentation.Config{
			ServiceName:    os.Getenv("SESSIONGUARD_SERVICE_NAME"),
			ServiceVersion: os.Getenv("SESSIONGUARD_SERVICE_VERSION"),
			Enabled:        envBool("SESSIONGUARD_OTEL_ENABLED"),
		},
	}

	if raw := os.Getenv("SESSIONGUARD_ENCRYPTION_KEY"); raw != "" {
		if key, err := security.KeyFromBase64(raw); err == nil {
			cfg.Session.EncryptionKey = key
		}
	}

	cfg.Cache.Redis.Address = os.Getenv("SESSIONGUARD_REDIS_ADDRESS")
	cfg.Cache.Redis.Password = os.Getenv("SESSIONGUARD_REDIS_PASSWORD")
	cfg.Cache.Redis.DB = envInt("SESSIONGUARD_REDIS_DB")

	return cfg
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
