package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/helix-chat/sessionguard/cache"
	"github.com/helix-chat/sessionguard/instrumentation"
	"github.com/helix-chat/sessionguard/security"
	"github.com/helix-chat/sessionguard/session"
)

// Default endpoint-class policies. Login is tight; validation polling is
// loose because well-behaved clients validate on every request.
var (
	DefaultLoginPolicy = security.Policy{
		MaxRequests:   5,
		Window:        time.Minute,
		MaxFailures:   5,
		BlockDuration: 5 * time.Minute,
	}

	DefaultValidationPolicy = security.Policy{
		MaxRequests:   60,
		Window:        time.Minute,
		MaxFailures:   20,
		BlockDuration: time.Minute,
	}
)

// DefaultUserCacheTTL bounds how long cached user records stay fresh
const DefaultUserCacheTTL = 5 * time.Minute

// userCacheKeyPrefix namespaces user records inside the shared cache
const userCacheKeyPrefix = "user:"

// Config holds facade configuration.
type Config struct {
	// LoginPolicy rate-limits login attempts per client IP
	LoginPolicy security.Policy

	// ValidationPolicy rate-limits validate/refresh per client IP
	ValidationPolicy security.Policy

	// UserCacheTTL bounds cached user records (default 5 minutes)
	UserCacheTTL time.Duration
}

// Guard sequences the session store, rate limiter, cache, and validators
// into the operations a web layer calls. It owns no transport concerns:
// inputs are plain field sets and failures are typed *Error values.
type Guard struct {
	sessions    *session.Store
	credentials CredentialStore
	tokens      TokenIssuer
	limiter     *security.RateLimiter
	cache       cache.Store
	auditor     *security.Auditor
	metrics     *instrumentation.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	config      Config
}

// New creates a guard over the required collaborators. Rate limiter, cache,
// and auditor are optional and attached via setters.
func New(sessions *session.Store, credentials CredentialStore, config *Config, logger *slog.Logger) (*Guard, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := *config
	if cfg.LoginPolicy.MaxRequests == 0 {
		cfg.LoginPolicy = DefaultLoginPolicy
	}
	if cfg.ValidationPolicy.MaxRequests == 0 {
		cfg.ValidationPolicy = DefaultValidationPolicy
	}
	if cfg.UserCacheTTL <= 0 {
		cfg.UserCacheTTL = DefaultUserCacheTTL
	}

	return &Guard{
		sessions:    sessions,
		credentials: credentials,
		tokens:      RandomTokenIssuer{},
		metrics:     instrumentation.NewNop(),
		tracer:      tracenoop.NewTracerProvider().Tracer("guard"),
		logger:      logger,
		config:      cfg,
	}, nil
}

// SetRateLimiter attaches the rate limiter consulted before login and
// validation. Without one, no throttling is applied.
func (g *Guard) SetRateLimiter(rl *security.RateLimiter) {
	g.limiter = rl
}

// SetCache attaches the cache used for user record lookups.
func (g *Guard) SetCache(c cache.Store) {
	g.cache = c
}

// SetAuditor attaches the security auditor.
func (g *Guard) SetAuditor(a *security.Auditor) {
	g.auditor = a
}

// SetTokenIssuer replaces the default opaque-token issuer.
func (g *Guard) SetTokenIssuer(t TokenIssuer) {
	if t != nil {
		g.tokens = t
	}
}

// SetMetrics attaches metric instruments.
func (g *Guard) SetMetrics(m *instrumentation.Metrics) {
	if m != nil {
		g.metrics = m
	}
}

// SetTracer attaches the tracer used for login and validation spans.
func (g *Guard) SetTracer(t trace.Tracer) {
	if t != nil {
		g.tracer = t
	}
}

// LoginRequest carries the fields of one login attempt.
type LoginRequest struct {
	Username  string
	Password  string
	ClientIP  string
	UserAgent string
}

// LoginResult is a successful login.
type LoginResult struct {
	AccessToken string
	SessionID   string
	ExpireTime  time.Time
}

// Login validates input shape, throttles by client IP, verifies credentials,
// and creates a session. A capacity refusal surfaces as too_many_sessions,
// deliberately distinct from an authentication failure.
func (g *Guard) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "guard.Login")
	defer span.End()

	if !validUsername(req.Username) || !validPasswordInput(req.Password) {
		return nil, ErrInvalidRequest("username and password are required")
	}

	ipID := ipIdentifier(req.ClientIP)
	if !g.allow(ipID, g.config.LoginPolicy, req.ClientIP, req.Username) {
		return nil, ErrRateLimited()
	}

	ok, err := g.credentials.Verify(ctx, req.Username, req.Password)
	if err != nil {
		g.logger.Error("Credential verification failed", "error", err)
		return nil, ErrServerError("credential store unavailable")
	}
	if !ok {
		if g.limiter != nil {
			g.limiter.RecordFailure(ipID, g.config.LoginPolicy.MaxFailures, g.config.LoginPolicy.BlockDuration)
		}
		if g.auditor != nil {
			g.auditor.LogLoginFailure(req.Username, req.ClientIP, "bad_credentials")
		}
		g.metrics.LoginFailures.Add(ctx, 1)
		instrumentation.SetSpanError(span, "authentication failed")
		return nil, ErrInvalidCredentials()
	}

	fp := security.NewFingerprint(req.ClientIP, req.UserAgent)
	sess, err := g.sessions.Create(req.Username, fp)
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			return nil, ErrTooManySessions()
		}
		return nil, ErrServerError("failed to create session")
	}

	token, err := g.tokens.Issue(req.Username)
	if err != nil {
		// The session is unusable without its token; roll it back.
		g.sessions.End(sess.ID)
		g.logger.Error("Token issuance failed", "error", err)
		return nil, ErrServerError("failed to issue token")
	}

	g.cacheUser(ctx, req.Username)

	if g.auditor != nil {
		g.auditor.LogLogin(req.Username, sess.ID, req.ClientIP)
	}
	g.metrics.LoginsTotal.Add(ctx, 1)
	g.metrics.LoginDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	instrumentation.SetSpanSuccess(span)

	return &LoginResult{
		AccessToken: token,
		SessionID:   sess.ID,
		ExpireTime:  sess.ExpireTime,
	}, nil
}

// Validate checks a session, renewing it when alive. It never returns an
// error: malformed IDs, rate-limited callers, and dead sessions all report
// Valid=false. A hijack flag is surfaced to the caller without forcing
// logout.
func (g *Guard) Validate(ctx context.Context, sessionID, clientIP, userAgent string) session.Validation {
	_, span := g.tracer.Start(ctx, "guard.Validate")
	defer span.End()

	if !validSessionID(sessionID) {
		return session.Validation{}
	}
	if !g.allow(ipIdentifier(clientIP), g.config.ValidationPolicy, clientIP, "") {
		return session.Validation{}
	}

	result := g.sessions.Validate(sessionID, observedFingerprint(clientIP, userAgent))
	if result.Hijacked && g.auditor != nil {
		g.auditor.LogHijackSuspected(result.Username, sessionID, clientIP)
	}
	instrumentation.AddValidationAttributes(span, result.Valid, result.Hijacked)
	return result
}

// RefreshResult is a successful refresh.
type RefreshResult struct {
	ExpireTime time.Time
	Hijacked   bool
}

// Refresh renews a session like Validate but reports failure as an error,
// for callers that treat an invalid session as a hard stop.
func (g *Guard) Refresh(ctx context.Context, sessionID, clientIP, userAgent string) (*RefreshResult, error) {
	if !validSessionID(sessionID) {
		return nil, ErrInvalidRequest("malformed session id")
	}
	if !g.allow(ipIdentifier(clientIP), g.config.ValidationPolicy, clientIP, "") {
		return nil, ErrRateLimited()
	}

	result := g.sessions.Validate(sessionID, observedFingerprint(clientIP, userAgent))
	if !result.Valid {
		return nil, ErrInvalidSession()
	}
	if result.Hijacked && g.auditor != nil {
		g.auditor.LogHijackSuspected(result.Username, sessionID, clientIP)
	}

	return &RefreshResult{
		ExpireTime: result.ExpireTime,
		Hijacked:   result.Hijacked,
	}, nil
}

// Logout ends one session. Ending a session that is already gone reports
// session_not_found.
func (g *Guard) Logout(ctx context.Context, sessionID string) error {
	if !validSessionID(sessionID) {
		return ErrInvalidRequest("malformed session id")
	}
	if !g.sessions.End(sessionID) {
		return ErrSessionNotFound()
	}
	if g.auditor != nil {
		g.auditor.LogSessionEnded("", sessionID, "")
	}
	return nil
}

// ForceLogoutSelf resolves the caller's identity from their own session and
// ends every session of that user, including the one used to call. Returns
// the number of sessions ended.
func (g *Guard) ForceLogoutSelf(ctx context.Context, sessionID string) (int, error) {
	if !validSessionID(sessionID) {
		return 0, ErrInvalidRequest("malformed session id")
	}

	result := g.sessions.Validate(sessionID, security.Fingerprint{})
	if !result.Valid {
		return 0, ErrUnauthenticated()
	}

	count := g.sessions.EndAllForUser(result.Username)
	if g.auditor != nil {
		g.auditor.LogForceLogout(result.Username, count, "self")
	}
	return count, nil
}

// ForceLogoutUser ends every session of the target user. Admin membership
// of the caller must be established externally before this is reachable.
func (g *Guard) ForceLogoutUser(ctx context.Context, username string) (int, error) {
	if !validUsername(username) {
		return 0, ErrInvalidRequest("malformed username")
	}

	count := g.sessions.EndAllForUser(username)
	if g.auditor != nil {
		g.auditor.LogForceLogout(username, count, "admin")
	}
	return count, nil
}

// ChangePassword verifies the old password, sets the new one, and ends all
// of the user's sessions: changing credentials must not leave old sessions
// valid. Requires a credential store that implements PasswordChanger.
func (g *Guard) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if !validUsername(username) || !validPasswordInput(oldPassword) {
		return ErrInvalidRequest("username and password are required")
	}
	if !validNewPassword(newPassword) {
		return ErrInvalidRequest(fmt.Sprintf("new password must be %d-%d characters", minPasswordLength, maxPasswordLength))
	}

	changer, ok := g.credentials.(PasswordChanger)
	if !ok {
		return ErrServerError("credential store does not support password changes")
	}

	verified, err := g.credentials.Verify(ctx, username, oldPassword)
	if err != nil {
		g.logger.Error("Credential verification failed", "error", err)
		return ErrServerError("credential store unavailable")
	}
	if !verified {
		return ErrInvalidCredentials()
	}

	if err := changer.SetPassword(ctx, username, newPassword); err != nil {
		g.logger.Error("Password change failed", "error", err)
		return ErrServerError("failed to change password")
	}

	count := g.sessions.EndAllForUser(username)
	if g.cache != nil {
		g.cache.Delete(ctx, userCacheKeyPrefix+username)
	}
	if g.auditor != nil {
		g.auditor.LogForceLogout(username, count, "password_change")
	}
	return nil
}

// ActiveSessionCount returns the number of live sessions across all users.
func (g *Guard) ActiveSessionCount() int {
	return g.sessions.CountActive()
}

// SessionsForUser lists the target user's live sessions.
func (g *Guard) SessionsForUser(username string) []session.Info {
	return g.sessions.ListForUser(username)
}

// User resolves a username, consulting the cache first. Cache failures
// degrade to a credential store lookup.
func (g *Guard) User(ctx context.Context, username string) (*UserRecord, error) {
	if g.cache != nil {
		if raw, ok := g.cache.Get(ctx, userCacheKeyPrefix+username); ok {
			var record UserRecord
			if err := json.Unmarshal([]byte(raw), &record); err == nil {
				g.metrics.CacheHits.Add(ctx, 1)
				return &record, nil
			}
		}
		g.metrics.CacheMisses.Add(ctx, 1)
	}

	record, err := g.credentials.User(ctx, username)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrUnknownUser
	}
	g.cacheUser(ctx, username)
	return record, nil
}

// allow applies the blocked-then-window check ordering for one request and
// records rejections.
func (g *Guard) allow(identifier string, policy security.Policy, clientIP, username string) bool {
	if g.limiter == nil {
		return true
	}
	if g.limiter.Allow(identifier, policy) {
		return true
	}
	if g.auditor != nil {
		g.auditor.LogRateLimitExceeded(clientIP, username)
	}
	g.metrics.RateLimitRejected.Add(context.Background(), 1)
	return false
}

// cacheUser stores the user's record for fast lookups. Failures are
// ignored; the cache is an optimization.
func (g *Guard) cacheUser(ctx context.Context, username string) {
	if g.cache == nil {
		return
	}
	record, err := g.credentials.User(ctx, username)
	if err != nil || record == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	g.cache.Set(ctx, userCacheKeyPrefix+username, string(data), g.config.UserCacheTTL)
}

// ipIdentifier builds the rate-limiter key for a client address. An
// unknown address still shares one bucket rather than bypassing limits.
func ipIdentifier(clientIP string) string {
	if clientIP == "" {
		return "ip:unknown"
	}
	return "ip:" + clientIP
}

// observedFingerprint builds a fingerprint from request attributes, or a
// zero fingerprint when the caller supplied none.
func observedFingerprint(clientIP, userAgent string) security.Fingerprint {
	if clientIP == "" && userAgent == "" {
		return security.Fingerprint{}
	}
	return security.NewFingerprint(clientIP, userAgent)
}
