package sessionguard

import (
	"context"
	"fmt"

	"github.com/helix-chat/sessionguard/cache"
	"github.com/helix-chat/sessionguard/cache/memory"
	"github.com/helix-chat/sessionguard/guard"
	"github.com/helix-chat/sessionguard/instrumentation"
	"github.com/helix-chat/sessionguard/security"
	"github.com/helix-chat/sessionguard/session"
)

// Service wires the session store, rate limiter, cache, auditor, and
// instrumentation into a ready-to-use guard. Most callers construct one
// Service at startup and call methods on Service.Guard.
type Service struct {
	// Guard is the security policy facade callers invoke per request.
	Guard *guard.Guard

	sessions *session.Store
	limiter  *security.RateLimiter
	cache    cache.Store
	instr    *instrumentation.Instrumentation
}

// New builds the full subsystem from cfg. The credential store is the one
// collaborator the subsystem cannot supply itself. A nil cfg uses defaults
// throughout.
func New(cfg *Config, credentials guard.CredentialStore) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	instr, err := instrumentation.New(cfg.Instrumentation)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	metrics := instr.Metrics()

	encryptor, err := security.NewEncryptor(cfg.Session.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	sessions := session.New(session.Config{
		TTL:                 cfg.Session.TTL,
		InactivityThreshold: cfg.Session.InactivityThreshold,
		MaxSessionsPerUser:  cfg.Session.MaxSessionsPerUser,
		SweepInterval:       cfg.Session.SweepInterval,
		PersistPath:         cfg.Session.PersistPath,
		PersistDebounce:     cfg.Session.PersistDebounce,
		Logger:              cfg.Logger,
		Metrics:             metrics,
		Encryptor:           encryptor,
	})

	cacheStore := cache.New(cfg.Cache, cfg.Logger)

	g, err := guard.New(sessions, credentials, &guard.Config{
		LoginPolicy:      cfg.RateLimit.Login,
		ValidationPolicy: cfg.RateLimit.Validation,
	}, cfg.Logger)
	if err != nil {
		sessions.Stop()
		cacheStore.Stop()
		return nil, err
	}
	g.SetCache(cacheStore)
	g.SetMetrics(metrics)
	g.SetTracer(instr.Tracer("guard"))

	svc := &Service{
		Guard:    g,
		sessions: sessions,
		cache:    cacheStore,
		instr:    instr,
	}

	if !cfg.RateLimit.Disabled {
		svc.limiter = security.NewRateLimiterWithConfig(security.RateLimiterConfig{
			CleanupInterval: cfg.RateLimit.CleanupInterval,
			Logger:          cfg.Logger,
		})
		g.SetRateLimiter(svc.limiter)
	}

	if cfg.Security.EnableAuditLogging {
		g.SetAuditor(security.NewAuditor(cfg.Logger, true))
	}

	svc.registerGauges()

	return svc, nil
}

// registerGauges wires the active-session and cache-entry observable gauges.
// Failure to register is logged inside instrumentation and never fatal.
func (s *Service) registerGauges() {
	var cacheEntries instrumentation.SizeCallback
	if ms, ok := s.cache.(*memory.Store); ok {
		cacheEntries = func() int64 {
			return int64(ms.GetStats().Entries)
		}
	}
	_ = s.instr.RegisterSizeCallbacks(func() int64 {
		return int64(s.sessions.CountActive())
	}, cacheEntries)
}

// Sessions exposes the session store for callers that need operations the
// guard does not wrap, such as administrative listing.
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// Cache exposes the shared cache store.
func (s *Service) Cache() cache.Store {
	return s.cache
}

// Shutdown stops background loops, flushes pending session persistence, and
// shuts down instrumentation. Safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	s.sessions.Stop()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.cache.Stop()
	return s.instr.Shutdown(ctx)
}
