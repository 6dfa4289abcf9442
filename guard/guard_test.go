package guard

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/helix-chat/sessionguard/cache"
	"github.com/helix-chat/sessionguard/security"
	"github.com/helix-chat/sessionguard/session"
)

const (
	testUser     = "alice"
	testPassword = "correct-horse-battery"
	testIP       = "203.0.113.7"
	testUA       = "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0.0.0"
)

func newTestGuard(t *testing.T, cfg *Config) *Guard {
	t.Helper()

	sessions := session.New(session.Config{SweepInterval: -1})
	t.Cleanup(sessions.Stop)

	creds := NewMemoryCredentialStore()
	if err := creds.Register(context.Background(), testUser, testPassword); err != nil {
		t.Fatalf("failed to register test user: %v", err)
	}

	g, err := New(sessions, creds, cfg, nil)
	if err != nil {
		t.Fatalf("failed to create guard: %v", err)
	}
	return g
}

func login(t *testing.T, g *Guard) *LoginResult {
	t.Helper()
	result, err := g.Login(context.Background(), LoginRequest{
		Username:  testUser,
		Password:  testPassword,
		ClientIP:  testIP,
		UserAgent: testUA,
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return result
}

func assertCode(t *testing.T, err error, code string) *Error {
	t.Helper()
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("err = %v (%T), want *guard.Error", err, err)
	}
	if ge.Code != code {
		t.Fatalf("error code = %q, want %q", ge.Code, code)
	}
	return ge
}

func TestLoginSuccess(t *testing.T) {
	g := newTestGuard(t, nil)

	result := login(t, g)
	if result.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
	if !validSessionID(result.SessionID) {
		t.Errorf("session ID %q is not a valid UUID", result.SessionID)
	}
	if until := time.Until(result.ExpireTime); until < 29*time.Minute || until > 31*time.Minute {
		t.Errorf("expiry %v from now, want about 30 minutes", until)
	}
}

func TestLoginFailureUniform(t *testing.T) {
	g := newTestGuard(t, nil)
	ctx := context.Background()

	_, errWrongPassword := g.Login(ctx, LoginRequest{
		Username: testUser, Password: "wrong", ClientIP: testIP,
	})
	_, errUnknownUser := g.Login(ctx, LoginRequest{
		Username: "nobody", Password: testPassword, ClientIP: testIP,
	})

	wrong := assertCode(t, errWrongPassword, ErrorCodeInvalidCredentials)
	unknown := assertCode(t, errUnknownUser, ErrorCodeInvalidCredentials)
	if wrong.Description != unknown.Description {
		t.Error("wrong-password and unknown-user failures must be indistinguishable")
	}
}

func TestLoginInvalidInput(t *testing.T) {
	g := newTestGuard(t, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", testPassword},
		{"empty password", testUser, ""},
		{"username with spaces", "al ice", testPassword},
		{"username with control chars", "alice\n", testPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Login(ctx, LoginRequest{Username: tt.username, Password: tt.password})
			assertCode(t, err, ErrorCodeInvalidRequest)
		})
	}
}

func TestLoginRateLimited(t *testing.T) {
	g := newTestGuard(t, &Config{
		LoginPolicy: security.Policy{
			MaxRequests:   2,
			Window:        time.Minute,
			MaxFailures:   10,
			BlockDuration: time.Minute,
		},
	})
	rl := security.NewRateLimiter(nil)
	t.Cleanup(rl.Stop)
	g.SetRateLimiter(rl)
	ctx := context.Background()

	login(t, g)
	login(t, g)
	_, err := g.Login(ctx, LoginRequest{
		Username: testUser, Password: testPassword, ClientIP: testIP,
	})
	ge := assertCode(t, err, ErrorCodeRateLimited)
	if ge.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", ge.Status)
	}

	// A different client IP is unaffected.
	if _, err := g.Login(ctx, LoginRequest{
		Username: testUser, Password: testPassword, ClientIP: "198.51.100.9",
	}); err != nil {
		t.Errorf("other IP should not be limited: %v", err)
	}
}

func TestLoginBlockAfterFailures(t *testing.T) {
	g := newTestGuard(t, &Config{
		LoginPolicy: security.Policy{
			MaxRequests:   100,
			Window:        time.Minute,
			MaxFailures:   3,
			BlockDuration: time.Minute,
		},
	})
	rl := security.NewRateLimiter(nil)
	t.Cleanup(rl.Stop)
	g.SetRateLimiter(rl)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Login(ctx, LoginRequest{
			Username: testUser, Password: "wrong", ClientIP: testIP,
		})
		assertCode(t, err, ErrorCodeInvalidCredentials)
	}

	// Blocked now; even the correct password is refused before
	// verification runs.
	_, err := g.Login(ctx, LoginRequest{
		Username: testUser, Password: testPassword, ClientIP: testIP,
	})
	assertCode(t, err, ErrorCodeRateLimited)
}

func TestLoginTooManySessions(t *testing.T) {
	sessions := session.New(session.Config{
		MaxSessionsPerUser: 2,
		SweepInterval:      -1,
	})
	t.Cleanup(sessions.Stop)
	creds := NewMemoryCredentialStore()
	creds.Register(context.Background(), testUser, testPassword)
	g, err := New(sessions, creds, nil, nil)
	if err != nil {
		t.Fatalf("failed to create guard: %v", err)
	}

	login(t, g)
	login(t, g)
	_, err = g.Login(context.Background(), LoginRequest{
		Username: testUser, Password: testPassword, ClientIP: testIP,
	})
	ge := assertCode(t, err, ErrorCodeTooManySessions)
	if ge.Code == ErrorCodeInvalidCredentials {
		t.Error("capacity refusal must be distinct from authentication failure")
	}
	if ge.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 (retryable)", ge.Status)
	}
}

func TestValidate(t *testing.T) {
	g := newTestGuard(t, nil)
	ctx := context.Background()

	result := login(t, g)

	v := g.Validate(ctx, result.SessionID, testIP, testUA)
	if !v.Valid {
		t.Fatal("fresh session should validate")
	}
	if v.Username != testUser {
		t.Errorf("username = %q, want %q", v.Username, testUser)
	}
	if v.Hijacked {
		t.Error("same client must not be flagged")
	}

	if g.Validate(ctx, "not-a-uuid", testIP, testUA).Valid {
		t.Error("malformed session ID must not validate")
	}
	if g.Validate(ctx, "00000000-0000-0000-0000-000000000000", testIP, testUA).Valid {
		t.Error("unknown session must not validate")
	}
}

func TestValidateHijackAdvisory(t *testing.T) {
	g := newTestGuard(t, nil)
	ctx := context.Background()

	result := login(t, g)

	v := g.Validate(ctx, result.SessionID, "198.51.100.9", testUA)
	if !v.Valid {
		t.Fatal("hijack suspicion must not invalidate the session")
	}
	if !v.Hijacked {
		t.Error("expected hijack flag for a different client IP")
	}
}

func TestRefresh(t *testing.T) {
	g := newTestGuard(t, nil)
	ctx := context.Background()

	result := login(t, g)

	refreshed, err := g.Refresh(ctx, result.SessionID, testIP, testUA)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed.ExpireTime.Before(result.ExpireTime) {
		t.Error("refresh must never shorten the expiry")
	}

	if err := g.Logout(ctx, result.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	_, err = g.Refresh(ctx, result.SessionID, testIP, testUA)
	assertCode(t, err, ErrorCodeInvalidSession)
}

func TestLogout(t *testing.T) {
	g := newTestGuard(t, nil)
	ctx := context.Background()

	result := login(t, g)

	if err := g.Logout(ctx, result.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	err := g.Logout(ctx, result.SessionID)
	assertCode(t, err, ErrorCodeSessionNotFound)

	err = g.Logout(ctx, "not-a-uuid")
	assertCode(t, err, ErrorCodeInvalidRequest)
}

func TestForceLogoutSelf(t *testing.T) {
	g := newTestGuard(t, nil)
	ctx := context.Background()

	first := login(t, g)
	second := login(t, g)

	count, err := g.ForceLogoutSelf(ctx, first.SessionID)
	if err != nil {
		t.Fatalf("ForceLogoutSelf failed: %v", err)
	}
	if count != 2 {
		t.Errorf("ended %d sessions, want 2", count)
	}
	if g.Validate(ctx, second.SessionID, testIP, testUA).Valid {
		t.Error("all of the user's sessions must be gone")
	}

	_, err = g.ForceLogoutSelf(ctx, first.SessionID)
	assertCode(t, err, ErrorCodeUnauthenticated)
}

func TestForceLogoutUser(t *testing.T) {
	g := newTestGuard(t, nil)
	ctx := context.Background()

	login(t, g)
	login(t, g)

	count, err := g.ForceLogoutUser(ctx, testUser)
	if err != nil {
		t.Fatalf("ForceLogoutUser failed: %v", err)
	}
	if count != 2 {
		t.Errorf("ended %d sessions, want 2", count)
	}

	count, err = g.ForceLogoutUser(ctx, "nobody")
	if err != nil || count != 0 {
		t.Errorf("ForceLogoutUser(nobody) = (%d, %v), want (0, nil)", count, err)
	}
}

func TestChangePassword(t *testing.T) {
	g := newTestGuard(t, nil)
	ctx := context.Background()

	result := login(t, g)

	err := g.ChangePassword(ctx, testUser, "wrong-old", "new-password-123")
	assertCode(t, err, ErrorCodeInvalidCredentials)

	err = g.ChangePassword(ctx, testUser, testPassword, "short")
	assertCode(t, err, ErrorCodeInvalidRequest)

	if err := g.ChangePassword(ctx, testUser, testPassword, "new-password-123"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// Every prior session is invalidated.
	if g.Validate(ctx, result.SessionID, testIP, testUA).Valid {
		t.Error("sessions must not survive a password change")
	}

	// Old password no longer works, new one does.
	_, err = g.Login(ctx, LoginRequest{Username: testUser, Password: testPassword, ClientIP: testIP})
	assertCode(t, err, ErrorCodeInvalidCredentials)
	if _, err := g.Login(ctx, LoginRequest{Username: testUser, Password: "new-password-123", ClientIP: testIP}); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
}

func TestUserCachedLookup(t *testing.T) {
	g := newTestGuard(t, nil)
	store := cache.New(cache.Config{}, nil)
	t.Cleanup(store.Stop)
	g.SetCache(store)
	ctx := context.Background()

	login(t, g) // populates the cache

	if !store.Exists(ctx, "user:"+testUser) {
		t.Fatal("login should cache the user record")
	}

	record, err := g.User(ctx, testUser)
	if err != nil {
		t.Fatalf("User failed: %v", err)
	}
	if record.Username != testUser {
		t.Errorf("username = %q, want %q", record.Username, testUser)
	}

	// A poisoned cache entry degrades to a credential store lookup.
	store.Set(ctx, "user:"+testUser, "{corrupt", 0)
	record, err = g.User(ctx, testUser)
	if err != nil || record.Username != testUser {
		t.Errorf("User with corrupt cache = (%v, %v), want fallback to store", record, err)
	}

	if _, err := g.User(ctx, "nobody"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("User(nobody) err = %v, want ErrUnknownUser", err)
	}
}

func TestActiveSessionCount(t *testing.T) {
	g := newTestGuard(t, nil)

	if got := g.ActiveSessionCount(); got != 0 {
		t.Errorf("initial count = %d, want 0", got)
	}
	login(t, g)
	login(t, g)
	if got := g.ActiveSessionCount(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	sessions := session.New(session.Config{SweepInterval: -1})
	t.Cleanup(sessions.Stop)

	if _, err := New(nil, NewMemoryCredentialStore(), nil, nil); err == nil {
		t.Error("expected error for nil session store")
	}
	if _, err := New(sessions, nil, nil, nil); err == nil {
		t.Error("expected error for nil credential store")
	}
}
