package memory

import (
	"context"
	"testing"
	"time"

	"github.com/helix-chat/sessionguard/internal/testutil"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = -1 // no background goroutine in tests
	}
	s := New(cfg)
	t.Cleanup(s.Stop)
	return s
}

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	if !s.Set(ctx, "key1", "value1", 0) {
		t.Fatal("Set failed")
	}

	got, ok := s.Get(ctx, "key1")
	if !ok {
		t.Fatal("expected hit for key1")
	}
	if got != "value1" {
		t.Errorf("got %q, want %q", got, "value1")
	}

	if _, ok := s.Get(ctx, "missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestTTLResolution(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	s := newTestStore(t, Config{
		DefaultTTL: time.Minute,
		Now:        clock.Now,
	})

	s.Set(ctx, "default-ttl", "v", 0)
	s.Set(ctx, "explicit-ttl", "v", 10*time.Second)
	s.Set(ctx, "no-expiry", "v", -1)

	clock.Advance(11 * time.Second)
	if _, ok := s.Get(ctx, "explicit-ttl"); ok {
		t.Error("explicit 10s TTL should have expired")
	}
	if _, ok := s.Get(ctx, "default-ttl"); !ok {
		t.Error("default TTL entry expired too early")
	}

	clock.Advance(time.Minute)
	if _, ok := s.Get(ctx, "default-ttl"); ok {
		t.Error("default TTL entry should have expired")
	}
	if _, ok := s.Get(ctx, "no-expiry"); !ok {
		t.Error("negative TTL entry must never expire")
	}
}

func TestLRUEviction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{MaxEntries: 3})

	s.Set(ctx, "a", "1", 0)
	s.Set(ctx, "b", "2", 0)
	s.Set(ctx, "c", "3", 0)

	// Touch "a" so "b" becomes least recently accessed.
	if _, ok := s.Get(ctx, "a"); !ok {
		t.Fatal("expected hit for a")
	}

	s.Set(ctx, "d", "4", 0)

	if _, ok := s.Get(ctx, "b"); ok {
		t.Error("b should have been evicted as least recently accessed")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := s.Get(ctx, key); !ok {
			t.Errorf("%s should have survived eviction", key)
		}
	}

	stats := s.GetStats()
	if stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}
	if stats.Entries != 3 {
		t.Errorf("entries = %d, want 3", stats.Entries)
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{MaxEntries: 2})

	s.Set(ctx, "old", "1", 0)
	s.Set(ctx, "new", "2", 0)
	s.Get(ctx, "old")
	s.Set(ctx, "newest", "3", 0)

	if _, ok := s.Get(ctx, "old"); !ok {
		t.Error("reading an entry must protect it from the next eviction")
	}
	if _, ok := s.Get(ctx, "new"); ok {
		t.Error("unread entry should have been evicted")
	}
}

func TestSetExistingDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{MaxEntries: 2})

	s.Set(ctx, "a", "1", 0)
	s.Set(ctx, "b", "2", 0)
	s.Set(ctx, "a", "updated", 0)

	if got, _ := s.Get(ctx, "a"); got != "updated" {
		t.Errorf("got %q, want %q", got, "updated")
	}
	if _, ok := s.Get(ctx, "b"); !ok {
		t.Error("overwriting an existing key must not evict others")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	s.Set(ctx, "key1", "v", 0)
	if !s.Delete(ctx, "key1") {
		t.Error("Delete should report true for existing key")
	}
	if s.Delete(ctx, "key1") {
		t.Error("Delete should report false for absent key")
	}
	if _, ok := s.Get(ctx, "key1"); ok {
		t.Error("deleted key still readable")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	s.Set(ctx, "a", "1", 0)
	s.Set(ctx, "b", "2", 0)
	s.Clear(ctx)

	if got := len(s.Keys(ctx, "*")); got != 0 {
		t.Errorf("keys after Clear = %d, want 0", got)
	}
}

func TestExists(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	s := newTestStore(t, Config{Now: clock.Now})

	s.Set(ctx, "key1", "v", time.Minute)
	if !s.Exists(ctx, "key1") {
		t.Error("expected key1 to exist")
	}

	clock.Advance(2 * time.Minute)
	if s.Exists(ctx, "key1") {
		t.Error("expired key reported as existing")
	}
}

func TestKeysPattern(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	s.Set(ctx, "user:alice", "1", 0)
	s.Set(ctx, "user:bob", "2", 0)
	s.Set(ctx, "session:xyz", "3", 0)

	if got := len(s.Keys(ctx, "*")); got != 3 {
		t.Errorf("Keys(*) = %d, want 3", got)
	}
	if got := len(s.Keys(ctx, "user:*")); got != 2 {
		t.Errorf("Keys(user:*) = %d, want 2", got)
	}
	if got := len(s.Keys(ctx, "nothing:*")); got != 0 {
		t.Errorf("Keys(nothing:*) = %d, want 0", got)
	}
}

func TestSweepExpired(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	s := newTestStore(t, Config{Now: clock.Now})

	s.Set(ctx, "short", "v", time.Second)
	s.Set(ctx, "long", "v", time.Hour)

	clock.Advance(time.Minute)
	s.sweepExpired()

	stats := s.GetStats()
	if stats.Entries != 1 {
		t.Errorf("entries after sweep = %d, want 1", stats.Entries)
	}
}

func TestStatsCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	s.Set(ctx, "key1", "v", 0)
	s.Get(ctx, "key1")
	s.Get(ctx, "key1")
	s.Get(ctx, "missing")

	stats := s.GetStats()
	if stats.Hits != 2 {
		t.Errorf("hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}
