package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/helix-chat/sessionguard/cache/memory"
	"github.com/helix-chat/sessionguard/cache/redis"
)

func TestNewDefaultsToMemory(t *testing.T) {
	s := New(Config{}, nil)
	defer s.Stop()

	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("New with empty backend = %T, want *memory.Store", s)
	}
}

func TestNewRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	s := New(Config{
		Backend: BackendRedis,
		Redis:   redis.Config{Address: mr.Addr()},
	}, nil)
	defer s.Stop()

	if _, ok := s.(*redis.Store); !ok {
		t.Fatalf("New with reachable redis = %T, want *redis.Store", s)
	}

	ctx := context.Background()
	s.Set(ctx, "key1", "value1", 0)
	if got, ok := s.Get(ctx, "key1"); !ok || got != "value1" {
		t.Errorf("Get = (%q, %v), want (%q, true)", got, ok, "value1")
	}
}

func TestNewRedisFailoverToMemory(t *testing.T) {
	s := New(Config{
		Backend: BackendRedis,
		Redis:   redis.Config{Address: "127.0.0.1:1"},
	}, nil)
	defer s.Stop()

	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("New with unreachable redis = %T, want *memory.Store fallback", s)
	}

	// The fallback store must be fully usable.
	ctx := context.Background()
	if !s.Set(ctx, "key1", "value1", time.Minute) {
		t.Fatal("fallback store rejected Set")
	}
	if got, ok := s.Get(ctx, "key1"); !ok || got != "value1" {
		t.Errorf("Get = (%q, %v), want (%q, true)", got, ok, "value1")
	}
}
