package security

import (
	"testing"
	"time"

	"github.com/helix-chat/sessionguard/internal/testutil"
)

var testPolicy = Policy{
	MaxRequests:   5,
	Window:        time.Minute,
	MaxFailures:   3,
	BlockDuration: 5 * time.Minute,
}

func newTestLimiter(t *testing.T, clock *testutil.MockTime) *RateLimiter {
	t.Helper()
	rl := NewRateLimiterWithConfig(RateLimiterConfig{Now: clock.Now})
	t.Cleanup(rl.Stop)
	return rl
}

func TestSlidingWindowExact(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clock)

	for i := 0; i < testPolicy.MaxRequests; i++ {
		if !rl.Allow("ip:1.2.3.4", testPolicy) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("ip:1.2.3.4", testPolicy) {
		t.Fatal("request over the limit should be rejected")
	}

	// One second short of the window the oldest instant still counts.
	clock.Advance(59 * time.Second)
	if rl.Allow("ip:1.2.3.4", testPolicy) {
		t.Fatal("request inside the trailing window should still be rejected")
	}

	// Past the window the oldest instants fall out and capacity returns.
	clock.Advance(2 * time.Second)
	if !rl.Allow("ip:1.2.3.4", testPolicy) {
		t.Fatal("request after the window slid should be allowed")
	}
}

func TestRejectedRequestsNotRecorded(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clock)

	for i := 0; i < testPolicy.MaxRequests; i++ {
		rl.Allow("ip:1.2.3.4", testPolicy)
	}
	// Hammering while limited must not extend the lockout.
	for i := 0; i < 100; i++ {
		rl.Allow("ip:1.2.3.4", testPolicy)
	}

	clock.Advance(testPolicy.Window + time.Second)
	if !rl.Allow("ip:1.2.3.4", testPolicy) {
		t.Fatal("rejected attempts must not count toward the window")
	}
}

func TestIdentifiersIndependent(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clock)

	for i := 0; i < testPolicy.MaxRequests; i++ {
		rl.Allow("ip:1.2.3.4", testPolicy)
	}
	if rl.Allow("ip:1.2.3.4", testPolicy) {
		t.Fatal("first identifier should be limited")
	}
	if !rl.Allow("ip:5.6.7.8", testPolicy) {
		t.Fatal("second identifier must not share the first's window")
	}
}

func TestBlockAfterFailures(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clock)

	for i := 0; i < testPolicy.MaxFailures-1; i++ {
		rl.RecordFailure("ip:1.2.3.4", testPolicy.MaxFailures, testPolicy.BlockDuration)
		if rl.IsBlocked("ip:1.2.3.4") {
			t.Fatalf("blocked after %d failures, threshold is %d", i+1, testPolicy.MaxFailures)
		}
	}

	rl.RecordFailure("ip:1.2.3.4", testPolicy.MaxFailures, testPolicy.BlockDuration)
	if !rl.IsBlocked("ip:1.2.3.4") {
		t.Fatal("expected block at failure threshold")
	}
	if rl.Allow("ip:1.2.3.4", testPolicy) {
		t.Fatal("blocked identifier must be rejected before the window check")
	}

	clock.Advance(testPolicy.BlockDuration + time.Second)
	if rl.IsBlocked("ip:1.2.3.4") {
		t.Fatal("block should lapse after its duration")
	}
	if !rl.Allow("ip:1.2.3.4", testPolicy) {
		t.Fatal("identifier should be usable after the block lapses")
	}
}

func TestFailureCounterResetsAfterBlock(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clock)

	for i := 0; i < testPolicy.MaxFailures; i++ {
		rl.RecordFailure("ip:1.2.3.4", testPolicy.MaxFailures, testPolicy.BlockDuration)
	}
	clock.Advance(testPolicy.BlockDuration + time.Second)

	// A single new failure must not re-block; the count started over.
	rl.RecordFailure("ip:1.2.3.4", testPolicy.MaxFailures, testPolicy.BlockDuration)
	if rl.IsBlocked("ip:1.2.3.4") {
		t.Fatal("one failure after a lapsed block must not block again")
	}
}

func TestCleanupRemovesStaleState(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clock)

	rl.Allow("ip:old", testPolicy)
	for i := 0; i < testPolicy.MaxFailures; i++ {
		rl.RecordFailure("ip:blocked", testPolicy.MaxFailures, testPolicy.BlockDuration)
	}

	stats := rl.GetStats()
	if stats.TrackedWindows != 1 || stats.TrackedBlocks != 1 {
		t.Fatalf("stats = %+v, want one window and one block tracked", stats)
	}

	clock.Advance(windowRetention + time.Minute)
	rl.cleanupNow()

	stats = rl.GetStats()
	if stats.TrackedWindows != 0 {
		t.Errorf("windows after cleanup = %d, want 0", stats.TrackedWindows)
	}
	if stats.TrackedBlocks != 0 {
		t.Errorf("blocks after cleanup = %d, want 0", stats.TrackedBlocks)
	}
}

func TestCleanupKeepsActiveBlock(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clock)

	for i := 0; i < testPolicy.MaxFailures; i++ {
		rl.RecordFailure("ip:1.2.3.4", testPolicy.MaxFailures, time.Hour*2)
	}

	clock.Advance(time.Hour + time.Minute)
	rl.cleanupNow()

	if !rl.IsBlocked("ip:1.2.3.4") {
		t.Fatal("cleanup must never remove an active block")
	}
}

func TestStatsCounters(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	rl := newTestLimiter(t, clock)

	for i := 0; i < testPolicy.MaxRequests+3; i++ {
		rl.Allow("ip:1.2.3.4", testPolicy)
	}

	stats := rl.GetStats()
	if stats.TotalRejected != 3 {
		t.Errorf("rejected = %d, want 3", stats.TotalRejected)
	}
}
