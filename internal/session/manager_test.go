package session

import (
	"testing"
	"time"
)

func newTestManager(ttlMin, ttlMax, cleanup time.Duration) (*Manager, *time.Time) {
	manager := NewManager(ttlMin, ttlMax, cleanup)
	current := time.Unix(1_700_000_000, 0)
	manager.now = func() time.Time { return current }
	return manager, &current
}

func TestResolve_Idempotent(t *testing.T) {
	manager, _ := newTestManager(time.Minute, time.Hour, time.Minute)

	first := manager.Resolve("identity-a")
	second := manager.Resolve("identity-a")
	if first == "" || first != second {
		t.Fatalf("resolve must be idempotent: %q vs %q", first, second)
	}

	other := manager.Resolve("identity-b")
	if other == first {
		t.Fatalf("different identities must get different sessions")
	}
}

func TestAdaptiveTTL_MonotoneAndClamped(t *testing.T) {
	manager, _ := newTestManager(time.Minute, time.Hour, time.Minute)

	previous := time.Duration(-1)
	for _, tokens := range []int64{0, 100, 1000, 50_000, 1_000_000, 1_000_000_000} {
		ttl := manager.adaptiveTTL(tokens)
		if ttl < time.Minute || ttl > time.Hour {
			t.Fatalf("ttl out of bounds for tokens=%d: %v", tokens, ttl)
		}
		if ttl < previous {
			t.Fatalf("ttl must be monotone, tokens=%d gave %v < %v", tokens, ttl, previous)
		}
		previous = ttl
	}
}

func TestAdaptiveTTL_DegenerateRange(t *testing.T) {
	manager, _ := newTestManager(time.Hour, time.Hour, time.Minute)
	if ttl := manager.adaptiveTTL(123456); ttl != time.Hour {
		t.Fatalf("ttl_max <= ttl_min must return ttl_min, got %v", ttl)
	}
}

func TestCleanup_AdaptiveEviction(t *testing.T) {
	// ttl_min=60s, ttl_max=3600s, K=50000
	manager, current := newTestManager(60*time.Second, 3600*time.Second, time.Minute)

	lightBefore := manager.Resolve("light-user")
	manager.Resolve("heavy-user")
	manager.AddUsage("heavy-user", 10_000_000)

	*current = current.Add(120 * time.Second)

	evicted := manager.CleanupExpired()
	if evicted != 1 {
		t.Fatalf("expected exactly one eviction, got %d", evicted)
	}
	if manager.Len() != 1 {
		t.Fatalf("heavy user must survive, got %d entries", manager.Len())
	}

	// 轻用户条目已清除：重新 Resolve 会得到新会话
	lightAfter := manager.Resolve("light-user")
	if lightAfter == lightBefore {
		t.Fatalf("light user should have been recreated")
	}
}

func TestResolve_PiggybackCleanup(t *testing.T) {
	manager, current := newTestManager(time.Second, 2*time.Second, time.Second)

	manager.Resolve("stale")
	*current = current.Add(10 * time.Second)

	// 到达清理间隔时 Resolve 顺带清理过期条目
	manager.Resolve("fresh")
	if manager.Len() != 1 {
		t.Fatalf("stale entry should be swept on resolve, got %d entries", manager.Len())
	}
}

func TestAddUsage_CreatesAndSaturates(t *testing.T) {
	manager, _ := newTestManager(time.Minute, time.Hour, time.Minute)

	manager.AddUsage("new-identity", 42)
	if manager.Len() != 1 {
		t.Fatalf("add_usage should create missing entries")
	}

	manager.entries["new-identity"].totalTokens = int64(^uint64(0)>>1) - 10
	manager.AddUsage("new-identity", 1000)
	if manager.entries["new-identity"].totalTokens != int64(^uint64(0)>>1) {
		t.Fatalf("usage must saturate, got %d", manager.entries["new-identity"].totalTokens)
	}

	manager.AddUsage("new-identity", -5)
	if manager.entries["new-identity"].totalTokens != int64(^uint64(0)>>1) {
		t.Fatalf("negative usage must be ignored")
	}
}
