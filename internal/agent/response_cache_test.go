package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brainstorm/brainstorm/internal/models"
)

func testCache(ttls map[models.AgentID]time.Duration) (*ResponseCache, *time.Time) {
	now := time.Now()
	cache := NewResponseCache(&CacheConfig{
		DefaultTTL:  time.Minute,
		TTLs:        ttls,
		MaxEntries:  8,
		Fingerprint: DefaultFingerprint,
	})
	cache.now = func() time.Time { return now }
	return cache, &now
}

func cachedResult(id models.AgentID, msg string) func(context.Context) (*models.AgentResult, error) {
	return func(ctx context.Context) (*models.AgentResult, error) {
		return &models.AgentResult{AgentID: id, Message: msg}, nil
	}
}

// TestCacheHitWithinTTL verifies a second call with identical inputs returns
// the cached result without invoking compute, and that TTL expiry recomputes.
func TestCacheHitWithinTTL(t *testing.T) {
	cache, now := testCache(map[models.AgentID]time.Duration{models.AgentQuality: time.Minute})
	ctx := context.Background()
	in := FingerprintInputs{Message: "check quality", HistoryLen: 3}

	computes := 0
	compute := func(ctx context.Context) (*models.AgentResult, error) {
		computes++
		return &models.AgentResult{AgentID: models.AgentQuality, Message: "fresh"}, nil
	}

	first, err := cache.GetOrCompute(ctx, models.AgentQuality, in, compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.GetOrCompute(ctx, models.AgentQuality, in, compute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if computes != 1 {
		t.Errorf("expected one compute, got %d", computes)
	}
	if first != second {
		t.Error("expected the exact cached result on a hit")
	}

	// TTL elapses: the entry is lazily evicted and compute runs again.
	*now = now.Add(2 * time.Minute)
	cache.GetOrCompute(ctx, models.AgentQuality, in, compute)
	if computes != 2 {
		t.Errorf("expected recompute after TTL, got %d computes", computes)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Evictions != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
}

// TestNeverCacheAgents verifies TTL=0 agents invoke compute every time.
func TestNeverCacheAgents(t *testing.T) {
	cache, _ := testCache(map[models.AgentID]time.Duration{models.AgentRecorder: 0})
	ctx := context.Background()
	in := FingerprintInputs{Message: "record this"}

	computes := 0
	compute := func(ctx context.Context) (*models.AgentResult, error) {
		computes++
		return &models.AgentResult{AgentID: models.AgentRecorder}, nil
	}

	cache.GetOrCompute(ctx, models.AgentRecorder, in, compute)
	cache.GetOrCompute(ctx, models.AgentRecorder, in, compute)
	if computes != 2 {
		t.Errorf("never-cache agent must compute every call, got %d", computes)
	}
	if stats := cache.Stats(); stats.Entries != 0 {
		t.Errorf("never-cache agent must not store entries, got %d", stats.Entries)
	}
}

func TestCacheComputeErrorNotStored(t *testing.T) {
	cache, _ := testCache(nil)
	ctx := context.Background()
	in := FingerprintInputs{Message: "x"}

	computes := 0
	_, err := cache.GetOrCompute(ctx, models.AgentQuality, in, func(ctx context.Context) (*models.AgentResult, error) {
		computes++
		return nil, errors.New("backend down")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	cache.GetOrCompute(ctx, models.AgentQuality, in, cachedResult(models.AgentQuality, "ok"))
	if computes != 1 {
		t.Error("failed compute must not populate the cache")
	}
	if stats := cache.Stats(); stats.Entries != 1 {
		t.Errorf("expected one stored entry, got %d", stats.Entries)
	}
}

// TestFingerprintCoarsening verifies near-identical contexts share a key
// while different messages or bucket counts do not.
func TestFingerprintCoarsening(t *testing.T) {
	items := []models.ProjectItem{{Text: "a", State: models.ItemDecided}}

	base := DefaultFingerprint(models.AgentQuality, FingerprintInputs{Message: "Check this", Items: items, HistoryLen: 11})
	sameBucket := DefaultFingerprint(models.AgentQuality, FingerprintInputs{Message: "  check THIS ", Items: items, HistoryLen: 13})
	if base != sameBucket {
		t.Error("normalized message and same history bucket must share a fingerprint")
	}

	otherMsg := DefaultFingerprint(models.AgentQuality, FingerprintInputs{Message: "check that", Items: items, HistoryLen: 11})
	if base == otherMsg {
		t.Error("different messages must not share a fingerprint")
	}

	moreItems := append([]models.ProjectItem{{Text: "b", State: models.ItemDecided}}, items...)
	otherState := DefaultFingerprint(models.AgentQuality, FingerprintInputs{Message: "Check this", Items: moreItems, HistoryLen: 11})
	if base == otherState {
		t.Error("different bucket counts must not share a fingerprint")
	}

	otherAgent := DefaultFingerprint(models.AgentConsistency, FingerprintInputs{Message: "Check this", Items: items, HistoryLen: 11})
	if base == otherAgent {
		t.Error("different agents must not share a fingerprint")
	}
}

func TestInvalidateAgent(t *testing.T) {
	cache, _ := testCache(nil)
	ctx := context.Background()

	cache.GetOrCompute(ctx, models.AgentQuality, FingerprintInputs{Message: "a"}, cachedResult(models.AgentQuality, "a"))
	cache.GetOrCompute(ctx, models.AgentQuality, FingerprintInputs{Message: "b"}, cachedResult(models.AgentQuality, "b"))
	cache.GetOrCompute(ctx, models.AgentConsistency, FingerprintInputs{Message: "a"}, cachedResult(models.AgentConsistency, "a"))

	cache.InvalidateAgent(models.AgentQuality)

	stats := cache.Stats()
	if stats.Entries != 1 {
		t.Errorf("expected only the consistency entry to survive, got %d entries", stats.Entries)
	}
	if stats.Evictions != 2 {
		t.Errorf("expected 2 evictions, got %d", stats.Evictions)
	}

	cache.InvalidateAll()
	if stats := cache.Stats(); stats.Entries != 0 {
		t.Errorf("expected empty cache after InvalidateAll, got %d", stats.Entries)
	}
}

// TestCacheSweep verifies the size-triggered sweep removes expired entries
// in one pass.
func TestCacheSweep(t *testing.T) {
	cache, now := testCache(nil)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		in := FingerprintInputs{Message: string(rune('a' + i))}
		cache.GetOrCompute(ctx, models.AgentQuality, in, cachedResult(models.AgentQuality, "x"))
	}

	// All eight expire; the ninth store pushes past MaxEntries and sweeps.
	*now = now.Add(2 * time.Minute)
	cache.GetOrCompute(ctx, models.AgentQuality, FingerprintInputs{Message: "i"}, cachedResult(models.AgentQuality, "x"))

	if stats := cache.Stats(); stats.Entries != 1 {
		t.Errorf("expected sweep to leave only the fresh entry, got %d", stats.Entries)
	}
}
