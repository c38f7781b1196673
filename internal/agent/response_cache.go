package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brainstorm/brainstorm/internal/models"
)

// FingerprintInputs is the cache-relevant subset of an agent's inputs.
type FingerprintInputs struct {
	Message    string
	Items      []models.ProjectItem
	HistoryLen int
}

// FingerprintFunc hashes invocation inputs into a cache key. Coarsening is
// deliberate: treating near-identical contexts as equivalent raises the hit
// rate at the cost of occasionally serving a slightly stale analysis, and the
// TTL bounds how stale that can get.
type FingerprintFunc func(agentID models.AgentID, in FingerprintInputs) string

// DefaultFingerprint hashes the agent id, the normalized message, the item
// count per bucket (not item contents) and the history length rounded down
// to a multiple of five.
func DefaultFingerprint(agentID models.AgentID, in FingerprintInputs) string {
	state := models.PartitionItems(in.Items)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00d=%d,e=%d,p=%d\x00h=%d",
		agentID,
		strings.ToLower(strings.TrimSpace(in.Message)),
		len(state.Decided), len(state.Exploring), len(state.Parked),
		in.HistoryLen/5*5,
	)
	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	result   *models.AgentResult
	agentID  models.AgentID
	storedAt time.Time
	ttl      time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// CacheConfig configures a ResponseCache.
type CacheConfig struct {
	DefaultTTL  time.Duration
	TTLs        map[models.AgentID]time.Duration // TTL 0 means never cache
	MaxEntries  int                              // sweep trigger, not a hard cap
	Fingerprint FingerprintFunc
}

// DefaultCacheConfig returns the per-agent TTL table used in production.
// The recorder and the classifier must always see the latest state, so they
// never cache.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		DefaultTTL: 5 * time.Minute,
		TTLs: map[models.AgentID]time.Duration{
			models.AgentResponder:    30 * time.Second,
			models.AgentClassifier:   0,
			models.AgentVerification: 2 * time.Minute,
			models.AgentRecorder:     0,
			models.AgentConsistency:  5 * time.Minute,
			models.AgentGapDetector:  5 * time.Minute,
			models.AgentQuality:      5 * time.Minute,
			models.AgentResearch:     15 * time.Minute,
		},
		MaxEntries:  512,
		Fingerprint: DefaultFingerprint,
	}
}

// CacheStats is a snapshot of cache counters. They exist for observability
// only; nothing depends on them for correctness.
type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}

// ResponseCache is a TTL-bounded, per-agent cache of agent invocation
// results, keyed by a fingerprint of the invocation inputs. It is safe for
// concurrent use from multiple in-flight pipelines.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	config  *CacheConfig
	stats   CacheStats
	now     func() time.Time
}

// NewResponseCache creates an empty cache.
func NewResponseCache(config *CacheConfig) *ResponseCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if config.Fingerprint == nil {
		config.Fingerprint = DefaultFingerprint
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 512
	}
	return &ResponseCache{
		entries: make(map[string]*cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

// ttlFor returns the TTL for an agent and whether caching applies at all.
func (c *ResponseCache) ttlFor(agentID models.AgentID) (time.Duration, bool) {
	if ttl, ok := c.config.TTLs[agentID]; ok {
		return ttl, ttl > 0
	}
	return c.config.DefaultTTL, c.config.DefaultTTL > 0
}

// GetOrCompute returns the cached result for the fingerprint of in, or calls
// compute and stores its result. Agents with TTL 0 bypass the cache
// unconditionally. Expired entries are evicted lazily on read.
func (c *ResponseCache) GetOrCompute(ctx context.Context, agentID models.AgentID, in FingerprintInputs, compute func(context.Context) (*models.AgentResult, error)) (*models.AgentResult, error) {
	ttl, cacheable := c.ttlFor(agentID)
	if !cacheable {
		return compute(ctx)
	}

	key := c.config.Fingerprint(agentID, in)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		if entry.expired(c.now()) {
			delete(c.entries, key)
			c.stats.Evictions++
		} else {
			c.stats.Hits++
			result := entry.result
			c.mu.Unlock()
			return result, nil
		}
	}
	c.stats.Misses++
	c.mu.Unlock()

	// Not holding the lock across the remote call means two concurrent
	// misses for the same key may both compute; the second store wins.
	result, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = &cacheEntry{
		result:   result,
		agentID:  agentID,
		storedAt: c.now(),
		ttl:      ttl,
	}
	if len(c.entries) > c.config.MaxEntries {
		c.sweepLocked()
	}
	c.mu.Unlock()

	return result, nil
}

// sweepLocked removes every currently-expired entry. Caller holds the lock.
func (c *ResponseCache) sweepLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}

// InvalidateAgent removes all entries for one agent. Used when the agent's
// output is known to have changed meaning, such as after a confirmed write
// in the same turn.
func (c *ResponseCache) InvalidateAgent(agentID models.AgentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if entry.agentID == agentID {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}

// InvalidateAll clears the cache.
func (c *ResponseCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Evictions += uint64(len(c.entries))
	c.entries = make(map[string]*cacheEntry)
}

// Stats returns a snapshot of the counters.
func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Entries = len(c.entries)
	return stats
}
