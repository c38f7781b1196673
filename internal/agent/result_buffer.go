package agent

import (
	"sync"
	"time"

	"github.com/brainstorm/brainstorm/internal/models"
)

type bufferEntry struct {
	delta    *models.Delta
	storedAt time.Time
}

// ResultBuffer is a short-lived, single-read mailbox: a background pipeline
// publishes its delta here and a later, unrelated poll request consumes it.
// It is not a queue — only the latest unconsumed delta per key survives, and
// an entry is delivered to at most one reader.
type ResultBuffer struct {
	mu      sync.Mutex
	entries map[string]*bufferEntry
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// NewResultBuffer creates a buffer whose entries expire unread after ttl.
// A background sweeper removes expired-but-unconsumed entries every
// sweepInterval so memory stays bounded when a caller never polls.
func NewResultBuffer(ttl, sweepInterval time.Duration) *ResultBuffer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	b := &ResultBuffer{
		entries: make(map[string]*bufferEntry),
		ttl:     ttl,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go b.sweep(sweepInterval)
	return b
}

// Publish stores a delta for key, overwriting any prior unconsumed entry
// with a fresh timestamp.
func (b *ResultBuffer) Publish(key string, delta *models.Delta) {
	if delta == nil {
		delta = &models.Delta{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = &bufferEntry{delta: delta, storedAt: b.now()}
}

// Consume removes and returns the delta for key. The entry is deleted whether
// or not it had expired; an expired entry reads exactly like a missing one.
func (b *ResultBuffer) Consume(key string) (*models.Delta, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	delete(b.entries, key)

	if b.now().Sub(entry.storedAt) >= b.ttl {
		return nil, false
	}
	return entry.delta, true
}

// Has reports whether an unexpired entry exists for key without consuming it.
func (b *ResultBuffer) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	return ok && b.now().Sub(entry.storedAt) < b.ttl
}

// sweep periodically drops expired-but-unconsumed entries.
func (b *ResultBuffer) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			now := b.now()
			for key, entry := range b.entries {
				if now.Sub(entry.storedAt) >= b.ttl {
					delete(b.entries, key)
				}
			}
			b.mu.Unlock()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the sweeper goroutine.
func (b *ResultBuffer) Close() {
	b.stopped.Do(func() { close(b.stopCh) })
}
