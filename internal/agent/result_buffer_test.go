package agent

import (
	"testing"
	"time"

	"github.com/brainstorm/brainstorm/internal/models"
)

func testBuffer(ttl time.Duration) (*ResultBuffer, *time.Time) {
	b := NewResultBuffer(ttl, time.Hour)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

// TestConsumeAtMostOnce verifies the single-read contract: the first consume
// delivers the delta, the second finds nothing.
func TestConsumeAtMostOnce(t *testing.T) {
	b, _ := testBuffer(time.Minute)
	defer b.Close()

	delta := &models.Delta{Added: []models.ProjectItem{{ID: "1", Text: "use OAuth2"}}}
	b.Publish("project-1", delta)

	got, ok := b.Consume("project-1")
	if !ok {
		t.Fatal("expected first consume to deliver the delta")
	}
	if len(got.Added) != 1 || got.Added[0].Text != "use OAuth2" {
		t.Errorf("unexpected delta: %+v", got)
	}

	if _, ok := b.Consume("project-1"); ok {
		t.Error("second consume must find nothing")
	}
}

func TestConsumeMissingKey(t *testing.T) {
	b, _ := testBuffer(time.Minute)
	defer b.Close()

	if _, ok := b.Consume("nope"); ok {
		t.Error("expected no delta for unknown key")
	}
}

// TestPublishOverwrites verifies a second publish replaces an unconsumed
// entry rather than queueing behind it.
func TestPublishOverwrites(t *testing.T) {
	b, _ := testBuffer(time.Minute)
	defer b.Close()

	b.Publish("p", &models.Delta{Added: []models.ProjectItem{{ID: "old"}}})
	b.Publish("p", &models.Delta{Added: []models.ProjectItem{{ID: "new"}}})

	got, ok := b.Consume("p")
	if !ok {
		t.Fatal("expected a delta")
	}
	if got.Added[0].ID != "new" {
		t.Errorf("expected latest delta to win, got %s", got.Added[0].ID)
	}
}

func TestPublishNilDelta(t *testing.T) {
	b, _ := testBuffer(time.Minute)
	defer b.Close()

	b.Publish("p", nil)

	got, ok := b.Consume("p")
	if !ok {
		t.Fatal("expected an entry for a nil publish")
	}
	if !got.Empty() {
		t.Errorf("nil publish should read as an empty delta, got %+v", got)
	}
}

// TestExpiredEntryReadsAsMissing verifies consume and Has treat an expired
// entry exactly like an absent one.
func TestExpiredEntryReadsAsMissing(t *testing.T) {
	b, now := testBuffer(time.Minute)
	defer b.Close()

	b.Publish("p", &models.Delta{Added: []models.ProjectItem{{ID: "1"}}})
	*now = now.Add(2 * time.Minute)

	if b.Has("p") {
		t.Error("expired entry must not report as present")
	}
	if _, ok := b.Consume("p"); ok {
		t.Error("expired entry must read as missing")
	}
	// The expired entry was removed on that consume attempt.
	b.mu.Lock()
	remaining := len(b.entries)
	b.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected consume to drop the expired entry, %d left", remaining)
	}
}

func TestHasDoesNotConsume(t *testing.T) {
	b, _ := testBuffer(time.Minute)
	defer b.Close()

	b.Publish("p", &models.Delta{})
	if !b.Has("p") {
		t.Fatal("expected entry to be present")
	}
	if _, ok := b.Consume("p"); !ok {
		t.Error("Has must not consume the entry")
	}
}
