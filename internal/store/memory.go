package store

import (
	"context"
	"sync"
	"time"

	"github.com/brainstorm/brainstorm/internal/models"
)

// MemoryConversationStore is an in-memory ConversationStore for tests and
// backend-less runs.
type MemoryConversationStore struct {
	mu    sync.RWMutex
	turns map[string][]models.ConversationTurn
}

// NewMemoryConversationStore creates an empty in-memory conversation store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{turns: make(map[string][]models.ConversationTurn)}
}

func (s *MemoryConversationStore) AppendTurn(ctx context.Context, projectID string, turn models.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[projectID] = append(s.turns[projectID], turn)
	return nil
}

func (s *MemoryConversationStore) RecentTurns(ctx context.Context, projectID string, limit int) ([]models.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[projectID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	recent := make([]models.ConversationTurn, limit)
	copy(recent, all[len(all)-limit:])
	return recent, nil
}

func (s *MemoryConversationStore) Close() error { return nil }

// MemoryProjectStore is an in-memory ProjectStore. It reproduces the
// row-level atomicity of the real stores: reads and writes of the whole
// collection are individually consistent, but read-modify-write sequences
// are not serialized.
type MemoryProjectStore struct {
	mu    sync.RWMutex
	items map[string][]models.ProjectItem
}

// NewMemoryProjectStore creates an empty in-memory project store.
func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{items: make(map[string][]models.ProjectItem)}
}

func (s *MemoryProjectStore) ReadItems(ctx context.Context, projectID string) ([]models.ProjectItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]models.ProjectItem, len(s.items[projectID]))
	copy(items, s.items[projectID])
	return items, nil
}

func (s *MemoryProjectStore) WriteItems(ctx context.Context, projectID string, items []models.ProjectItem) error {
	stored := make([]models.ProjectItem, len(items))
	copy(stored, items)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[projectID] = stored
	return nil
}

func (s *MemoryProjectStore) Close() error { return nil }

// MemoryActivityTrail is an in-memory ActivityTrail.
type MemoryActivityTrail struct {
	mu      sync.RWMutex
	entries map[string][]ActivityEntry
}

// NewMemoryActivityTrail creates an empty in-memory trail.
func NewMemoryActivityTrail() *MemoryActivityTrail {
	return &MemoryActivityTrail{entries: make(map[string][]ActivityEntry)}
}

func (t *MemoryActivityTrail) Record(ctx context.Context, entry ActivityEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[entry.ProjectID] = append(t.entries[entry.ProjectID], entry)
	return nil
}

func (t *MemoryActivityTrail) RecentRuns(ctx context.Context, projectID string, limit int) ([]ActivityEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := t.entries[projectID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	// Newest first, matching the SQLite implementation.
	runs := make([]ActivityEntry, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		runs = append(runs, all[i])
	}
	return runs, nil
}

func (t *MemoryActivityTrail) Close() error { return nil }
