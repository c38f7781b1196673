// Package store holds the persistence collaborators of the orchestration
// core: the conversation log, the project item collection and the activity
// trail. The core depends only on the interfaces here; the backing
// implementations mirror what the product runs (Redis, Badger, SQLite) and
// the in-memory variants back tests and serverless demo runs.
package store

import (
	"context"
	"time"

	"github.com/brainstorm/brainstorm/internal/models"
)

// ConversationStore persists ordered conversation turns per project.
type ConversationStore interface {
	// AppendTurn appends one immutable turn to the project's conversation.
	AppendTurn(ctx context.Context, projectID string, turn models.ConversationTurn) error
	// RecentTurns returns up to limit turns in chronological order
	// (fetched most-recent-first, then reversed).
	RecentTurns(ctx context.Context, projectID string, limit int) ([]models.ConversationTurn, error)
	Close() error
}

// ProjectStore persists the full item collection per project. Writes replace
// the whole collection; atomicity holds at the row level only, so concurrent
// writers race with last-writer-wins semantics.
type ProjectStore interface {
	ReadItems(ctx context.Context, projectID string) ([]models.ProjectItem, error)
	WriteItems(ctx context.Context, projectID string, items []models.ProjectItem) error
	Close() error
}

// ActivityEntry is one background pipeline run recorded for observability.
type ActivityEntry struct {
	ProjectID  string            `json:"project_id"`
	Intent     models.IntentType `json:"intent"`
	AgentsRun  []string          `json:"agents_run"`
	ItemsAdded int               `json:"items_added"`
	Failure    string            `json:"failure,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
}

// ActivityTrail records background pipeline outcomes. Failures after the
// foreground reply never reach the caller, so the trail is the only place
// they are visible.
type ActivityTrail interface {
	Record(ctx context.Context, entry ActivityEntry) error
	RecentRuns(ctx context.Context, projectID string, limit int) ([]ActivityEntry, error)
	Close() error
}
