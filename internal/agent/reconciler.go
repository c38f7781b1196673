package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/brainstorm/brainstorm/internal/models"
	"github.com/brainstorm/brainstorm/internal/store"
)

// Reconciler merges agent-produced directives into the persisted item
// collection and reports the resulting delta.
//
// The update is "read the full collection, append, write it back" —
// last-writer-wins at the collection level. Two reconciliations for the same
// project racing concurrently can silently drop one side's additions; this
// is a documented limitation of the persistence contract, not something the
// reconciler papers over.
type Reconciler struct {
	projects store.ProjectStore
	now      func() time.Time
	newID    func() string
}

// NewReconciler creates a reconciler over the given project store.
func NewReconciler(projects store.ProjectStore) *Reconciler {
	return &Reconciler{
		projects: projects,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ApplyDirectives scans agent results for recording directives and appends
// the resulting items. Results carrying other metadata kinds are ignored; a
// malformed directive is logged and skipped so one bad agent result cannot
// abort recording for the rest of the batch.
func (r *Reconciler) ApplyDirectives(ctx context.Context, projectID string, results []*models.AgentResult) (*models.Delta, error) {
	delta := &models.Delta{}

	var newItems []models.ProjectItem
	for _, result := range results {
		if result == nil {
			continue
		}
		switch directive := result.Metadata.(type) {
		case models.RecordDirective:
			if item, ok := r.buildItem(result, directive); ok {
				newItems = append(newItems, item)
			}
		case models.BatchRecordDirective:
			for _, d := range directive.Items {
				if item, ok := r.buildItem(result, d); ok {
					newItems = append(newItems, item)
				}
			}
		default:
			// Not a recording directive; nothing to reconcile.
		}
	}

	if len(newItems) == 0 {
		return delta, nil
	}

	items, err := r.projects.ReadItems(ctx, projectID)
	if err != nil {
		return delta, fmt.Errorf("failed to read project items: %w", err)
	}

	items = append(items, newItems...)
	if err := r.projects.WriteItems(ctx, projectID, items); err != nil {
		return delta, fmt.Errorf("failed to write project items: %w", err)
	}

	delta.Added = newItems
	return delta, nil
}

// buildItem turns one directive into a project item with a fresh unique id
// and a citation carrying the originating quote and confidence.
func (r *Reconciler) buildItem(result *models.AgentResult, directive models.RecordDirective) (models.ProjectItem, bool) {
	if !directive.ShouldRecord {
		return models.ProjectItem{}, false
	}
	if directive.Item == "" {
		log.Printf("skipping malformed directive from %s: missing item text", result.AgentID)
		return models.ProjectItem{}, false
	}

	state := directive.State
	if !models.ValidItemState(state) {
		log.Printf("directive from %s has unknown state %q, defaulting to exploring", result.AgentID, state)
		state = models.ItemExploring
	}

	quote := result.Message
	if quote == "" {
		quote = directive.Item
	}

	now := r.now()
	return models.ProjectItem{
		ID:    r.newID(),
		Text:  directive.Item,
		State: state,
		Citation: models.Citation{
			SourceQuote: quote,
			Confidence:  clampConfidence(directive.Confidence),
			Timestamp:   now,
			Origin:      string(result.AgentID),
		},
		CreatedAt: now,
	}, true
}
