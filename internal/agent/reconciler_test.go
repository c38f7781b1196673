package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brainstorm/brainstorm/internal/models"
	"github.com/brainstorm/brainstorm/internal/store"
)

func testReconciler() (*Reconciler, *store.MemoryProjectStore) {
	projects := store.NewMemoryProjectStore()
	r := NewReconciler(projects)

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	seq := 0
	r.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return r, projects
}

// TestApplyDirectiveRecordsItem verifies a well-formed recording directive
// becomes exactly one persisted item with a citation back to its source.
func TestApplyDirectiveRecordsItem(t *testing.T) {
	r, projects := testReconciler()
	ctx := context.Background()

	results := []*models.AgentResult{
		{
			AgentID: models.AgentRecorder,
			Message: "Let's go with OAuth2 for auth",
			Metadata: models.RecordDirective{
				ShouldRecord: true,
				Item:         "Use OAuth2",
				State:        models.ItemDecided,
				Confidence:   90,
			},
		},
	}

	delta, err := r.ApplyDirectives(ctx, "p1", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.Added) != 1 {
		t.Fatalf("expected 1 added item, got %d", len(delta.Added))
	}

	item := delta.Added[0]
	if item.Text != "Use OAuth2" {
		t.Errorf("unexpected item text %q", item.Text)
	}
	if item.State != models.ItemDecided {
		t.Errorf("unexpected state %s", item.State)
	}
	if item.ID == "" {
		t.Error("item must get a fresh id")
	}
	if item.Citation.Confidence != 90 {
		t.Errorf("citation confidence = %d, want 90", item.Citation.Confidence)
	}
	if item.Citation.SourceQuote != "Let's go with OAuth2 for auth" {
		t.Errorf("unexpected source quote %q", item.Citation.SourceQuote)
	}
	if item.Citation.Origin != string(models.AgentRecorder) {
		t.Errorf("unexpected origin %q", item.Citation.Origin)
	}

	stored, err := projects.ReadItems(ctx, "p1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != item.ID {
		t.Errorf("expected persisted item to match delta, got %+v", stored)
	}
}

func TestApplyDirectivesAppendsToExisting(t *testing.T) {
	r, projects := testReconciler()
	ctx := context.Background()

	existing := []models.ProjectItem{{ID: "pre", Text: "Prior decision", State: models.ItemDecided}}
	if err := projects.WriteItems(ctx, "p1", existing); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	results := []*models.AgentResult{
		{
			AgentID:  models.AgentRecorder,
			Metadata: models.RecordDirective{ShouldRecord: true, Item: "New idea", State: models.ItemExploring, Confidence: 60},
		},
	}
	if _, err := r.ApplyDirectives(ctx, "p1", results); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := projects.ReadItems(ctx, "p1")
	if len(stored) != 2 {
		t.Fatalf("expected append to preserve existing items, got %d", len(stored))
	}
	if stored[0].ID != "pre" {
		t.Error("existing item must survive reconciliation")
	}
}

// TestApplyBatchDirective verifies every entry of a batch directive is
// recorded, each with its own id.
func TestApplyBatchDirective(t *testing.T) {
	r, projects := testReconciler()
	ctx := context.Background()

	results := []*models.AgentResult{
		{
			AgentID: models.AgentRecorder,
			Metadata: models.BatchRecordDirective{Items: []models.RecordDirective{
				{ShouldRecord: true, Item: "Use PostgreSQL", State: models.ItemDecided, Confidence: 85},
				{ShouldRecord: true, Item: "Evaluate Redis for sessions", State: models.ItemExploring, Confidence: 55},
				{ShouldRecord: false, Item: "ignored"},
			}},
		},
	}

	delta, err := r.ApplyDirectives(ctx, "p1", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.Added) != 2 {
		t.Fatalf("expected 2 added items, got %d", len(delta.Added))
	}
	if delta.Added[0].ID == delta.Added[1].ID {
		t.Error("batch items must get distinct ids")
	}

	stored, _ := projects.ReadItems(ctx, "p1")
	if len(stored) != 2 {
		t.Errorf("expected 2 persisted items, got %d", len(stored))
	}
}

// TestMalformedDirectivesSkipped verifies bad directives are dropped without
// aborting the batch or writing anything for them.
func TestMalformedDirectivesSkipped(t *testing.T) {
	r, projects := testReconciler()
	ctx := context.Background()

	results := []*models.AgentResult{
		{
			AgentID:  models.AgentRecorder,
			Metadata: models.RecordDirective{ShouldRecord: true, Item: ""}, // missing text
		},
		{
			AgentID:  models.AgentRecorder,
			Metadata: models.RecordDirective{ShouldRecord: false, Item: "not recorded"},
		},
		{
			AgentID:  models.AgentRecorder,
			Metadata: models.RecordDirective{ShouldRecord: true, Item: "Keep this", State: "bogus", Confidence: 250},
		},
	}

	delta, err := r.ApplyDirectives(ctx, "p1", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delta.Added) != 1 {
		t.Fatalf("expected only the salvageable directive, got %d items", len(delta.Added))
	}

	item := delta.Added[0]
	if item.State != models.ItemExploring {
		t.Errorf("unknown state must default to exploring, got %s", item.State)
	}
	if item.Citation.Confidence != 100 {
		t.Errorf("confidence must be clamped to 100, got %d", item.Citation.Confidence)
	}

	stored, _ := projects.ReadItems(ctx, "p1")
	if len(stored) != 1 {
		t.Errorf("expected 1 persisted item, got %d", len(stored))
	}
}

// TestNonDirectiveResultsIgnored verifies results carrying other metadata
// kinds, or none, never touch the store.
func TestNonDirectiveResultsIgnored(t *testing.T) {
	r, projects := testReconciler()
	ctx := context.Background()

	results := []*models.AgentResult{
		{AgentID: models.AgentResponder, Message: "sure, sounds good"},
		{AgentID: models.AgentQuality, Metadata: models.QualityFinding{Score: 80}},
		{AgentID: models.AgentGapDetector, Metadata: models.GapReport{Gaps: []string{"no budget item"}}},
		nil,
	}

	delta, err := r.ApplyDirectives(ctx, "p1", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !delta.Empty() {
		t.Errorf("expected empty delta, got %+v", delta)
	}

	stored, _ := projects.ReadItems(ctx, "p1")
	if len(stored) != 0 {
		t.Errorf("store must be untouched when nothing is recorded, got %d items", len(stored))
	}
}

func TestFallbackSourceQuote(t *testing.T) {
	r, _ := testReconciler()
	ctx := context.Background()

	results := []*models.AgentResult{
		{
			AgentID:  models.AgentRecorder,
			Message:  "",
			Metadata: models.RecordDirective{ShouldRecord: true, Item: "Use gRPC internally", State: models.ItemDecided, Confidence: 70},
		},
	}

	delta, err := r.ApplyDirectives(ctx, "p1", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := delta.Added[0].Citation.SourceQuote; got != "Use gRPC internally" {
		t.Errorf("empty message must fall back to item text, got %q", got)
	}
}
