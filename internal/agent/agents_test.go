package agent

import (
	"context"
	"testing"

	"github.com/brainstorm/brainstorm/internal/models"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`, false},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"chatter around object", `Sure! Here you go: {"a": 1} hope that helps`, `{"a": 1}`, false},
		{"no object", "I cannot answer that.", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractJSON(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseRecorderResponseSingle(t *testing.T) {
	meta, err := parseRecorderResponse(`{"should_record": true, "item": "Use OAuth2", "state": "decided", "confidence": 150}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	directive, ok := meta.(models.RecordDirective)
	if !ok {
		t.Fatalf("expected RecordDirective, got %T", meta)
	}
	if directive.Item != "Use OAuth2" || directive.State != models.ItemDecided {
		t.Errorf("unexpected directive: %+v", directive)
	}
	if directive.Confidence != 100 {
		t.Errorf("confidence must be clamped, got %d", directive.Confidence)
	}
}

func TestParseRecorderResponseBatch(t *testing.T) {
	meta, err := parseRecorderResponse(`{"items_to_record": [
		{"should_record": true, "item": "Use OAuth2", "state": "decided", "confidence": 90},
		{"should_record": true, "item": "Evaluate SAML", "state": "exploring", "confidence": 40}
	]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch, ok := meta.(models.BatchRecordDirective)
	if !ok {
		t.Fatalf("expected BatchRecordDirective, got %T", meta)
	}
	if len(batch.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(batch.Items))
	}
	if batch.Items[1].State != models.ItemExploring {
		t.Errorf("unexpected second item: %+v", batch.Items[1])
	}
}

func TestParseRecorderResponseNothingToRecord(t *testing.T) {
	meta, err := parseRecorderResponse(`{"should_record": false}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	directive, ok := meta.(models.RecordDirective)
	if !ok {
		t.Fatalf("expected RecordDirective, got %T", meta)
	}
	if directive.ShouldRecord {
		t.Error("expected should_record to be false")
	}
}

func TestVerificationAgentExecute(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.responses[string(models.AgentVerification)] = "```json\n{\"is_decision\": true, \"restated\": \"Ship the MVP without billing\", \"confidence\": 88}\n```"

	a := NewVerificationAgent(invoker)
	result, err := a.Execute(context.Background(), &Request{Utterance: "Let's ship the MVP without billing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, ok := result.Metadata.(models.VerificationOutcome)
	if !ok {
		t.Fatalf("expected VerificationOutcome, got %T", result.Metadata)
	}
	if !outcome.IsDecision || outcome.Confidence != 88 {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	if result.Message != "Ship the MVP without billing" {
		t.Errorf("message must carry the restated decision, got %q", result.Message)
	}
	if result.VisibleToUser {
		t.Error("verification output is internal, not user-visible")
	}
}

func TestResearchAgentExecute(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.responses[string(models.AgentResearch)] = `{"answer": "PostgreSQL supports JSONB with GIN indexes.", "sources": ["postgresql.org/docs"]}`

	a := NewResearchAgent(invoker)
	result, err := a.Execute(context.Background(), &Request{Utterance: "Does PostgreSQL handle JSON well?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.VisibleToUser {
		t.Error("research answers are user-visible")
	}
	summary, ok := result.Metadata.(models.ResearchSummary)
	if !ok {
		t.Fatalf("expected ResearchSummary, got %T", result.Metadata)
	}
	if len(summary.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(summary.Sources))
	}
}

func TestFindingAgentGarbageResponse(t *testing.T) {
	invoker := newFakeInvoker()
	invoker.responses[string(models.AgentQuality)] = "everything looks fine to me"

	a := NewQualityAgent(invoker)
	if _, err := a.Execute(context.Background(), &Request{Utterance: "review"}); err == nil {
		t.Error("unparseable audit output must surface as an error")
	}
}
