package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brainstorm/brainstorm/internal/models"
)

// ResponderAgent produces the user-visible conversational reply. It is the
// only agent on the foreground path and deliberately sees recent history
// only, never the item collection, to bound latency.
type ResponderAgent struct {
	invoker Invoker
}

func NewResponderAgent(invoker Invoker) *ResponderAgent {
	return &ResponderAgent{invoker: invoker}
}

func (a *ResponderAgent) ID() models.AgentID { return models.AgentResponder }

func (a *ResponderAgent) Execute(ctx context.Context, req *Request) (*models.AgentResult, error) {
	prompt := fmt.Sprintf(`You are a collaborative brainstorming partner helping a team think through a project.

%sUser: %s

Reply conversationally in at most three sentences. Acknowledge decisions, probe vague ideas, and never output JSON or lists.

Reply:`, formatHistory(req.History), req.Utterance)

	text, err := a.invoker.Invoke(ctx, string(a.ID()), prompt)
	if err != nil {
		return nil, fmt.Errorf("responder generation failed: %w", err)
	}

	return &models.AgentResult{
		AgentID:       a.ID(),
		Message:       strings.TrimSpace(text),
		VisibleToUser: true,
	}, nil
}

// VerificationAgent checks whether an utterance expresses a firm decision.
// The recorder step has a hard dependency on its success.
type VerificationAgent struct {
	invoker Invoker
}

func NewVerificationAgent(invoker Invoker) *VerificationAgent {
	return &VerificationAgent{invoker: invoker}
}

func (a *VerificationAgent) ID() models.AgentID { return models.AgentVerification }

func (a *VerificationAgent) Execute(ctx context.Context, req *Request) (*models.AgentResult, error) {
	prompt := fmt.Sprintf(`You verify whether a statement commits to a decision.

Statement: %s

Respond with ONLY a JSON object:
{
  "is_decision": true|false,
  "restated": "the decision restated as one clear sentence",
  "confidence": 0-100
}

JSON Response:`, req.Utterance)

	text, err := a.invoker.Invoke(ctx, string(a.ID()), prompt)
	if err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}

	var outcome models.VerificationOutcome
	if err := parseJSONResponse(text, &outcome); err != nil {
		return nil, fmt.Errorf("failed to parse verification outcome: %w", err)
	}
	outcome.Confidence = clampConfidence(outcome.Confidence)

	return &models.AgentResult{
		AgentID:  a.ID(),
		Message:  outcome.Restated,
		Metadata: outcome,
	}, nil
}

// RecorderAgent turns a verified decision into a persistence directive.
// Its output must always reflect the latest state, so it is configured with
// a zero TTL and bypasses the response cache.
type RecorderAgent struct {
	invoker Invoker
}

func NewRecorderAgent(invoker Invoker) *RecorderAgent {
	return &RecorderAgent{invoker: invoker}
}

func (a *RecorderAgent) ID() models.AgentID { return models.AgentRecorder }

func (a *RecorderAgent) Execute(ctx context.Context, req *Request) (*models.AgentResult, error) {
	prompt := fmt.Sprintf(`You record decisions from a brainstorming conversation.

%sUser statement: %s

Extract the decision items worth recording. Use state "decided" for firm
commitments, "exploring" for options still open, "parked" for ideas set aside.

Respond with ONLY a JSON object. For a single item:
{"should_record": true, "item": "...", "state": "decided|exploring|parked", "confidence": 0-100}
For several items:
{"items_to_record": [{"should_record": true, "item": "...", "state": "...", "confidence": 0-100}]}
If nothing is worth recording: {"should_record": false}

JSON Response:`, formatState(req.Items), req.Utterance)

	text, err := a.invoker.Invoke(ctx, string(a.ID()), prompt)
	if err != nil {
		return nil, fmt.Errorf("recorder failed: %w", err)
	}

	metadata, err := parseRecorderResponse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recorder directive: %w", err)
	}

	return &models.AgentResult{
		AgentID:  a.ID(),
		Message:  req.Utterance,
		Metadata: metadata,
	}, nil
}

// parseRecorderResponse accepts either the single-item or the batch directive
// shape.
func parseRecorderResponse(text string) (models.ResultMetadata, error) {
	jsonStr, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var batch models.BatchRecordDirective
	if err := json.Unmarshal([]byte(jsonStr), &batch); err == nil && len(batch.Items) > 0 {
		for i := range batch.Items {
			batch.Items[i].Confidence = clampConfidence(batch.Items[i].Confidence)
		}
		return batch, nil
	}

	var single models.RecordDirective
	if err := json.Unmarshal([]byte(jsonStr), &single); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	single.Confidence = clampConfidence(single.Confidence)
	return single, nil
}

// ConsistencyAgent audits recorded decisions for contradictions.
type ConsistencyAgent struct {
	invoker Invoker
}

func NewConsistencyAgent(invoker Invoker) *ConsistencyAgent {
	return &ConsistencyAgent{invoker: invoker}
}

func (a *ConsistencyAgent) ID() models.AgentID { return models.AgentConsistency }

func (a *ConsistencyAgent) Execute(ctx context.Context, req *Request) (*models.AgentResult, error) {
	prompt := fmt.Sprintf(`You guard the consistency of a project's recorded decisions.

%sLatest statement: %s

List contradictions between the statement and the recorded decisions, or between the decisions themselves.

Respond with ONLY a JSON object:
{"issues": ["..."], "score": 0-100}

An empty issues list with score 100 means fully consistent.

JSON Response:`, formatState(req.Items), req.Utterance)

	return executeFindingAgent(ctx, a.invoker, a.ID(), prompt)
}

// GapDetectorAgent lists decision areas the conversation has not covered.
type GapDetectorAgent struct {
	invoker Invoker
}

func NewGapDetectorAgent(invoker Invoker) *GapDetectorAgent {
	return &GapDetectorAgent{invoker: invoker}
}

func (a *GapDetectorAgent) ID() models.AgentID { return models.AgentGapDetector }

func (a *GapDetectorAgent) Execute(ctx context.Context, req *Request) (*models.AgentResult, error) {
	prompt := fmt.Sprintf(`You find gaps in a project's decision coverage.

%sLatest statement: %s

List important areas the team has not decided on yet.

Respond with ONLY a JSON object:
{"gaps": ["..."]}

JSON Response:`, formatState(req.Items), req.Utterance)

	text, err := a.invoker.Invoke(ctx, string(a.ID()), prompt)
	if err != nil {
		return nil, fmt.Errorf("gap detection failed: %w", err)
	}

	var report models.GapReport
	if err := parseJSONResponse(text, &report); err != nil {
		return nil, fmt.Errorf("failed to parse gap report: %w", err)
	}

	return &models.AgentResult{
		AgentID:  a.ID(),
		Message:  fmt.Sprintf("%d open areas identified", len(report.Gaps)),
		Metadata: report,
	}, nil
}

// QualityAgent audits how well-supported the recorded decisions are.
type QualityAgent struct {
	invoker Invoker
}

func NewQualityAgent(invoker Invoker) *QualityAgent {
	return &QualityAgent{invoker: invoker}
}

func (a *QualityAgent) ID() models.AgentID { return models.AgentQuality }

func (a *QualityAgent) Execute(ctx context.Context, req *Request) (*models.AgentResult, error) {
	prompt := fmt.Sprintf(`You audit the quality of recorded project decisions.

%sLatest statement: %s

Flag decisions that are vague, unsupported, or missing a rationale.

Respond with ONLY a JSON object:
{"issues": ["..."], "score": 0-100}

JSON Response:`, formatState(req.Items), req.Utterance)

	return executeFindingAgent(ctx, a.invoker, a.ID(), prompt)
}

// ResearchAgent answers research questions with sources. Its replies are
// user-visible and change slowly, so it carries the longest cache TTL.
type ResearchAgent struct {
	invoker Invoker
}

func NewResearchAgent(invoker Invoker) *ResearchAgent {
	return &ResearchAgent{invoker: invoker}
}

func (a *ResearchAgent) ID() models.AgentID { return models.AgentResearch }

func (a *ResearchAgent) Execute(ctx context.Context, req *Request) (*models.AgentResult, error) {
	prompt := fmt.Sprintf(`You research questions for a team brainstorming a project.

Question: %s

Respond with ONLY a JSON object:
{"answer": "a concise, factual answer", "sources": ["..."]}

JSON Response:`, req.Utterance)

	text, err := a.invoker.Invoke(ctx, string(a.ID()), prompt)
	if err != nil {
		return nil, fmt.Errorf("research failed: %w", err)
	}

	var parsed struct {
		Answer  string   `json:"answer"`
		Sources []string `json:"sources"`
	}
	if err := parseJSONResponse(text, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse research answer: %w", err)
	}

	return &models.AgentResult{
		AgentID:       a.ID(),
		Message:       parsed.Answer,
		VisibleToUser: true,
		Metadata:      models.ResearchSummary{Sources: parsed.Sources},
	}, nil
}

// executeFindingAgent runs the shared invoke-and-parse path for the two
// audit agents, which share the QualityFinding output shape.
func executeFindingAgent(ctx context.Context, invoker Invoker, id models.AgentID, prompt string) (*models.AgentResult, error) {
	text, err := invoker.Invoke(ctx, string(id), prompt)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", id, err)
	}

	var finding models.QualityFinding
	if err := parseJSONResponse(text, &finding); err != nil {
		return nil, fmt.Errorf("failed to parse %s finding: %w", id, err)
	}
	finding.Score = clampConfidence(finding.Score)

	return &models.AgentResult{
		AgentID:  id,
		Message:  fmt.Sprintf("%d issues found", len(finding.Issues)),
		Metadata: finding,
	}, nil
}

// extractJSON strips markdown fences and returns the outermost JSON object
// in a model response.
func extractJSON(response string) (string, error) {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimSpace(response)
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return response[start : end+1], nil
}

// parseJSONResponse extracts and unmarshals the JSON object in a response.
func parseJSONResponse(response string, v interface{}) error {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("JSON parse error: %w", err)
	}
	return nil
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// formatHistory renders recent turns for inclusion in a prompt.
func formatHistory(history []models.ConversationTurn) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, turn := range history {
		b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
	}
	b.WriteString("\n")
	return b.String()
}

// formatState renders the current decision buckets for inclusion in a prompt.
func formatState(items []models.ProjectItem) string {
	if len(items) == 0 {
		return ""
	}
	state := models.PartitionItems(items)

	var b strings.Builder
	b.WriteString("Recorded project state:\n")
	writeBucket(&b, "Decided", state.Decided)
	writeBucket(&b, "Exploring", state.Exploring)
	writeBucket(&b, "Parked", state.Parked)
	b.WriteString("\n")
	return b.String()
}

func writeBucket(b *strings.Builder, label string, items []models.ProjectItem) {
	if len(items) == 0 {
		return
	}
	b.WriteString(label + ":\n")
	for _, item := range items {
		b.WriteString("  - " + item.Text + "\n")
	}
}
